package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
)

// Names lists the supported vendors, primary first.
var Names = []string{OpenAI, Anthropic}

func Known(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

var (
	// ErrAuth means the vendor rejected or was never given credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrModelUnavailable means the account cannot use the model right now.
	// It is the only failure that lets a caller move on to another model.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrProvider covers every other vendor, transport or decoding failure.
	ErrProvider = errors.New("provider error")
)

// Error carries vendor detail for a failed chat call. Kind is one of the
// sentinel errors above and is matched by errors.Is.
type Error struct {
	Kind    error
	Model   string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Model != "" {
		fmt.Fprintf(&b, " (model %s)", e.Model)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " status %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ModelUnavailableMessage reports whether a vendor error message says the
// model cannot be used with this account or is overloaded.
func ModelUnavailableMessage(msg string) bool {
	m := strings.ToLower(msg)
	for _, needle := range []string{
		"does not have access to model",
		"model is currently overloaded",
		"model_not_found",
	} {
		if strings.Contains(m, needle) {
			return true
		}
	}
	// the looser phrasings only count when the message is about a model
	if !strings.Contains(m, "model") {
		return false
	}
	return strings.Contains(m, "does not exist") || strings.Contains(m, "overloaded")
}

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Text  string
	Model string
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
