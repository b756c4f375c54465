package openai_compat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"govgen/internal/providers"
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client talks to any chat-completions endpoint that follows the OpenAI
// wire format.
type Client struct {
	api *openai.Client
}

func New(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		oc.BaseURL = strings.TrimSuffix(base, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{api: openai.NewClientWithConfig(oc)}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return providers.ChatResponse{}, classify(err, req.Model)
	}

	if len(resp.Choices) == 0 {
		return providers.ChatResponse{}, &providers.Error{
			Kind:    providers.ErrProvider,
			Model:   req.Model,
			Message: "empty choices in chat completion response",
		}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return providers.ChatResponse{}, &providers.Error{
			Kind:    providers.ErrProvider,
			Model:   req.Model,
			Message: "missing message content in chat completion response",
		}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return providers.ChatResponse{Text: text, Model: model}, nil
}

func classify(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return &providers.Error{
			Kind:    kindFor(apiErr.HTTPStatusCode, code, apiErr.Message),
			Model:   model,
			Status:  apiErr.HTTPStatusCode,
			Message: apiErr.Message,
			Err:     err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &providers.Error{
			Kind:   kindFor(reqErr.HTTPStatusCode, "", reqErr.Error()),
			Model:  model,
			Status: reqErr.HTTPStatusCode,
			Err:    err,
		}
	}

	return &providers.Error{Kind: providers.ErrProvider, Model: model, Err: err}
}

func kindFor(status int, code, message string) error {
	if code == "model_not_found" {
		return providers.ErrModelUnavailable
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden || code == "invalid_api_key" {
		return providers.ErrAuth
	}
	if providers.ModelUnavailableMessage(message) {
		return providers.ErrModelUnavailable
	}
	return providers.ErrProvider
}
