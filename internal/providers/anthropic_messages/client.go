package anthropic_messages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"govgen/internal/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    []message{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("marshal messages payload: %w", err)
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.ChatResponse{}, &providers.Error{Kind: providers.ErrProvider, Model: req.Model, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.ChatResponse{}, &providers.Error{Kind: providers.ErrProvider, Model: req.Model, Status: resp.StatusCode, Err: err}
	}

	var parsed messagesResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || parsed.Error != nil {
		var ae apiError
		if decodeErr == nil && parsed.Error != nil {
			ae = *parsed.Error
		} else {
			ae.Message = strings.TrimSpace(string(respBody))
		}
		return providers.ChatResponse{}, &providers.Error{
			Kind:    kindFor(resp.StatusCode, ae),
			Model:   req.Model,
			Status:  resp.StatusCode,
			Message: ae.Message,
		}
	}
	if decodeErr != nil {
		return providers.ChatResponse{}, &providers.Error{
			Kind:   providers.ErrProvider,
			Model:  req.Model,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode messages response: %w", decodeErr),
		}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return providers.ChatResponse{}, &providers.Error{
			Kind:    providers.ErrProvider,
			Model:   req.Model,
			Status:  resp.StatusCode,
			Message: "missing text content in messages response",
		}
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}
	return providers.ChatResponse{Text: text.String(), Model: model}, nil
}

func kindFor(status int, e apiError) error {
	switch e.Type {
	case "overloaded_error", "not_found_error":
		return providers.ErrModelUnavailable
	case "authentication_error":
		return providers.ErrAuth
	case "permission_error":
		if strings.Contains(strings.ToLower(e.Message), "model") {
			return providers.ErrModelUnavailable
		}
		return providers.ErrAuth
	}
	if status == http.StatusUnauthorized {
		return providers.ErrAuth
	}
	if providers.ModelUnavailableMessage(e.Message) {
		return providers.ErrModelUnavailable
	}
	return providers.ErrProvider
}
