package registry

import (
	"fmt"
	"net/http"

	"govgen/internal/providers"
	"govgen/internal/providers/anthropic_messages"
	"govgen/internal/providers/openai_compat"
)

type BuildOptions struct {
	Kind       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Build returns a client for one vendor bound to one API key.
func Build(opts BuildOptions) (providers.Provider, error) {
	switch opts.Kind {
	case providers.OpenAI, "openai_compat", "openai-compatible":
		return openai_compat.New(openai_compat.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	case providers.Anthropic, "anthropic_messages":
		return anthropic_messages.New(anthropic_messages.Config{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			HTTPClient: opts.HTTPClient,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
