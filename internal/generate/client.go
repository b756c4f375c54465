// Package generate turns a composed prompt into normalised GOV.UK HTML,
// walking a vendor's candidate models until one of them answers.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"govgen/internal/govuk"
	"govgen/internal/metrics"
	"govgen/internal/providers"
	"govgen/internal/providers/registry"
)

const SystemPrompt = `You are a helpful assistant specialized in generating HTML code following the GOV.UK Design System principles.

IMPORTANT INSTRUCTIONS:
1. Generate only HTML code without explanations, comments, or markdown formatting.
2. The HTML MUST use proper GOV.UK Design System CSS classes for all elements.
3. Ensure all components include the proper CSS classes (govuk-button, govuk-heading-xl, etc.).
4. Use semantic HTML with appropriate ARIA attributes for accessibility.
5. Include proper grid layouts using govuk-grid-row and govuk-grid-column classes.
6. All form elements must use govuk-form-group, govuk-label, and other appropriate form classes.
7. Use govuk-width-container for proper page width constraints.
8. Always wrap main content in govuk-main-wrapper with proper ID and ARIA role.
9. Create responsive layouts following the GOV.UK grid system.

Your HTML should be complete, accessible, and strictly adhere to GOV.UK Design System patterns.`

// AutoModel asks for the fallback walk, same as an empty override.
const AutoModel = "auto"

// BuildFunc returns a vendor client bound to apiKey.
type BuildFunc func(provider, apiKey string) (providers.Provider, error)

type Config struct {
	// Models holds the ordered candidate list per provider, cheapest first.
	Models      map[string][]string
	BaseURLs    map[string]string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	Build       BuildFunc
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

type Client struct {
	cfg Config
}

type Result struct {
	HTML     string
	Model    string
	Attempts int
}

func New(cfg Config) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Build == nil {
		baseURLs := cfg.BaseURLs
		httpClient := cfg.HTTPClient
		cfg.Build = func(provider, apiKey string) (providers.Provider, error) {
			return registry.Build(registry.BuildOptions{
				Kind:       provider,
				BaseURL:    baseURLs[provider],
				APIKey:     apiKey,
				HTTPClient: httpClient,
			})
		}
	}
	return &Client{cfg: cfg}
}

// Generate sends prompt to provider. With a model override exactly one
// attempt is made. Otherwise candidates are tried in order and only an
// unavailable model moves on to the next one; every other failure ends the
// walk. Attempts run one at a time.
func (c *Client) Generate(ctx context.Context, apiKey, provider, prompt, modelOverride string) (Result, error) {
	started := time.Now()
	log := c.cfg.Logger.With().Str("component", "generate").Str("provider", provider).Logger()

	res, err := c.run(ctx, log, apiKey, provider, prompt, modelOverride)

	if m := c.cfg.Metrics; m != nil {
		m.GenerationDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
		if err != nil {
			m.GenerationFailures.WithLabelValues(provider, kindLabel(err)).Inc()
		} else {
			m.GenerationSuccess.WithLabelValues(provider, res.Model).Inc()
		}
	}
	if err != nil {
		log.Warn().Err(err).Int("attempts", res.Attempts).Msg("generation failed")
		return res, err
	}
	log.Info().
		Str("model", res.Model).
		Int("attempts", res.Attempts).
		Int("bytes", len(res.HTML)).
		Dur("took", time.Since(started)).
		Msg("generation succeeded")
	return res, nil
}

func (c *Client) run(ctx context.Context, log zerolog.Logger, apiKey, provider, prompt, modelOverride string) (Result, error) {
	if strings.TrimSpace(apiKey) == "" {
		return Result{}, &providers.Error{Kind: providers.ErrAuth, Message: "api key is required"}
	}

	p, err := c.cfg.Build(provider, apiKey)
	if err != nil {
		return Result{}, &providers.Error{Kind: providers.ErrProvider, Err: err}
	}

	override := strings.TrimSpace(modelOverride)
	if strings.EqualFold(override, AutoModel) {
		override = ""
	}
	candidates := c.cfg.Models[provider]
	if override != "" {
		candidates = []string{override}
	}
	if len(candidates) == 0 {
		return Result{}, &providers.Error{Kind: providers.ErrProvider, Message: fmt.Sprintf("no candidate models for provider %q", provider)}
	}

	var (
		res     Result
		lastErr error
	)
	for _, model := range candidates {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("generation cancelled: %w", err)
		}

		res.Attempts++
		if m := c.cfg.Metrics; m != nil {
			m.GenerationAttempts.WithLabelValues(provider, model).Inc()
		}

		resp, err := p.Chat(ctx, providers.ChatRequest{
			Model:        model,
			SystemPrompt: SystemPrompt,
			UserPrompt:   prompt,
			MaxTokens:    c.cfg.MaxTokens,
			Temperature:  c.cfg.Temperature,
		})
		if err == nil {
			res.Model = model
			res.HTML = govuk.Normalize(govuk.StripFences(resp.Text))
			return res, nil
		}

		lastErr = err
		if override != "" || !errors.Is(err, providers.ErrModelUnavailable) {
			return res, err
		}
		if m := c.cfg.Metrics; m != nil {
			m.GenerationFallbacks.WithLabelValues(provider, model).Inc()
		}
		log.Info().Str("model", model).Err(err).Msg("model unavailable, trying next candidate")
	}

	return res, lastErr
}

func kindLabel(err error) string {
	switch {
	case errors.Is(err, providers.ErrAuth):
		return "auth"
	case errors.Is(err, providers.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "provider"
	}
}
