package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"govgen/internal/config"
	"govgen/internal/credentials"
	"govgen/internal/crypto"
	"govgen/internal/generate"
	"govgen/internal/inflight"
	"govgen/internal/metrics"
	"govgen/internal/pages"
	"govgen/internal/preview"
	"govgen/internal/providers"
	"govgen/internal/session"
	"govgen/internal/storage"
)

// app holds every wired component for one command invocation.
type app struct {
	cfg     *config.Config
	backend storage.Backend
	creds   *credentials.Store
	pages   *pages.Store
	session *session.Controller
	metrics *metrics.Metrics
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Storage.Driver == config.DriverSQLite {
		if err := ensureDir(cfg.Storage.DSN); err != nil {
			return nil, err
		}
	}

	backend, err := storage.OpenBackend(ctx, storage.Options{
		Driver:        cfg.Storage.Driver,
		DSN:           cfg.Storage.DSN,
		AutoMigrate:   cfg.Storage.AutoMigrate,
		RedisAddr:     cfg.Storage.Redis.Addr,
		RedisPassword: cfg.Storage.Redis.Password,
		RedisDB:       cfg.Storage.Redis.DB,
		RedisPrefix:   cfg.Storage.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a, err := wire(ctx, cfg, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg *config.Config, backend storage.Backend) (*app, error) {
	var sealer credentials.Sealer
	if cfg.Crypto.Enabled() {
		s, err := crypto.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
		if err != nil {
			return nil, fmt.Errorf("init sealer: %w", err)
		}
		sealer = s
	}

	creds, err := credentials.Open(ctx, credentials.Config{
		KV:              backend,
		Sealer:          sealer,
		DefaultProvider: cfg.Provider,
		Logger:          log.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}

	m := metrics.Global()
	ps, err := pages.Open(ctx, pages.Config{
		KV:      backend,
		Logger:  log.Logger,
		Metrics: m,
	})
	if err != nil {
		return nil, fmt.Errorf("open pages: %w", err)
	}

	gen := generate.New(generate.Config{
		Models: map[string][]string{
			providers.OpenAI:    cfg.Generation.OpenAIModels,
			providers.Anthropic: cfg.Generation.AnthropicModels,
		},
		BaseURLs: map[string]string{
			providers.OpenAI:    cfg.Generation.OpenAIBaseURL,
			providers.Anthropic: cfg.Generation.AnthropicBaseURL,
		},
		Temperature: float64(cfg.Generation.Temperature),
		MaxTokens:   cfg.Generation.MaxTokens,
		HTTPClient:  &http.Client{Timeout: cfg.Generation.Timeout},
		Logger:      log.Logger,
		Metrics:     m,
	})

	var guard inflight.Guard = inflight.NewMemory(cfg.Generation.InFlightTTL)
	if rs, ok := backend.(*storage.Redis); ok {
		guard = inflight.NewRedis(rs.Client(), cfg.Storage.Redis.Prefix, cfg.Generation.InFlightTTL, log.Logger)
	}

	ctl := session.New(session.Config{
		Pages:       ps,
		Credentials: creds,
		Generator:   gen,
		Guard:       guard,
		History:     backend,
		Preview: preview.Options{
			StylesheetURL: cfg.Preview.StylesheetURL,
			WithChrome:    cfg.Preview.WithChrome,
		},
		Logger: log.Logger,
	})

	return &app{
		cfg:     cfg,
		backend: backend,
		creds:   creds,
		pages:   ps,
		session: ctl,
		metrics: m,
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close storage")
	}
}

// models lists the candidate models per vendor for display.
func (a *app) models() map[string][]string {
	return map[string][]string{
		providers.OpenAI:    a.cfg.Generation.OpenAIModels,
		providers.Anthropic: a.cfg.Generation.AnthropicModels,
	}
}

// resolvePage accepts a page id or a page name.
func (a *app) resolvePage(ref string) (pages.Page, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if p, ok := a.pages.Current(); ok {
			return p, nil
		}
		return pages.Page{}, pages.ErrNotFound
	}
	if p, ok := a.pages.Page(ref); ok {
		return p, nil
	}
	if p, ok := a.pages.FindByName(ref); ok {
		return p, nil
	}
	return pages.Page{}, fmt.Errorf("page %q: %w", ref, pages.ErrNotFound)
}

// ensureDir creates the parent directory of a sqlite file DSN.
func ensureDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}
