// Package credentials keeps the selected vendor and one API key per vendor
// in the persistence port.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"govgen/internal/crypto"
	"govgen/internal/providers"
	"govgen/internal/storage"
)

const providerKey = "govgen-provider"

var (
	ErrValidation      = errors.New("api key must not be empty")
	ErrUnknownProvider = errors.New("unknown provider")
)

// KeyName is the storage slot for a vendor's API key.
func KeyName(provider string) string {
	return provider + "-api-key"
}

type Sealer interface {
	Seal(plaintext, label string) (string, error)
	Open(raw, label string) (string, error)
	NeedsReseal(raw string) bool
}

type Config struct {
	KV              storage.KV
	Sealer          Sealer
	DefaultProvider string
	Logger          zerolog.Logger
}

type Store struct {
	mu       sync.RWMutex
	kv       storage.KV
	sealer   Sealer
	log      zerolog.Logger
	provider string
	keys     map[string]string
}

type Status struct {
	Provider string          `json:"provider"`
	IsKeySet bool            `json:"isKeySet"`
	HasKey   map[string]bool `json:"hasKey"`
	Sealed   bool            `json:"sealed"`
}

// Open restores the selected provider and every stored key.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("credentials: kv is nil")
	}
	s := &Store{
		kv:       cfg.KV,
		sealer:   cfg.Sealer,
		log:      cfg.Logger.With().Str("component", "credentials").Logger(),
		provider: providers.OpenAI,
		keys:     map[string]string{},
	}
	if providers.Known(cfg.DefaultProvider) {
		s.provider = cfg.DefaultProvider
	}

	raw, found, err := s.kv.Get(ctx, providerKey)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if found && providers.Known(raw) {
		s.provider = raw
	}

	for _, p := range providers.Names {
		key, err := s.load(ctx, p)
		if err != nil {
			return nil, err
		}
		if key != "" {
			s.keys[p] = key
		}
	}
	return s, nil
}

func (s *Store) load(ctx context.Context, provider string) (string, error) {
	slot := KeyName(provider)
	raw, found, err := s.kv.Get(ctx, slot)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", slot, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return "", nil
	}

	if s.sealer == nil {
		if crypto.IsSealed(raw) {
			s.log.Warn().Str("provider", provider).Msg("stored key is sealed but no master key is configured; key ignored")
			return "", nil
		}
		return raw, nil
	}

	key, err := s.sealer.Open(raw, slot)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", slot, err)
	}
	if s.sealer.NeedsReseal(raw) {
		if err := s.persistKey(ctx, provider, key); err != nil {
			s.log.Warn().Err(err).Str("provider", provider).Msg("failed to reseal stored key")
		} else {
			s.log.Info().Str("provider", provider).Msg("stored key resealed with current master key")
		}
	}
	return key, nil
}

func (s *Store) persistKey(ctx context.Context, provider, key string) error {
	slot := KeyName(provider)
	value := key
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(key, slot)
		if err != nil {
			return fmt.Errorf("seal %s: %w", slot, err)
		}
		value = sealed
	}
	if err := s.kv.Set(ctx, slot, value); err != nil {
		return fmt.Errorf("persist %s: %w", slot, err)
	}
	return nil
}

// SetProvider switches the active vendor and re-reads its stored key.
func (s *Store) SetProvider(ctx context.Context, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !providers.Known(provider) {
		return fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Set(ctx, providerKey, provider); err != nil {
		return fmt.Errorf("persist provider: %w", err)
	}
	s.provider = provider

	key, err := s.load(ctx, provider)
	if err != nil {
		return err
	}
	if key != "" {
		s.keys[provider] = key
	}
	return nil
}

// SetKey stores key for provider. A blank key is rejected and nothing
// changes.
func (s *Store) SetKey(ctx context.Context, provider, key string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !providers.Known(provider) {
		return fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistKey(ctx, provider, key); err != nil {
		return err
	}
	s.keys[provider] = key
	return nil
}

func (s *Store) Provider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

func (s *Store) HasKey(provider string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[provider] != ""
}

// Key returns the API key for provider, if one is stored.
func (s *Store) Key(provider string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[provider]
	return k, ok && k != ""
}

// IsKeySet reports whether the selected provider has a key.
func (s *Store) IsKeySet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[s.provider] != ""
}

// Status describes the credential state without exposing any key.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Provider: s.provider,
		IsKeySet: s.keys[s.provider] != "",
		HasKey:   make(map[string]bool, len(providers.Names)),
		Sealed:   s.sealer != nil,
	}
	for _, p := range providers.Names {
		st.HasKey[p] = s.keys[p] != ""
	}
	return st
}
