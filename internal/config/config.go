package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	EnvPrefix       = "GOVGEN_"
	DefaultFileName = "govgen.yml"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var (
	ErrInvalidProvider    = errors.New("provider must be 'openai' or 'anthropic'")
	ErrInvalidDriver      = errors.New("storage.driver must be one of memory, sqlite, postgres, redis")
	ErrMissingDatabaseDSN = errors.New("storage.dsn is required for sql drivers")
	ErrMissingRedisAddr   = errors.New("storage.redis.addr is required for the redis driver")
	ErrEmptyModelList     = errors.New("candidate model list must not be empty")
	ErrInvalidTemperature = errors.New("generation.temperature must be between 0 and 2")
	ErrInvalidMaxTokens   = errors.New("generation.max_tokens must be > 0")
	ErrMissingMasterKey   = errors.New("no master key configured")
)

type Config struct {
	Provider   string           `yaml:"provider" koanf:"provider"`
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Storage    StorageConfig    `yaml:"storage" koanf:"storage"`
	Generation GenerationConfig `yaml:"generation" koanf:"generation"`
	Preview    PreviewConfig    `yaml:"preview" koanf:"preview"`
	Log        LogConfig        `yaml:"log" koanf:"log"`

	// Crypto is read from the environment only; master keys never live in
	// the config file.
	Crypto CryptoConfig `yaml:"-" koanf:"-"`
}

type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr" koanf:"listen_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	OpenBrowser    bool          `yaml:"open_browser" koanf:"open_browser"`
}

type StorageConfig struct {
	Driver      string      `yaml:"driver" koanf:"driver"`
	DSN         string      `yaml:"dsn" koanf:"dsn"`
	AutoMigrate bool        `yaml:"auto_migrate" koanf:"auto_migrate"`
	Redis       RedisConfig `yaml:"redis" koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" koanf:"addr"`
	Password string `yaml:"password" koanf:"password"`
	DB       int    `yaml:"db" koanf:"db"`
	Prefix   string `yaml:"prefix" koanf:"prefix"`
}

type GenerationConfig struct {
	OpenAIBaseURL    string        `yaml:"openai_base_url" koanf:"openai_base_url"`
	AnthropicBaseURL string        `yaml:"anthropic_base_url" koanf:"anthropic_base_url"`
	OpenAIModels     []string      `yaml:"openai_models" koanf:"openai_models"`
	AnthropicModels  []string      `yaml:"anthropic_models" koanf:"anthropic_models"`
	Temperature      float32       `yaml:"temperature" koanf:"temperature"`
	MaxTokens        int           `yaml:"max_tokens" koanf:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout" koanf:"timeout"`
	InFlightTTL      time.Duration `yaml:"in_flight_ttl" koanf:"in_flight_ttl"`
}

type PreviewConfig struct {
	StylesheetURL string `yaml:"stylesheet_url" koanf:"stylesheet_url"`
	WithChrome    bool   `yaml:"with_chrome" koanf:"with_chrome"`
}

type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
}

type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

// Enabled reports whether stored API keys should be sealed.
func (c CryptoConfig) Enabled() bool {
	return c.CurrentKeyID != "" && len(c.Keys) > 0
}

func Default() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:8787",
			RequestTimeout: 2 * time.Minute,
			OpenBrowser:    true,
		},
		Storage: StorageConfig{
			Driver:      DriverSQLite,
			DSN:         DefaultSQLitePath(),
			AutoMigrate: true,
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "govgen",
			},
		},
		Generation: GenerationConfig{
			OpenAIBaseURL:    "https://api.openai.com/v1",
			AnthropicBaseURL: "https://api.anthropic.com",
			OpenAIModels:     []string{"gpt-4o-mini", "gpt-3.5-turbo", "gpt-4-turbo", "gpt-4o"},
			AnthropicModels: []string{
				"claude-3-5-haiku-latest",
				"claude-3-haiku-20240307",
				"claude-3-5-sonnet-latest",
				"claude-3-7-sonnet-latest",
			},
			Temperature: 0.7,
			MaxTokens:   4000,
			Timeout:     90 * time.Second,
			InFlightTTL: 5 * time.Minute,
		},
		Preview: PreviewConfig{
			StylesheetURL: "https://design-system.service.gov.uk/stylesheets/main-8ac4d8a2fc1f22a06df330c13b616776.css",
			WithChrome:    true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultSQLitePath places the database under the user config directory,
// falling back to the working directory.
func DefaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(dir) == "" {
		return "govgen.db"
	}
	return filepath.Join(dir, "govgen", "govgen.db")
}

// Load applies defaults, then the YAML file at path if it exists, then
// GOVGEN_* environment overrides. A double underscore separates nesting
// levels: GOVGEN_STORAGE__DRIVER sets storage.driver.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cc, err := loadCryptoConfig()
	switch {
	case errors.Is(err, ErrMissingMasterKey):
		// keys are stored in plain text
	case err != nil:
		return nil, err
	default:
		cfg.Crypto = cc
	}

	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Generation.OpenAIModels = compact(c.Generation.OpenAIModels)
	c.Generation.AnthropicModels = compact(c.Generation.AnthropicModels)
}

func (c *Config) Validate() error {
	if c.Provider != ProviderOpenAI && c.Provider != ProviderAnthropic {
		return ErrInvalidProvider
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return ErrMissingDatabaseDSN
		}
	case DriverRedis:
		if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
			return ErrMissingRedisAddr
		}
	default:
		return ErrInvalidDriver
	}
	if len(c.Generation.OpenAIModels) == 0 || len(c.Generation.AnthropicModels) == 0 {
		return ErrEmptyModelList
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return ErrInvalidTemperature
	}
	if c.Generation.MaxTokens <= 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}

// Models returns the candidate list for a provider.
func (c *Config) Models(provider string) []string {
	if provider == ProviderAnthropic {
		return c.Generation.AnthropicModels
	}
	return c.Generation.OpenAIModels
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := envOr("GOVGEN_MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse GOVGEN_MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(k, "GOVGEN_MASTER_KEY_") || !strings.HasSuffix(k, "_B64") {
			continue
		}
		if k == "GOVGEN_MASTER_KEY_B64" {
			continue
		}
		id := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(k, "GOVGEN_MASTER_KEY_"), "_B64"))
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := envOr("GOVGEN_MASTER_KEY_CURRENT_ID", "")
	if single := envOr("GOVGEN_MASTER_KEY_B64", ""); single != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = single
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, ErrMissingMasterKey
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		if len(keys) > 1 {
			return CryptoConfig{}, fmt.Errorf("GOVGEN_MASTER_KEY_CURRENT_ID is required with more than one master key")
		}
		for id := range keys {
			current = id
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("GOVGEN_MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{CurrentKeyID: current, Keys: keys}, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
