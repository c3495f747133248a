// Package config provides configuration loading for docforge.
//
// Configuration comes from three layers, highest precedence first:
// environment variables, an optional YAML file, and the defaults returned by
// Default. See LoadWithFile for the mapping rules.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Provider names accepted in configuration.
const (
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Hybrid routing modes.
const (
	HybridAuto = "auto"
	HybridOn   = "on"
	HybridOff  = "off"
)

// Config holds the complete docforge configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Providers ProvidersConfig `koanf:"providers"`
	Router    RouterConfig    `koanf:"router"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Quality   QualityConfig   `koanf:"quality"`
	Executor  ExecutorConfig  `koanf:"executor"`
	Storage   StorageConfig   `koanf:"storage"`
	NATS      NATSConfig      `koanf:"nats"`
	Output    OutputConfig    `koanf:"output"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// Retention is how long a finished project stays in memory for live
	// status reads and event replay.
	Retention Duration `koanf:"retention"`
}

// ProvidersConfig selects the default backend and configures each one.
type ProvidersConfig struct {
	Default   string        `koanf:"default"`
	Model     string        `koanf:"model"`
	Ollama    BackendConfig `koanf:"ollama"`
	Gemini    BackendConfig `koanf:"gemini"`
	OpenAI    BackendConfig `koanf:"openai"`
	Anthropic BackendConfig `koanf:"anthropic"`
}

// BackendConfig configures one LLM backend.
type BackendConfig struct {
	Endpoint  string   `koanf:"endpoint"`
	APIKey    Secret   `koanf:"api_key"`
	Model     string   `koanf:"model"`
	Timeout   Duration `koanf:"timeout"`
	MaxTokens int      `koanf:"max_tokens"`
}

// Backend returns the settings for the named provider.
func (p ProvidersConfig) Backend(name string) (BackendConfig, bool) {
	switch name {
	case ProviderOllama:
		return p.Ollama, true
	case ProviderGemini:
		return p.Gemini, true
	case ProviderOpenAI:
		return p.OpenAI, true
	case ProviderAnthropic:
		return p.Anthropic, true
	}
	return BackendConfig{}, false
}

// RouterConfig holds per-step provider overrides.
type RouterConfig struct {
	// Hybrid is one of auto, on, off.
	Hybrid    string                   `koanf:"hybrid"`
	Overrides map[string]BindingConfig `koanf:"overrides"`
}

// BindingConfig binds a document to a provider and optional model.
type BindingConfig struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
}

// RateLimitConfig configures the shared request gate and retry policy.
type RateLimitConfig struct {
	MaxRequests  int      `koanf:"max_requests"`
	Period       Duration `koanf:"period"`
	SafetyMargin float64  `koanf:"safety_margin"`
	Jitter       Duration `koanf:"jitter"`
	MaxAttempts  int      `koanf:"max_attempts"`
	BaseBackoff  Duration `koanf:"base_backoff"`
	CacheSize    int      `koanf:"cache_size"`
}

// QualityConfig configures the generate/score/improve loop.
type QualityConfig struct {
	Enabled   bool    `koanf:"enabled"`
	Threshold float64 `koanf:"threshold"`
}

// ExecutorConfig sizes the worker pools.
type ExecutorConfig struct {
	Workers           int `koanf:"workers"`
	Phase1Concurrency int `koanf:"phase1_concurrency"`
}

// StorageConfig selects the project status store.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// NATSConfig configures the progress event transport.
type NATSConfig struct {
	URL           string `koanf:"url"`
	Embedded      bool   `koanf:"embedded"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// OutputConfig controls where finished documents are written.
type OutputConfig struct {
	Directory string `koanf:"directory"`
	// Redact scrubs credentials from generated documents before they are
	// stored or exported.
	Redact bool `koanf:"redact"`
	// RedactAllowList holds regular expressions for values left in place.
	RedactAllowList []string `koanf:"redact_allow_list"`
}

// LoggingConfig is the subset of logging settings exposed in the config file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	Insecure       bool    `koanf:"insecure"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	SampleRate     float64 `koanf:"sample_rate"`
}

// Default returns a configuration with production defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			Retention:       Duration(15 * time.Minute),
		},
		Providers: ProvidersConfig{
			Default: ProviderOllama,
			Ollama: BackendConfig{
				Endpoint:  "http://localhost:11434",
				Model:     "llama3",
				Timeout:   Duration(5 * time.Minute),
				MaxTokens: 4096,
			},
			Gemini: BackendConfig{
				Model:     "gemini-1.5-flash",
				Timeout:   Duration(2 * time.Minute),
				MaxTokens: 8192,
			},
			OpenAI: BackendConfig{
				Endpoint:  "https://api.openai.com/v1",
				Model:     "gpt-4o-mini",
				Timeout:   Duration(2 * time.Minute),
				MaxTokens: 4096,
			},
			Anthropic: BackendConfig{
				Endpoint:  "https://api.anthropic.com/v1",
				Model:     "claude-3-5-haiku-latest",
				Timeout:   Duration(2 * time.Minute),
				MaxTokens: 4096,
			},
		},
		Router: RouterConfig{
			Hybrid: HybridAuto,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:  50,
			Period:       Duration(time.Minute),
			SafetyMargin: 0.95,
			Jitter:       Duration(500 * time.Millisecond),
			MaxAttempts:  3,
			BaseBackoff:  Duration(2 * time.Second),
			CacheSize:    100,
		},
		Quality: QualityConfig{
			Enabled:   true,
			Threshold: 70,
		},
		Executor: ExecutorConfig{
			Workers:           8,
			Phase1Concurrency: 1,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "docforge.db",
		},
		NATS: NATSConfig{
			Embedded:      true,
			SubjectPrefix: "projects",
		},
		Output: OutputConfig{
			Directory: "docs",
			Redact:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "docforge",
			ServiceVersion: "dev",
			SampleRate:     1.0,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.Retention < 0 {
		return errors.New("server retention cannot be negative")
	}
	if _, ok := c.Providers.Backend(c.Providers.Default); !ok {
		return fmt.Errorf("unknown default provider %q", c.Providers.Default)
	}
	for doc, b := range c.Router.Overrides {
		if _, ok := c.Providers.Backend(b.Provider); !ok {
			return fmt.Errorf("override for %q names unknown provider %q", doc, b.Provider)
		}
	}
	switch c.Router.Hybrid {
	case HybridAuto, HybridOn, HybridOff:
	default:
		return fmt.Errorf("router hybrid must be auto, on or off, got %q", c.Router.Hybrid)
	}
	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("ratelimit max_requests must be >= 1, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Period <= 0 {
		return errors.New("ratelimit period must be positive")
	}
	if c.RateLimit.SafetyMargin <= 0 || c.RateLimit.SafetyMargin > 1 {
		return fmt.Errorf("ratelimit safety_margin must be in (0, 1], got %v", c.RateLimit.SafetyMargin)
	}
	if c.RateLimit.MaxAttempts < 1 {
		return fmt.Errorf("ratelimit max_attempts must be >= 1, got %d", c.RateLimit.MaxAttempts)
	}
	if c.Quality.Threshold < 0 || c.Quality.Threshold > 100 {
		return fmt.Errorf("quality threshold must be 0-100, got %v", c.Quality.Threshold)
	}
	if c.Executor.Workers < 1 {
		return fmt.Errorf("executor workers must be >= 1, got %d", c.Executor.Workers)
	}
	if c.Executor.Phase1Concurrency < 1 {
		return fmt.Errorf("executor phase1_concurrency must be >= 1, got %d", c.Executor.Phase1Concurrency)
	}
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return errors.New("storage path required for sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("storage driver must be sqlite or memory, got %q", c.Storage.Driver)
	}
	if !c.NATS.Embedded && c.NATS.URL == "" {
		return errors.New("nats url required when embedded server is disabled")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry protocol must be grpc or http, got %q", c.Telemetry.Protocol)
		}
	}
	return nil
}
