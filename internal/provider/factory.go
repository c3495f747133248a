package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/config"
	"golang.org/x/time/rate"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultGeminiModel      = "gemini-1.5-flash"
	defaultOllamaModel      = "llama3"
	defaultMaxTokens        = 4096
	defaultTimeout          = 2 * time.Minute
)

// Per-client smoothing. The shared Gate enforces the real account limit;
// this only stops one client from bursting its whole allowance at once.
const (
	defaultClientRate  = 5.0
	defaultClientBurst = 5
)

// HTTPConfig configures one backend client.
type HTTPConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// RatePerSecond of zero uses the default smoothing; negative disables it.
	RatePerSecond float64
}

func (c HTTPConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return defaultTimeout
}

func (c HTTPConfig) limiter() *rate.Limiter {
	switch {
	case c.RatePerSecond < 0:
		return rate.NewLimiter(rate.Inf, 0)
	case c.RatePerSecond == 0:
		return rate.NewLimiter(rate.Limit(defaultClientRate), defaultClientBurst)
	default:
		return rate.NewLimiter(rate.Limit(c.RatePerSecond), defaultClientBurst)
	}
}

func fromBackend(b config.BackendConfig) HTTPConfig {
	return HTTPConfig{
		BaseURL:   b.Endpoint,
		APIKey:    b.APIKey.Value(),
		Model:     b.Model,
		MaxTokens: b.MaxTokens,
		Timeout:   b.Timeout.Duration(),
	}
}

// New creates the named backend from its config section.
func New(ctx context.Context, name string, b config.BackendConfig) (Provider, error) {
	cfg := fromBackend(b)
	switch name {
	case config.ProviderAnthropic:
		return NewAnthropic(cfg)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg)
	case config.ProviderOllama:
		return NewOllama(cfg)
	case config.ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// NewAll creates every backend that is usable with cfg: Ollama always, the
// hosted backends only when an API key is set. Backends named by the default
// or an override must construct successfully.
func NewAll(ctx context.Context, cfg config.ProvidersConfig, required []string) (map[string]Provider, error) {
	need := make(map[string]bool, len(required))
	for _, r := range required {
		need[r] = true
	}

	out := make(map[string]Provider, 4)
	for _, name := range []string{config.ProviderOllama, config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic} {
		b, _ := cfg.Backend(name)
		if name != config.ProviderOllama && !b.APIKey.IsSet() && !need[name] {
			continue
		}
		p, err := New(ctx, name, b)
		if err != nil {
			if need[name] {
				return nil, fmt.Errorf("creating %s provider: %w", name, err)
			}
			continue
		}
		out[name] = p
	}
	return out, nil
}
