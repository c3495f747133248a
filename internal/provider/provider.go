// Package provider binds generation steps to LLM backends.
//
// Every backend implements Provider. Router picks one per document from a
// default binding plus per-document overrides fixed at construction, and
// Gated wraps a Provider with the shared request gate and the retry policy
// driven by error Kind.
package provider

import (
	"context"
	"time"
)

// Request is a single generation call.
type Request struct {
	Prompt string
	// System is an optional system instruction.
	System string
	// Model overrides the backend's default model when set.
	Model     string
	MaxTokens int
	// Timeout bounds the call; zero leaves only the caller's deadline.
	Timeout time.Duration
}

// Provider generates text from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// withTimeout applies req.Timeout to ctx.
func withTimeout(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		return context.WithTimeout(ctx, req.Timeout)
	}
	return context.WithCancel(ctx)
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func pickInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
