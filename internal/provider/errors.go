package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies a provider failure for retry decisions.
type Kind int

const (
	// KindUnknown is retried once, then treated as fatal.
	KindUnknown Kind = iota
	// KindTimeout is retried with exponential backoff.
	KindTimeout
	// KindRateLimited is retried with exponential backoff.
	KindRateLimited
	// KindAuthFailure is fatal immediately.
	KindAuthFailure
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailure:
		return "auth_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure from an LLM backend.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (%d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err. Errors that were never
// classified map to KindUnknown, except context deadlines which are timeouts.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsFatal reports whether err is an authentication failure.
func IsFatal(err error) bool {
	return KindOf(err) == KindAuthFailure
}

// classifyStatus maps an HTTP status code to a Kind.
func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuthFailure
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable || code == 529:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindUnknown
	}
}

// statusError builds a classified error from an HTTP response.
func statusError(provider string, code int, body string) *Error {
	return &Error{
		Kind:       classifyStatus(code),
		Provider:   provider,
		StatusCode: code,
		Err:        fmt.Errorf("API error: %s", truncate(body, 512)),
	}
}

// classify wraps an arbitrary backend error. Transport and SDK errors carry
// no status code, so their text is inspected for the usual markers.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := KindUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	default:
		kind = classifyMessage(err.Error())
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

func classifyMessage(msg string) Kind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "401", "403", "unauthorized", "unauthenticated", "permission denied", "invalid api key", "api key not valid"):
		return KindAuthFailure
	case containsAny(m, "429", "rate limit", "too many requests", "quota", "resource exhausted", "resource_exhausted", "overloaded"):
		return KindRateLimited
	case containsAny(m, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	}
	return KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
