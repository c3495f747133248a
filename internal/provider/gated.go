package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Gate admits outbound calls. *ratelimit.Gate implements it.
type Gate interface {
	Acquire(ctx context.Context) error
}

// RetryPolicy bounds retries of Timeout and RateLimited failures.
type RetryPolicy struct {
	// MaxAttempts counts the first call.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy mirrors the config defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseBackoff: 2 * time.Second,
	MaxBackoff:  time.Minute,
}

func (p RetryPolicy) backoff(retry int) time.Duration {
	d := p.BaseBackoff * time.Duration(1<<(retry-1))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Gated wraps a Provider so that every attempt passes through the shared
// gate and failures are retried by Kind:
//   - Timeout and RateLimited: exponential backoff up to MaxAttempts
//   - Unknown: one retry, then fatal
//   - AuthFailure: fatal immediately
//
// Successful responses are cached; a cache hit skips the gate.
type Gated struct {
	inner  Provider
	gate   Gate
	policy RetryPolicy
	cache  *ratelimit.ResponseCache
	logger *logging.Logger
}

// GatedOption configures a Gated provider.
type GatedOption func(*Gated)

// WithCache enables response caching.
func WithCache(c *ratelimit.ResponseCache) GatedOption {
	return func(g *Gated) { g.cache = c }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *logging.Logger) GatedOption {
	return func(g *Gated) { g.logger = l }
}

// NewGated wraps inner.
func NewGated(inner Provider, gate Gate, policy RetryPolicy, opts ...GatedOption) *Gated {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	g := &Gated{inner: inner, gate: gate, policy: policy, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GateAll wraps every provider in m with the same gate, policy and options.
func GateAll(m map[string]Provider, gate Gate, policy RetryPolicy, opts ...GatedOption) map[string]Provider {
	out := make(map[string]Provider, len(m))
	for name, p := range m {
		out[name] = NewGated(p, gate, policy, opts...)
	}
	return out
}

func (g *Gated) Name() string { return g.inner.Name() }

// Generate calls the wrapped provider under the gate and retry policy.
func (g *Gated) Generate(ctx context.Context, req Request) (string, error) {
	name := g.inner.Name()
	key := ratelimit.CacheKey(name, req.Model, req.System+"\x00"+req.Prompt)
	if resp, ok := g.cache.Get(key); ok {
		cacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", name)))
		return resp, nil
	}

	ctx, span := tracer.Start(ctx, "provider.Generate", trace.WithAttributes(
		attribute.String("provider", name),
		attribute.String("model", req.Model),
	))
	defer span.End()

	unknownRetried := false
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := g.gate.Acquire(ctx); err != nil {
			span.SetStatus(codes.Error, "gate")
			if lastErr != nil {
				return "", fmt.Errorf("%w (last provider error: %v)", err, lastErr)
			}
			return "", err
		}

		start := time.Now()
		resp, err := g.inner.Generate(ctx, req)
		callDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("provider", name)))

		if err == nil {
			callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", name), attribute.String("outcome", "success")))
			span.SetAttributes(attribute.Int("attempts", attempt))
			g.cache.Put(key, resp)
			return resp, nil
		}

		err = classify(name, err)
		kind := KindOf(err)
		lastErr = err
		callCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", name), attribute.String("outcome", kind.String())))

		if ctx.Err() != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return "", err
		}

		retry := false
		switch kind {
		case KindTimeout, KindRateLimited:
			retry = attempt < g.policy.MaxAttempts
		case KindUnknown:
			retry = !unknownRetried
			unknownRetried = true
		}
		if !retry {
			span.RecordError(err)
			span.SetStatus(codes.Error, kind.String())
			return "", err
		}

		backoff := g.policy.backoff(attempt)
		retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", name), attribute.String("kind", kind.String())))
		g.logger.Warn(ctx, "provider call failed, retrying",
			zap.String("provider", name),
			zap.String("kind", kind.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", fmt.Errorf("%w (last provider error: %v)", ctx.Err(), err)
		}
	}
}
