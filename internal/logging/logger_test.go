package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/docforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_OTELOnlyWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"no outputs", func(c *Config) { c.Output = OutputConfig{} }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"empty field", func(c *Config) { c.Fields = map[string]string{"k": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "trace", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromAppConfig(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("nope")
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := WithProjectID(context.Background(), "proj-1")
	ctx = WithDocumentID(ctx, "requirements")
	ctx = WithRequestID(ctx, "req-9")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	got := map[string]string{}
	for _, f := range ContextFields(ctx) {
		got[f.Key] = f.String
	}
	assert.Equal(t, "proj-1", got["project.id"])
	assert.Equal(t, "requirements", got["document.id"])
	assert.Equal(t, "req-9", got["request.id"])
	assert.Equal(t, traceID.String(), got["trace_id"])
	assert.Equal(t, spanID.String(), got["span_id"])

	assert.Empty(t, ContextFields(context.Background()))
}

func TestLogger_AttachesContextFields(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithProjectID(context.Background(), "proj-2")

	tl.Info(ctx, "step started", zap.String("step", "api_documentation"))
	tl.Trace(ctx, "prompt body")

	tl.AssertLogged(t, zapcore.InfoLevel, "step started")
	tl.AssertLogged(t, TraceLevel, "prompt body")
	tl.AssertField(t, "step started", "project.id", "proj-2")
	tl.AssertField(t, "step started", "step", "api_documentation")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "step started")
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewMapObjectEncoder(), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	// RedactingEncoder embeds the map encoder; read back through it.
	enc.AddString("api_key", "sk-verysecretvalue1234")
	enc.AddString("header", "Bearer abc.def")
	enc.AddString("error", "gemini rejected key AIza"+strings.Repeat("x", 35)+": 403")
	enc.AddByteString("raw", []byte("ghp_"+strings.Repeat("a", 36)))
	enc.AddString("document", "requirements")

	fields := enc.Encoder.(*zapcore.MapObjectEncoder).Fields
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "[REDACTED]", fields["header"])
	assert.Equal(t, "gemini rejected key [REDACTED]: 403", fields["error"])
	assert.Equal(t, "[REDACTED]", fields["raw"])
	assert.Equal(t, "requirements", fields["document"])
}

func TestSecretField(t *testing.T) {
	f := Secret("api_key", config.Secret("abcd"))
	assert.Equal(t, "[REDACTED:4]", f.String)
}

func TestSampledCore_ErrorsNeverSampled(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	sampled := newSampledCore(core, SamplingConfig{Enabled: true, Tick: 1e9, Initial: 1, Thereafter: 0})
	z := zap.New(sampled)

	for i := 0; i < 5; i++ {
		z.Info("repeated")
		z.Error("failure")
	}
	assert.Equal(t, 1, observed.FilterMessage("repeated").Len())
	assert.Equal(t, 5, observed.FilterMessage("failure").Len())
}
