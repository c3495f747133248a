package logging

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docforge/internal/config"
	"github.com/fyrsmithlabs/docforge/internal/secrets"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redactedValue = "[REDACTED]"

// Secret logs a config.Secret as a length indicator only.
func Secret(key string, val config.Secret) zap.Field {
	return zap.String(key, fmt.Sprintf("[REDACTED:%d]", len(val.Value())))
}

// RedactingEncoder masks sensitive keys entirely and scrubs credentials out
// of string values with the same rules applied to generated documents.
type RedactingEncoder struct {
	zapcore.Encoder
	fields map[string]bool
	values *secrets.Redactor
}

// NewRedactingEncoder wraps base with the rules in cfg. cfg.Patterns are
// added to the built-in credential rules.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}
	fields := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}

	sc := secrets.Config{Enabled: true, Replacement: redactedValue, Rules: secrets.DefaultRules()}
	for i, p := range cfg.Patterns {
		sc.Rules = append(sc.Rules, secrets.Rule{ID: fmt.Sprintf("log-pattern-%d", i), Pattern: p})
	}
	values, err := secrets.New(sc)
	if err != nil {
		return nil, fmt.Errorf("invalid redaction pattern: %w", err)
	}
	return &RedactingEncoder{Encoder: base, fields: fields, values: values}, nil
}

func (e *RedactingEncoder) sensitive(key string) bool {
	return e.fields[strings.ToLower(key)]
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddString(key, e.values.Redact(val).Content)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	e.Encoder.AddString(key, e.values.Redact(string(val)).Content)
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder: e.Encoder.Clone(),
		fields:  e.fields,
		values:  e.values,
	}
}
