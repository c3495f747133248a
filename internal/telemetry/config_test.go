package telemetry

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "docforge", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownAfter)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(mut func(*Config)) *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		mut(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		config *Config
		errMsg string
	}{
		{name: "enabled defaults", config: enabled(func(*Config) {})},
		{name: "disabled ignores bad values", config: &Config{SampleRate: 7}},
		{name: "http protocol", config: enabled(func(c *Config) { c.Protocol = ProtocolHTTP; c.Endpoint = "localhost:4318" })},
		{name: "remote endpoint with tls", config: enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false })},
		{name: "missing endpoint", config: enabled(func(c *Config) { c.Endpoint = "" }), errMsg: "endpoint is required"},
		{name: "missing service name", config: enabled(func(c *Config) { c.ServiceName = "" }), errMsg: "service_name is required"},
		{name: "unknown protocol", config: enabled(func(c *Config) { c.Protocol = "udp" }), errMsg: "protocol must be"},
		{name: "insecure remote", config: enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317" }), errMsg: "insecure export"},
		{name: "sample rate above one", config: enabled(func(c *Config) { c.SampleRate = 1.5 }), errMsg: "sample_rate"},
		{name: "negative sample rate", config: enabled(func(c *Config) { c.SampleRate = -0.1 }), errMsg: "sample_rate"},
		{name: "zero interval", config: enabled(func(c *Config) { c.MetricInterval = 0 }), errMsg: "metric interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		local    bool
	}{
		{"localhost:4317", true},
		{"http://localhost:4318", true},
		{"127.0.0.1:4317", true},
		{"[::1]:4317", true},
		{"https://127.0.0.1", true},
		{"collector:4317", false},
		{"10.0.0.5:4317", false},
		{"https://otel.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.local, cfg.isLocalEndpoint())
		})
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "host:4318", stripScheme("http://host:4318"))
	assert.Equal(t, "host:4318", stripScheme("https://host:4318"))
	assert.Equal(t, "host:4317", stripScheme("host:4317"))
}

func TestFromAppConfig(t *testing.T) {
	t.Run("empty keeps defaults", func(t *testing.T) {
		cfg := FromAppConfig(config.TelemetryConfig{})
		def := NewDefaultConfig()
		def.Insecure = false
		assert.Equal(t, def, cfg)
	})

	t.Run("overrides", func(t *testing.T) {
		cfg := FromAppConfig(config.TelemetryConfig{
			Enabled:        true,
			Endpoint:       "localhost:4318",
			Protocol:       ProtocolHTTP,
			Insecure:       true,
			ServiceName:    "docforged",
			ServiceVersion: "1.2.3",
			SampleRate:     0.25,
		})
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "localhost:4318", cfg.Endpoint)
		assert.Equal(t, ProtocolHTTP, cfg.Protocol)
		assert.Equal(t, "docforged", cfg.ServiceName)
		assert.Equal(t, "1.2.3", cfg.ServiceVersion)
		assert.Equal(t, 0.25, cfg.SampleRate)
		assert.Equal(t, 15*time.Second, cfg.MetricInterval)
		require.NoError(t, cfg.Validate())
	})
}
