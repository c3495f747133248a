package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "12/47 req per 1m0s", FormatRate(12, 47, time.Minute))
	assert.Equal(t, "0/1 req per 10s", FormatRate(0, 1, 10*time.Second))
}

func TestFormatPercentage(t *testing.T) {
	tests := []struct {
		name     string
		pct      float64
		expected string
	}{
		{"zero", 0, "0.0%"},
		{"half", 50, "50.0%"},
		{"fraction", 80.85, "80.8%"},
		{"full", 100, "100.0%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPercentage(tt.pct))
		})
	}
}

func TestFormatScore(t *testing.T) {
	score := 85
	zero := 0
	assert.Equal(t, "85/100", FormatScore(&score))
	assert.Equal(t, "0/100", FormatScore(&zero))
	assert.Equal(t, "-", FormatScore(nil))
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		ms       int64
		expected string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{12345, "12.3s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatMillis(tt.ms))
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{"negative", -time.Second, "0s"},
		{"seconds", 42 * time.Second, "42s"},
		{"minutes", 3*time.Minute + 5*time.Second, "3m 5s"},
		{"hours", 2*time.Hour + 15*time.Minute + 30*time.Second, "2h 15m"},
		{"sub second", 300 * time.Millisecond, "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatElapsed(tt.d))
		})
	}
}
