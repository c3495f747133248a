package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix scopes environment overrides to docforge.
	EnvPrefix = "DOCFORGE_"
)

// LoadWithFile loads configuration from an optional YAML file, then applies
// environment overrides on top of Default.
//
// Precedence (highest to lowest):
//  1. OLLAMA_HOST and AUTO_FIX_THRESHOLD
//  2. DOCFORGE_* environment variables (DOCFORGE_SERVER_PORT -> server.port)
//  3. The YAML file at configPath, when it exists
//  4. Default()
//
// GEMINI_API_KEY, OPENAI_API_KEY and ANTHROPIC_API_KEY only fill keys that
// are still empty after the layers above.
//
// An empty configPath skips the file layer. A missing file is not an error.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if content != nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	// Split on the first underscore only, so field names keep theirs:
	// DOCFORGE_RATELIMIT_MAX_REQUESTS -> ratelimit.max_requests
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyWellKnownEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate through the open descriptor to avoid a stat/open race.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large (max %d bytes)", maxConfigFileSize)
	}
	return content, nil
}

func validateConfigFileProperties(info os.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", info.Name())
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	if perm := info.Mode().Perm(); perm&^0o644 != 0 {
		return fmt.Errorf("config file permissions %#o are broader than 0644", perm)
	}
	return nil
}

func applyWellKnownEnv(cfg *Config) {
	setSecret := func(dst *Secret, key string) {
		if v := os.Getenv(key); v != "" && !dst.IsSet() {
			*dst = Secret(v)
		}
	}
	setSecret(&cfg.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	setSecret(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setSecret(&cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")

	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		if !strings.Contains(v, "://") {
			v = "http://" + v
		}
		cfg.Providers.Ollama.Endpoint = v
	}
	if v := os.Getenv("AUTO_FIX_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Quality.Threshold = parsed
		}
	}
}
