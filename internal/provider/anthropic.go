package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const anthropicVersion = "2023-06-01"

// Anthropic calls the Anthropic Messages API.
type Anthropic struct {
	model      string
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(cfg HTTPConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key required")
	}
	return &Anthropic{
		model:      pick(cfg.Model, defaultAnthropicModel),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(pick(cfg.BaseURL, defaultAnthropicBaseURL), "/"),
		maxTokens:  pickInt(cfg.MaxTokens, defaultMaxTokens),
		httpClient: &http.Client{Timeout: cfg.timeout()},
		limiter:    cfg.limiter(),
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

// Generate sends one Messages request. It does not retry; see Gated.
func (a *Anthropic) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		return "", classify(a.Name(), fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     pick(req.Model, a.model),
		MaxTokens: pickInt(req.MaxTokens, a.maxTokens),
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", classify(a.Name(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(a.Name(), fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(a.Name(), resp.StatusCode, string(data))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	var sb strings.Builder
	for _, c := range parsed.Content {
		if c.Type == "text" || c.Type == "" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: errors.New("empty response from API")}
	}
	return sb.String(), nil
}
