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

// OpenAI calls an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	model      string
	apiKey     string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates an OpenAI client.
func NewOpenAI(cfg HTTPConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key required")
	}
	return &OpenAI{
		model:      pick(cfg.Model, defaultOpenAIModel),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(pick(cfg.BaseURL, defaultOpenAIBaseURL), "/"),
		maxTokens:  pickInt(cfg.MaxTokens, defaultMaxTokens),
		httpClient: &http.Client{Timeout: cfg.timeout()},
		limiter:    cfg.limiter(),
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

// Generate sends one chat completion request. It does not retry; see Gated.
func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req)
	defer cancel()

	if err := o.limiter.Wait(ctx); err != nil {
		return "", classify(o.Name(), fmt.Errorf("rate limiter: %w", err))
	}

	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openAIRequest{
		Model:     pick(req.Model, o.model),
		MaxTokens: pickInt(req.MaxTokens, o.maxTokens),
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", classify(o.Name(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(o.Name(), fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(o.Name(), resp.StatusCode, string(data))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Kind: KindUnknown, Provider: o.Name(), Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &Error{Kind: KindUnknown, Provider: o.Name(), Err: errors.New("empty response from API")}
	}
	return parsed.Choices[0].Message.Content, nil
}
