package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangChain adapts a langchaingo model to Provider. Ollama and Gemini are
// served this way.
type LangChain struct {
	name      string
	model     string
	maxTokens int
	timeout   time.Duration
	llm       llms.Model
}

// NewLangChain wraps an already constructed langchaingo model.
func NewLangChain(name, model string, maxTokens int, llm llms.Model) *LangChain {
	return &LangChain{name: name, model: model, maxTokens: maxTokens, llm: llm}
}

// WithTimeout bounds calls whose Request carries no timeout of its own.
func (l *LangChain) WithTimeout(d time.Duration) *LangChain {
	l.timeout = d
	return l
}

// NewOllama connects to a local or remote Ollama server.
func NewOllama(cfg HTTPConfig) (*LangChain, error) {
	model := pick(cfg.Model, defaultOllamaModel)
	opts := []ollama.Option{
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.timeout()}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewLangChain("ollama", model, pickInt(cfg.MaxTokens, defaultMaxTokens), llm).
		WithTimeout(cfg.timeout()), nil
}

// NewGemini creates a Google Gemini client.
func NewGemini(ctx context.Context, cfg HTTPConfig) (*LangChain, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key required")
	}
	model := pick(cfg.Model, defaultGeminiModel)
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, err
	}
	return NewLangChain("gemini", model, pickInt(cfg.MaxTokens, defaultMaxTokens), llm).
		WithTimeout(cfg.timeout()), nil
}

func (l *LangChain) Name() string { return l.name }

// Generate sends one prompt. It does not retry; see Gated.
func (l *LangChain) Generate(ctx context.Context, req Request) (string, error) {
	if req.Timeout == 0 {
		req.Timeout = l.timeout
	}
	ctx, cancel := withTimeout(ctx, req)
	defer cancel()

	messages := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	resp, err := l.llm.GenerateContent(ctx, messages,
		llms.WithModel(pick(req.Model, l.model)),
		llms.WithMaxTokens(pickInt(req.MaxTokens, l.maxTokens)),
	)
	if err != nil {
		return "", classify(l.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", &Error{Kind: KindUnknown, Provider: l.name, Err: errors.New("empty response from model")}
	}
	return resp.Choices[0].Content, nil
}
