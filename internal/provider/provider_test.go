package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/config"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// MockProvider is a testify mock of Provider.
type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Generate(ctx context.Context, req Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type countingGate struct{ n atomic.Int32 }

func (g *countingGate) Acquire(ctx context.Context) error {
	g.n.Add(1)
	return ctx.Err()
}

var fastPolicy = RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", &Error{Kind: KindAuthFailure}, KindAuthFailure},
		{"wrapped", fmt.Errorf("step: %w", &Error{Kind: KindRateLimited}), KindRateLimited},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, KindAuthFailure, classifyStatus(401))
	assert.Equal(t, KindAuthFailure, classifyStatus(403))
	assert.Equal(t, KindRateLimited, classifyStatus(429))
	assert.Equal(t, KindRateLimited, classifyStatus(503))
	assert.Equal(t, KindTimeout, classifyStatus(504))
	assert.Equal(t, KindUnknown, classifyStatus(500))
	assert.Equal(t, KindUnknown, classifyStatus(400))
}

func TestClassifyMessage(t *testing.T) {
	assert.Equal(t, KindAuthFailure, classifyMessage("googleapi: Error 403: API key not valid"))
	assert.Equal(t, KindRateLimited, classifyMessage("rpc error: code = ResourceExhausted desc = Quota exceeded"))
	assert.Equal(t, KindTimeout, classifyMessage("dial tcp: i/o timeout"))
	assert.Equal(t, KindUnknown, classifyMessage("model not found"))
}

func TestAnthropic_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("Anthropic-Version"))

		var req anthropicRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-override", req.Model)
		assert.Equal(t, 256, req.MaxTokens)
		assert.Equal(t, "be terse", req.System)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"# Requirements"}]}`))
	}))
	defer server.Close()

	p, err := NewAnthropic(HTTPConfig{BaseURL: server.URL, APIKey: "test-key", RatePerSecond: -1})
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), Request{
		Prompt: "write", System: "be terse", Model: "claude-override", MaxTokens: 256,
	})
	require.NoError(t, err)
	assert.Equal(t, "# Requirements", out)
}

func TestHTTPProviders_ClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuthFailure},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusInternalServerError, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer server.Close()

			cfg := HTTPConfig{BaseURL: server.URL, APIKey: "k", RatePerSecond: -1}
			a, err := NewAnthropic(cfg)
			require.NoError(t, err)
			o, err := NewOpenAI(cfg)
			require.NoError(t, err)

			for _, p := range []Provider{a, o} {
				_, err := p.Generate(context.Background(), Request{Prompt: "x"})
				require.Error(t, err)
				assert.Equal(t, tt.want, KindOf(err), p.Name())

				var pe *Error
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.status, pe.StatusCode)
			}
		})
	}
}

func TestOpenAI_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
		}
		assert.Equal(t, defaultOpenAIModel, req.Model)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"api docs"}}]}`))
	}))
	defer server.Close()

	p, err := NewOpenAI(HTTPConfig{BaseURL: server.URL, APIKey: "sk-test", RatePerSecond: -1})
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), Request{Prompt: "p", System: "s"})
	require.NoError(t, err)
	assert.Equal(t, "api docs", out)
}

func TestOpenAI_TimeoutIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	p, err := NewOpenAI(HTTPConfig{BaseURL: server.URL, APIKey: "k", RatePerSecond: -1})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{Prompt: "p", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestNewHTTPProviders_RequireKey(t *testing.T) {
	_, err := NewAnthropic(HTTPConfig{})
	assert.Error(t, err)
	_, err = NewOpenAI(HTTPConfig{})
	assert.Error(t, err)
	_, err = NewGemini(context.Background(), HTTPConfig{})
	assert.Error(t, err)
}

// fakeModel implements llms.Model.
type fakeModel struct {
	gotModel    string
	gotMessages []llms.MessageContent
	reply       string
	err         error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	f.gotModel = opts.Model
	f.gotMessages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChain_Generate(t *testing.T) {
	fm := &fakeModel{reply: "schema"}
	p := NewLangChain("ollama", "llama3", 1024, fm)

	out, err := p.Generate(context.Background(), Request{Prompt: "p", System: "s"})
	require.NoError(t, err)
	assert.Equal(t, "schema", out)
	assert.Equal(t, "llama3", fm.gotModel)
	assert.Len(t, fm.gotMessages, 2)

	_, err = p.Generate(context.Background(), Request{Prompt: "p", Model: "mixtral"})
	require.NoError(t, err)
	assert.Equal(t, "mixtral", fm.gotModel)
}

func TestLangChain_ClassifiesErrors(t *testing.T) {
	p := NewLangChain("gemini", "g", 0, &fakeModel{err: errors.New("googleapi: Error 429: Resource has been exhausted")})
	_, err := p.Generate(context.Background(), Request{Prompt: "p"})
	assert.Equal(t, KindRateLimited, KindOf(err))

	p = NewLangChain("gemini", "g", 0, &fakeModel{reply: ""})
	_, err = p.Generate(context.Background(), Request{Prompt: "p"})
	assert.Equal(t, KindUnknown, KindOf(err))
}

// blockingModel never answers; it returns only when ctx ends.
type blockingModel struct{}

func (blockingModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b blockingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, b, prompt, options...)
}

func TestLangChain_AppliesConfiguredTimeout(t *testing.T) {
	p := NewLangChain("ollama", "llama3", 0, blockingModel{}).WithTimeout(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := p.Generate(context.Background(), Request{Prompt: "p"})
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, KindTimeout, KindOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not honour the configured timeout")
	}
}

func TestLangChain_RequestTimeoutWins(t *testing.T) {
	p := NewLangChain("gemini", "g", 0, blockingModel{}).WithTimeout(time.Hour)

	start := time.Now()
	_, err := p.Generate(context.Background(), Request{Prompt: "p", Timeout: 20 * time.Millisecond})
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestGated_RetriesTransientThenSucceeds(t *testing.T) {
	inner := &MockProvider{name: "ollama"}
	inner.On("Generate", mock.Anything, mock.Anything).Return("", &Error{Kind: KindRateLimited, Provider: "ollama", Err: errors.New("429")}).Once()
	inner.On("Generate", mock.Anything, mock.Anything).Return("", &Error{Kind: KindTimeout, Provider: "ollama", Err: errors.New("slow")}).Once()
	inner.On("Generate", mock.Anything, mock.Anything).Return("ok", nil).Once()

	gate := &countingGate{}
	g := NewGated(inner, gate, fastPolicy)

	out, err := g.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), gate.n.Load(), "every attempt passes the gate")
	inner.AssertExpectations(t)
}

func TestGated_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := &MockProvider{name: "ollama"}
	inner.On("Generate", mock.Anything, mock.Anything).Return("", &Error{Kind: KindTimeout, Err: errors.New("slow")})

	g := NewGated(inner, &countingGate{}, fastPolicy)
	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	inner.AssertNumberOfCalls(t, "Generate", 3)
}

func TestGated_AuthFailureIsFatal(t *testing.T) {
	inner := &MockProvider{name: "openai"}
	inner.On("Generate", mock.Anything, mock.Anything).Return("", &Error{Kind: KindAuthFailure, Err: errors.New("401")})

	g := NewGated(inner, &countingGate{}, fastPolicy)
	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	inner.AssertNumberOfCalls(t, "Generate", 1)
}

func TestGated_UnknownRetriedOnce(t *testing.T) {
	inner := &MockProvider{name: "openai"}
	inner.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("weird"))

	g := NewGated(inner, &countingGate{}, RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond})
	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))
	inner.AssertNumberOfCalls(t, "Generate", 2)
}

func TestGated_CacheHitSkipsGate(t *testing.T) {
	inner := &MockProvider{name: "ollama"}
	inner.On("Generate", mock.Anything, mock.Anything).Return("cached", nil).Once()

	gate := &countingGate{}
	g := NewGated(inner, gate, fastPolicy, WithCache(ratelimit.NewResponseCache(10, nil)))

	for i := 0; i < 3; i++ {
		out, err := g.Generate(context.Background(), Request{Prompt: "same"})
		require.NoError(t, err)
		assert.Equal(t, "cached", out)
	}
	assert.Equal(t, int32(1), gate.n.Load())
	inner.AssertExpectations(t)
}

func TestGated_StopsOnCancel(t *testing.T) {
	inner := &MockProvider{name: "ollama"}
	inner.On("Generate", mock.Anything, mock.Anything).Return("", &Error{Kind: KindRateLimited, Err: errors.New("429")})

	ctx, cancel := context.WithCancel(context.Background())
	g := NewGated(inner, &countingGate{}, RetryPolicy{MaxAttempts: 10, BaseBackoff: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, Request{Prompt: "p"})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not return after cancel")
	}
}

func TestRouter(t *testing.T) {
	ollama := &MockProvider{name: "ollama"}
	gemini := &MockProvider{name: "gemini"}
	ollama.On("Generate", mock.Anything, Request{Prompt: "p", Model: "llama3"}).Return("from ollama", nil)
	gemini.On("Generate", mock.Anything, Request{Prompt: "p", Model: "gemini-pro"}).Return("from gemini", nil)

	r, err := NewRouter(RouterConfig{
		Default:   Binding{Provider: "ollama", Model: "llama3"},
		Overrides: map[string]Binding{"api_documentation": {Provider: "gemini", Model: "gemini-pro"}},
	}, map[string]Provider{"ollama": ollama, "gemini": gemini})
	require.NoError(t, err)

	out, err := r.Generate(context.Background(), "requirements", Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "from ollama", out)

	out, err = r.For("api_documentation").Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "from gemini", out)

	assert.True(t, r.Hybrid())
	assert.Equal(t, "gemini", r.For("api_documentation").Name())
	assert.Equal(t, []DocumentBinding{{DocumentID: "api_documentation", Binding: Binding{Provider: "gemini", Model: "gemini-pro"}}}, r.Overrides())
}

func TestNewRouter_RejectsUnknownProvider(t *testing.T) {
	ps := map[string]Provider{"ollama": &MockProvider{name: "ollama"}}

	_, err := NewRouter(RouterConfig{Default: Binding{Provider: "openai"}}, ps)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewRouter(RouterConfig{
		Default:   Binding{Provider: "ollama"},
		Overrides: map[string]Binding{"requirements": {Provider: "gemini"}},
	}, ps)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRouterConfigFrom_Hybrid(t *testing.T) {
	technical := []string{"requirements", "technical_documentation", "api_documentation", "database_schema"}

	t.Run("auto enabled with gemini key and ollama default", func(t *testing.T) {
		cfg := config.Default()
		cfg.Providers.Gemini.APIKey = "key"
		rc := RouterConfigFrom(cfg, technical)
		assert.Equal(t, "ollama", rc.Default.Provider)
		assert.Len(t, rc.Overrides, 4)
		assert.Equal(t, "gemini", rc.Overrides["api_documentation"].Provider)
	})

	t.Run("auto disabled without key", func(t *testing.T) {
		rc := RouterConfigFrom(config.Default(), technical)
		assert.Empty(t, rc.Overrides)
	})

	t.Run("auto disabled for hosted default", func(t *testing.T) {
		cfg := config.Default()
		cfg.Providers.Default = config.ProviderOpenAI
		cfg.Providers.Gemini.APIKey = "key"
		assert.Empty(t, RouterConfigFrom(cfg, technical).Overrides)
	})

	t.Run("explicit overrides disable auto and win", func(t *testing.T) {
		cfg := config.Default()
		cfg.Providers.Gemini.APIKey = "key"
		cfg.Router.Overrides = map[string]config.BindingConfig{"requirements": {Provider: "openai"}}
		rc := RouterConfigFrom(cfg, technical)
		assert.Equal(t, map[string]Binding{"requirements": {Provider: "openai"}}, rc.Overrides)
	})

	t.Run("forced on keeps explicit precedence", func(t *testing.T) {
		cfg := config.Default()
		cfg.Router.Hybrid = config.HybridOn
		cfg.Router.Overrides = map[string]config.BindingConfig{"requirements": {Provider: "anthropic"}}
		rc := RouterConfigFrom(cfg, technical)
		assert.Equal(t, "anthropic", rc.Overrides["requirements"].Provider)
		assert.Equal(t, "gemini", rc.Overrides["database_schema"].Provider)
		assert.ElementsMatch(t, []string{"ollama", "anthropic", "gemini"}, RequiredProviders(rc))
	})
}

func TestNewAll_SkipsHostedWithoutKeys(t *testing.T) {
	ps, err := NewAll(context.Background(), config.Default().Providers, []string{"ollama"})
	require.NoError(t, err)
	assert.Contains(t, ps, "ollama")
	assert.NotContains(t, ps, "openai")

	_, err = NewAll(context.Background(), config.Default().Providers, []string{"ollama", "openai"})
	assert.Error(t, err)
}
