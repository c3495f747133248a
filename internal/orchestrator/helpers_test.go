package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/catalog"
	"github.com/fyrsmithlabs/docforge/internal/logging"
	"github.com/fyrsmithlabs/docforge/internal/packaging"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/provider"
	"github.com/fyrsmithlabs/docforge/internal/quality"
	"github.com/fyrsmithlabs/docforge/internal/secrets"
	"github.com/fyrsmithlabs/docforge/internal/store"
	"github.com/stretchr/testify/require"
)

var docIDLine = regexp.MustCompile(`(?m)^Document ID: (\S+)$`)

// reply scripts the provider's answer for one document.
type reply struct {
	content string
	err     error
	// wait blocks the call until closed.
	wait <-chan struct{}
}

// scriptedProvider answers by the document id in the prompt and records
// every prompt it was given.
type scriptedProvider struct {
	name   string
	script map[string]reply
	// called receives the document id of every call, if set.
	called chan string

	mu      sync.Mutex
	prompts map[string][]string
	order   []string
}

func newScripted(script map[string]reply) *scriptedProvider {
	return &scriptedProvider{name: "fake", script: script, prompts: make(map[string][]string)}
}

func (s *scriptedProvider) Name() string { return s.name }

func (s *scriptedProvider) Generate(ctx context.Context, req provider.Request) (string, error) {
	m := docIDLine.FindStringSubmatch(req.Prompt)
	if m == nil {
		return "", errors.New("prompt has no document id")
	}
	id := m[1]
	s.mu.Lock()
	s.prompts[id] = append(s.prompts[id], req.Prompt)
	s.order = append(s.order, id)
	s.mu.Unlock()
	if s.called != nil {
		s.called <- id
	}

	r, ok := s.script[id]
	if !ok {
		return "# " + id + "\ngenerated", nil
	}
	if r.wait != nil {
		select {
		case <-r.wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.content, r.err
}

func (s *scriptedProvider) promptsFor(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts[id]...)
}

func (s *scriptedProvider) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// recordingPackager keeps the bundle it was given.
type recordingPackager struct {
	mu     sync.Mutex
	bundle *packaging.Bundle
	err    error
}

func (r *recordingPackager) Run(_ context.Context, b *packaging.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundle = b
	return r.err
}

func (r *recordingPackager) got() *packaging.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bundle
}

func parseCatalog(t *testing.T, yaml string) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(yaml))
	require.NoError(t, err)
	return cat
}

// fixture is a coordinator wired to fakes.
type fixture struct {
	coord    *Coordinator
	provider *scriptedProvider
	store    *store.Memory
	sink     *progress.ChannelSink
	packager *recordingPackager
	logger   *logging.TestLogger
}

type fixtureOption func(*Deps, *Config)

func withQuality(l *quality.Loop) fixtureOption {
	return func(d *Deps, _ *Config) { d.Quality = l }
}

func withRedactor(r *secrets.Redactor) fixtureOption {
	return func(d *Deps, _ *Config) { d.Redactor = r }
}

func withWorkers(n int) fixtureOption {
	return func(_ *Deps, c *Config) { c.Workers = n }
}

func newFixture(t *testing.T, cat string, script map[string]reply, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		provider: newScripted(script),
		store:    store.NewMemory(),
		sink:     progress.NewChannelSink(256),
		packager: &recordingPackager{},
		logger:   logging.NewTestLogger(),
	}
	router, err := provider.NewRouter(provider.RouterConfig{Default: provider.Binding{Provider: "fake", Model: "m1"}},
		map[string]provider.Provider{"fake": f.provider})
	require.NoError(t, err)
	loop, err := quality.NewLoop(quality.Config{Enabled: false, Threshold: quality.DefaultThreshold}, nil, nil, nil)
	require.NoError(t, err)

	deps := Deps{
		Catalog:  parseCatalog(t, cat),
		Router:   router,
		Quality:  loop,
		Store:    f.store,
		Packager: f.packager,
		Logger:   f.logger.Logger,
	}
	cfg := Config{Workers: 4}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}
	f.coord, err = NewCoordinator(cfg, deps)
	require.NoError(t, err)
	return f
}

// project resolves req and registers it with the store the way the
// registry does.
func (f *fixture) project(t *testing.T, req Request) *Project {
	t.Helper()
	sel, err := f.coord.Resolve(req)
	require.NoError(t, err)
	id := fmt.Sprintf("p-%d", time.Now().UnixNano())
	p := newProject(id, req, sel, progress.NewEmitter(id, f.sink, f.logger.Logger), time.Now())
	require.NoError(t, f.store.CreateProject(context.Background(), p.Status()))
	return p
}

// events drains what has been emitted so far.
func (f *fixture) events() []progress.Event {
	var out []progress.Event
	for {
		select {
		case e := <-f.sink.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func ofType(events []progress.Event, typ progress.EventType) []progress.Event {
	var out []progress.Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// docEvents renders step events as "type:doc" in emission order.
func docEvents(events []progress.Event) []string {
	var out []string
	for _, e := range events {
		if e.DocumentID != "" {
			out = append(out, string(e.Type)+":"+e.DocumentID)
		}
	}
	return out
}

func phases(events []progress.Event) []string {
	var out []string
	for _, e := range ofType(events, progress.EventPhase) {
		out = append(out, e.Phase)
	}
	return out
}
