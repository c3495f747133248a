package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider is returned when a binding names a backend that is not
// registered.
var ErrUnknownProvider = errors.New("unknown provider")

// Binding pairs a backend with a model. An empty Model uses the backend's
// default.
type Binding struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// RouterConfig is the default binding plus per-document overrides.
type RouterConfig struct {
	Default   Binding
	Overrides map[string]Binding
}

// Router maps a document id to a backend. It is immutable after NewRouter.
type Router struct {
	providers map[string]Provider
	def       Binding
	overrides map[string]Binding
}

// NewRouter validates that every binding refers to a registered provider.
func NewRouter(cfg RouterConfig, providers map[string]Provider) (*Router, error) {
	if _, ok := providers[cfg.Default.Provider]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownProvider, cfg.Default.Provider)
	}
	overrides := make(map[string]Binding, len(cfg.Overrides))
	for doc, b := range cfg.Overrides {
		if _, ok := providers[b.Provider]; !ok {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownProvider, b.Provider, doc)
		}
		overrides[doc] = b
	}
	ps := make(map[string]Provider, len(providers))
	for k, v := range providers {
		ps[k] = v
	}
	return &Router{providers: ps, def: cfg.Default, overrides: overrides}, nil
}

// Binding returns the binding for documentID.
func (r *Router) Binding(documentID string) Binding {
	if b, ok := r.overrides[documentID]; ok {
		return b
	}
	return r.def
}

// Hybrid reports whether any document is routed away from the default.
func (r *Router) Hybrid() bool {
	for _, b := range r.overrides {
		if b != r.def {
			return true
		}
	}
	return false
}

// Overrides returns the per-document bindings, sorted by document id.
func (r *Router) Overrides() []DocumentBinding {
	out := make([]DocumentBinding, 0, len(r.overrides))
	for doc, b := range r.overrides {
		out = append(out, DocumentBinding{DocumentID: doc, Binding: b})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out
}

// DocumentBinding is one entry of Overrides.
type DocumentBinding struct {
	DocumentID string `json:"document_id"`
	Binding
}

// Generate routes req to the backend bound to documentID.
func (r *Router) Generate(ctx context.Context, documentID string, req Request) (string, error) {
	b := r.Binding(documentID)
	p := r.providers[b.Provider]
	if req.Model == "" {
		req.Model = b.Model
	}
	return p.Generate(ctx, req)
}

// For returns a Provider view of the router fixed to documentID.
func (r *Router) For(documentID string) Provider {
	return boundProvider{router: r, documentID: documentID}
}

type boundProvider struct {
	router     *Router
	documentID string
}

func (b boundProvider) Name() string {
	return b.router.Binding(b.documentID).Provider
}

func (b boundProvider) Generate(ctx context.Context, req Request) (string, error) {
	return b.router.Generate(ctx, b.documentID, req)
}
