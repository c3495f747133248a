package provider

import (
	"github.com/fyrsmithlabs/docforge/internal/config"
)

// RouterConfigFrom builds a RouterConfig from application config.
//
// technicalDocs lists the documents that hybrid mode sends to Gemini. Hybrid
// mode applies when router.hybrid is "on", or when it is "auto", no explicit
// overrides are configured, the default backend is Ollama and a Gemini key is
// present. Explicit overrides always win over hybrid routing.
func RouterConfigFrom(cfg *config.Config, technicalDocs []string) RouterConfig {
	rc := RouterConfig{
		Default:   Binding{Provider: cfg.Providers.Default, Model: cfg.Providers.Model},
		Overrides: make(map[string]Binding),
	}

	if hybridEnabled(cfg) {
		gemini := Binding{Provider: config.ProviderGemini, Model: cfg.Providers.Gemini.Model}
		for _, doc := range technicalDocs {
			rc.Overrides[doc] = gemini
		}
	}
	for doc, b := range cfg.Router.Overrides {
		rc.Overrides[doc] = Binding{Provider: b.Provider, Model: b.Model}
	}
	return rc
}

func hybridEnabled(cfg *config.Config) bool {
	switch cfg.Router.Hybrid {
	case config.HybridOn:
		return true
	case config.HybridOff:
		return false
	}
	def := cfg.Providers.Default
	return len(cfg.Router.Overrides) == 0 &&
		(def == "" || def == config.ProviderOllama) &&
		cfg.Providers.Gemini.APIKey.IsSet()
}

// RequiredProviders lists every backend a RouterConfig refers to.
func RequiredProviders(rc RouterConfig) []string {
	seen := map[string]bool{rc.Default.Provider: true}
	out := []string{rc.Default.Provider}
	for _, b := range rc.Overrides {
		if !seen[b.Provider] {
			seen[b.Provider] = true
			out = append(out, b.Provider)
		}
	}
	return out
}
