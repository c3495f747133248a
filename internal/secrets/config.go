package secrets

import (
	"fmt"
	"regexp"
)

// DefaultRedaction replaces each detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures a Redactor.
type Config struct {
	Enabled bool
	// Replacement is written in place of each secret.
	Replacement string
	Rules       []Rule
	// AllowList matches are left in place, e.g. documentation placeholders.
	AllowList []string
}

// Rule is one detection pattern.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords, when set, must appear in the content for the rule to run.
	Keywords []string
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

// DefaultConfig enables the built-in rules with a placeholder allow list.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Replacement: DefaultRedaction,
		Rules:       DefaultRules(),
		AllowList:   []string{`(?i)(your|example|placeholder|changeme|xxxx)`},
	}
}

func (c Config) compile() ([]compiledRule, []*regexp.Regexp, error) {
	rules := make([]compiledRule, 0, len(c.Rules))
	for i, r := range c.Rules {
		if r.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: id is required", i)
		}
		p, err := regexp.Compile(r.Pattern)
		if err != nil || r.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern %q", r.ID, r.Pattern)
		}
		cr := compiledRule{Rule: r, pattern: p}
		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, a := range c.AllowList {
		p, err := regexp.Compile(a)
		if err != nil {
			return nil, nil, fmt.Errorf("allow list %d: %w", i, err)
		}
		allow = append(allow, p)
	}
	return rules, allow, nil
}
