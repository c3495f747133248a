package secrets

import (
	"regexp"
	"slices"
	"strings"
)

// Finding is one redacted secret. The value itself is never kept.
type Finding struct {
	RuleID string `json:"rule_id"`
	Line   int    `json:"line"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// Result is the output of Redact.
type Result struct {
	Content  string
	Findings []Finding
}

// Redacted reports whether anything was replaced.
func (r Result) Redacted() bool { return len(r.Findings) > 0 }

// RuleIDs returns the distinct rules that matched, sorted.
func (r Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		ids = append(ids, f.RuleID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Redactor replaces secrets in text. A nil or disabled Redactor returns its
// input unchanged. Safe for concurrent use.
type Redactor struct {
	enabled     bool
	replacement string
	rules       []compiledRule
	allow       []*regexp.Regexp
}

// New compiles cfg.
func New(cfg Config) (*Redactor, error) {
	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	if cfg.Replacement == "" {
		cfg.Replacement = DefaultRedaction
	}
	return &Redactor{enabled: cfg.Enabled, replacement: cfg.Replacement, rules: rules, allow: allow}, nil
}

type span struct{ start, end int }

// Redact returns content with every secret replaced.
func (r *Redactor) Redact(content string) Result {
	res := Result{Content: content}
	if r == nil || !r.enabled || content == "" {
		return res
	}

	var spans []span
	for _, rule := range r.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if r.allowed(content[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID: rule.ID,
				Line:   strings.Count(content[:m[0]], "\n") + 1,
				Start:  m[0],
				End:    m[1],
			})
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, s := range merge(spans) {
		b.WriteString(content[pos:s.start])
		b.WriteString(r.replacement)
		pos = s.end
	}
	b.WriteString(content[pos:])
	res.Content = b.String()
	return res
}

func (c compiledRule) applies(content string) bool {
	if len(c.keywords) == 0 {
		return true
	}
	for _, kw := range c.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (r *Redactor) allowed(match string) bool {
	for _, p := range r.allow {
		if p.MatchString(match) {
			return true
		}
	}
	return false
}

// merge joins overlapping spans. spans must be sorted by start.
func merge(spans []span) []span {
	out := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end {
			last.end = max(last.end, s.end)
			continue
		}
		out = append(out, s)
	}
	return out
}
