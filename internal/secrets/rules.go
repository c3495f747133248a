package secrets

// DefaultRules covers the provider keys docforge itself handles plus the
// credentials most likely to show up in setup guides.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "anthropic-api-key", Description: "Anthropic API key", Pattern: `sk-ant-[A-Za-z0-9_\-]{32,}`},
		{ID: "openai-api-key", Description: "OpenAI API key", Pattern: `sk-(?:proj-)?[A-Za-z0-9]{20}T3BlbkFJ[A-Za-z0-9]{20}|sk-proj-[A-Za-z0-9_\-]{40,}`},
		{ID: "google-api-key", Description: "Google API key", Pattern: `AIza[0-9A-Za-z_\-]{35}`},
		{
			ID:          "aws-access-key-id",
			Description: "AWS access key id",
			Pattern:     `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`,
		},
		{ID: "github-token", Description: "GitHub token", Pattern: `gh[pousr]_[A-Za-z0-9]{36}`},
		{ID: "slack-token", Description: "Slack token", Pattern: `xox[baprs]-[0-9A-Za-z\-]{10,}`},
		{ID: "stripe-key", Description: "Stripe secret key", Pattern: `(?:sk|rk)_live_[0-9A-Za-z]{24,}`},
		{
			ID:          "private-key",
			Description: "Private key block",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----[\s\S]*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
		},
		{
			ID:          "database-url",
			Description: "Connection string with password",
			Pattern:     `(?i)(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@[^\s]+`,
			Keywords:    []string{"://"},
		},
		{
			ID:          "api-key-assignment",
			Description: "API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|secret[_-]?key|access[_-]?token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{24,}['"]?`,
			Keywords:    []string{"key", "token"},
		},
	}
}
