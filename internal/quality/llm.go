package quality

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/docforge/internal/provider"
)

const scoreSystemPrompt = `You are a strict technical documentation reviewer.
Rate the document for completeness, accuracy, clarity and structure.
Answer in exactly this format:

Quality Score: <0-100>/100
Feedback:
- <specific deficiency and how to fix it>`

const improveSystemPrompt = `You are a senior technical writer. Rewrite the document so that every
point of the reviewer feedback is addressed. Keep everything that is already
correct. Output only the complete improved document in Markdown.`

var scorePattern = regexp.MustCompile(`(?i)(?:quality\s+)?score:\s*\*{0,2}\s*(\d{1,3})\s*/\s*100`)

// LLMScorer asks a model to grade a document.
type LLMScorer struct {
	p         provider.Provider
	maxTokens int
}

// NewLLMScorer creates a scorer backed by p.
func NewLLMScorer(p provider.Provider, maxTokens int) *LLMScorer {
	return &LLMScorer{p: p, maxTokens: maxTokens}
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, documentID, content string) (Score, error) {
	resp, err := s.p.Generate(ctx, provider.Request{
		System:    scoreSystemPrompt,
		Prompt:    fmt.Sprintf("Document type: %s\n\n---\n%s\n---", documentID, content),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return Score{}, err
	}
	return ParseScore(resp)
}

// ParseScore extracts "Score: N/100" and the feedback that follows it.
func ParseScore(resp string) (Score, error) {
	m := scorePattern.FindStringSubmatchIndex(resp)
	if m == nil {
		return Score{}, fmt.Errorf("no score found in reviewer response")
	}
	v, err := strconv.Atoi(resp[m[2]:m[3]])
	if err != nil {
		return Score{}, fmt.Errorf("parsing score: %w", err)
	}
	if v > 100 {
		return Score{}, fmt.Errorf("score %d out of range", v)
	}

	feedback := strings.TrimSpace(resp[m[1]:])
	if i := strings.Index(strings.ToLower(feedback), "feedback:"); i >= 0 {
		feedback = strings.TrimSpace(feedback[i+len("feedback:"):])
	}
	if feedback == "" {
		feedback = strings.TrimSpace(resp[:m[0]])
	}
	return Score{Value: v, Feedback: feedback}, nil
}

// LLMImprover asks a model to rewrite a document against feedback.
type LLMImprover struct {
	p         provider.Provider
	maxTokens int
}

// NewLLMImprover creates an improver backed by p.
func NewLLMImprover(p provider.Provider, maxTokens int) *LLMImprover {
	return &LLMImprover{p: p, maxTokens: maxTokens}
}

// Improve implements Improver.
func (i *LLMImprover) Improve(ctx context.Context, documentID, content, feedback string) (string, error) {
	resp, err := i.p.Generate(ctx, provider.Request{
		System: improveSystemPrompt,
		Prompt: fmt.Sprintf("Document type: %s\n\nReviewer feedback:\n%s\n\nOriginal document:\n---\n%s\n---",
			documentID, feedback, content),
		MaxTokens: i.maxTokens,
	})
	if err != nil {
		return "", err
	}
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return "", fmt.Errorf("improver returned an empty document")
	}
	return resp, nil
}
