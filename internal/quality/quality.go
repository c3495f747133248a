// Package quality runs the generate, score, improve-once protocol used for
// foundational documents.
//
// A run moves through three typed stages:
//
//	Draft     -> the first generated version (V1)
//	Assessed  -> V1 with its score
//	Finalized -> the accepted content plus its Assessment
//
// When V1 scores below the threshold the loop asks for exactly one improved
// version (V2) and accepts it whatever its score. A scorer or improver error
// never fails the step: V1 is accepted and marked unscored.
package quality

import (
	"context"
	"fmt"
)

// Score is a scorer's verdict on one version of a document.
type Score struct {
	Value    int    `json:"value"`
	Feedback string `json:"feedback"`
}

// Scorer rates a document from 0 to 100.
type Scorer interface {
	Score(ctx context.Context, documentID, content string) (Score, error)
}

// Improver rewrites a document to address feedback.
type Improver interface {
	Improve(ctx context.Context, documentID, content, feedback string) (string, error)
}

// GenerateFunc produces the first version of a document.
type GenerateFunc func(ctx context.Context) (string, error)

// Assessment records what the loop decided for one document.
type Assessment struct {
	DocumentID string `json:"document_id"`
	// Score is the score of the accepted version. For an improved document it
	// is the V2 score.
	Score        int    `json:"score"`
	InitialScore int    `json:"initial_score"`
	Feedback     string `json:"feedback,omitempty"`
	Threshold    int    `json:"threshold"`
	Improved     bool   `json:"improved"`
	// Delta is Score - InitialScore when Improved.
	Delta int `json:"delta"`
	// Unscored is set when scoring or improvement failed, or the loop is
	// disabled, and the first version was accepted as is.
	Unscored bool `json:"unscored"`
}

// Stage names the step of the loop that produced a warning.
type Stage string

const (
	StageScoreDraft    Stage = "score_draft"
	StageImprove       Stage = "improve"
	StageScoreImproved Stage = "score_improved"
)

// AssessmentWarning reports a non-fatal scorer or improver failure.
type AssessmentWarning struct {
	DocumentID string
	Stage      Stage
	Err        error
}

func (w *AssessmentWarning) Error() string {
	return fmt.Sprintf("quality assessment of %s failed at %s: %v", w.DocumentID, w.Stage, w.Err)
}

func (w *AssessmentWarning) Unwrap() error { return w.Err }

// Draft is a generated, not yet scored, document.
type Draft struct {
	DocumentID string
	Content    string
}

// Assessed is a draft with its score.
type Assessed struct {
	Draft
	Score Score
}

// Finalized is the accepted document.
type Finalized struct {
	DocumentID string
	Content    string
	Assessment Assessment
	// Warning is set when the assessment could not complete.
	Warning *AssessmentWarning
}
