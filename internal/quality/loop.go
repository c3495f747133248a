package quality

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultThreshold is the score below which a document is improved.
const DefaultThreshold = 70

// Config configures a Loop.
type Config struct {
	// Enabled turns scoring on. A disabled loop accepts V1 unscored.
	Enabled   bool
	Threshold int
}

// Loop applies the quality protocol to one document at a time. It holds no
// per-run state and is safe for concurrent use.
type Loop struct {
	cfg      Config
	scorer   Scorer
	improver Improver
	logger   *logging.Logger
}

// NewLoop creates a loop. scorer and improver may be nil only when the loop
// is disabled.
func NewLoop(cfg Config, scorer Scorer, improver Improver, logger *logging.Logger) (*Loop, error) {
	if cfg.Enabled && (scorer == nil || improver == nil) {
		return nil, errors.New("quality: scorer and improver are required when enabled")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		return nil, fmt.Errorf("quality: threshold %d outside 0-100", cfg.Threshold)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loop{cfg: cfg, scorer: scorer, improver: improver, logger: logger}, nil
}

// Threshold returns the configured threshold.
func (l *Loop) Threshold() int { return l.cfg.Threshold }

// Run generates, scores and possibly improves documentID. Only a generation
// error is returned; assessment problems are reported on Finalized.Warning.
func (l *Loop) Run(ctx context.Context, documentID string, generate GenerateFunc) (Finalized, error) {
	ctx, span := tracer.Start(ctx, "quality.Run", trace.WithAttributes(
		attribute.String("document.id", documentID),
		attribute.Int("quality.threshold", l.cfg.Threshold),
	))
	defer span.End()

	draft, err := l.draft(ctx, documentID, generate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return Finalized{}, err
	}

	if !l.cfg.Enabled {
		return l.unscored(draft, nil), nil
	}

	assessed, warn := l.assess(ctx, draft)
	if warn != nil {
		return l.warned(ctx, span, draft, warn, 0), nil
	}

	fin := l.finalize(ctx, assessed)
	if fin.Warning != nil {
		return l.warned(ctx, span, draft, fin.Warning, assessed.Score.Value), nil
	}

	attrs := metric.WithAttributes(attribute.String("document.id", documentID))
	scoreHistogram.Record(ctx, int64(fin.Assessment.Score), attrs)
	if fin.Assessment.Improved {
		improvementCounter.Add(ctx, 1, attrs)
	}
	span.SetAttributes(
		attribute.Int("quality.score", fin.Assessment.Score),
		attribute.Bool("quality.improved", fin.Assessment.Improved),
	)
	return fin, nil
}

func (l *Loop) draft(ctx context.Context, documentID string, generate GenerateFunc) (Draft, error) {
	content, err := generate(ctx)
	if err != nil {
		return Draft{}, err
	}
	return Draft{DocumentID: documentID, Content: content}, nil
}

func (l *Loop) assess(ctx context.Context, d Draft) (Assessed, *AssessmentWarning) {
	s, err := l.scorer.Score(ctx, d.DocumentID, d.Content)
	if err != nil {
		return Assessed{}, &AssessmentWarning{DocumentID: d.DocumentID, Stage: StageScoreDraft, Err: err}
	}
	return Assessed{Draft: d, Score: clamp(s)}, nil
}

// finalize accepts V1 when it meets the threshold, and otherwise performs the
// single improvement pass and accepts V2 unconditionally.
func (l *Loop) finalize(ctx context.Context, a Assessed) Finalized {
	base := Assessment{
		DocumentID:   a.DocumentID,
		Score:        a.Score.Value,
		InitialScore: a.Score.Value,
		Feedback:     a.Score.Feedback,
		Threshold:    l.cfg.Threshold,
	}
	if a.Score.Value >= l.cfg.Threshold {
		return Finalized{DocumentID: a.DocumentID, Content: a.Content, Assessment: base}
	}

	l.logger.Info(ctx, "document below quality threshold, improving",
		zap.String("document", a.DocumentID),
		zap.Int("score", a.Score.Value),
		zap.Int("threshold", l.cfg.Threshold),
	)

	improved, err := l.improver.Improve(ctx, a.DocumentID, a.Content, a.Score.Feedback)
	if err != nil {
		return Finalized{Warning: &AssessmentWarning{DocumentID: a.DocumentID, Stage: StageImprove, Err: err}}
	}
	s, err := l.scorer.Score(ctx, a.DocumentID, improved)
	if err != nil {
		return Finalized{Warning: &AssessmentWarning{DocumentID: a.DocumentID, Stage: StageScoreImproved, Err: err}}
	}
	s = clamp(s)

	base.Score = s.Value
	base.Feedback = s.Feedback
	base.Improved = true
	base.Delta = s.Value - a.Score.Value
	if base.Delta < 0 {
		l.logger.Warn(ctx, "improved document scored lower than the original",
			zap.String("document", a.DocumentID),
			zap.Int("initial_score", a.Score.Value),
			zap.Int("score", s.Value),
		)
	}
	return Finalized{DocumentID: a.DocumentID, Content: improved, Assessment: base}
}

// warned accepts the draft unscored and logs the warning. initial is the V1
// score when it is known.
func (l *Loop) warned(ctx context.Context, span trace.Span, d Draft, w *AssessmentWarning, initial int) Finalized {
	l.logger.Warn(ctx, "quality assessment failed, accepting first version",
		zap.String("document", d.DocumentID),
		zap.String("stage", string(w.Stage)),
		zap.Error(w.Err),
	)
	span.RecordError(w)
	warningCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", string(w.Stage))))
	fin := l.unscored(d, w)
	fin.Assessment.InitialScore = initial
	return fin
}

func (l *Loop) unscored(d Draft, w *AssessmentWarning) Finalized {
	return Finalized{
		DocumentID: d.DocumentID,
		Content:    d.Content,
		Assessment: Assessment{DocumentID: d.DocumentID, Threshold: l.cfg.Threshold, Unscored: true},
		Warning:    w,
	}
}

func clamp(s Score) Score {
	switch {
	case s.Value < 0:
		s.Value = 0
	case s.Value > 100:
		s.Value = 100
	}
	return s
}
