package packaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/docforge/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline runs packagers stage by stage. Packagers inside a stage run
// concurrently; a failing packager is logged and does not stop the others
// or later stages.
type Pipeline struct {
	stages [][]Packager
	logger *logging.Logger
}

// NewPipeline creates a pipeline from stages.
func NewPipeline(logger *logging.Logger, stages ...[]Packager) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{stages: stages, logger: logger}
}

// Default is cross-referencing, then index and quality report, then export
// to dir. An empty dir skips export.
func Default(dir string, logger *logging.Logger) *Pipeline {
	stages := [][]Packager{
		{CrossReferencer{}},
		{Index{}, QualityReport{}},
	}
	if dir != "" {
		stages = append(stages, []Packager{FileExporter{Dir: dir}})
	}
	return NewPipeline(logger, stages...)
}

// Run executes every stage and returns the joined packager errors.
func (p *Pipeline) Run(ctx context.Context, b *Bundle) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	for _, stage := range p.stages {
		var g errgroup.Group
		for _, pk := range stage {
			g.Go(func() error {
				if err := pk.Package(ctx, b); err != nil {
					p.logger.Warn(ctx, "packager failed",
						zap.String("packager", pk.Name()),
						zap.String("project", b.ProjectID),
						zap.Error(err))
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", pk.Name(), err))
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return errors.Join(errs...)
}
