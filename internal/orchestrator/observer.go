package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/docforge/internal/dag"
	"github.com/fyrsmithlabs/docforge/internal/sharedctx"
)

// observer turns executor transitions into project bookkeeping and progress
// events. The executor calls it from its scheduling goroutine, so events
// follow the real start and finish order.
type observer struct {
	c   *Coordinator
	p   *Project
	ctx context.Context
}

var _ dag.Observer = (*observer)(nil)

func (o *observer) StepStarted(id string) {
	_ = o.p.emitter.Started(o.ctx, id, o.c.router.Binding(id).Provider)
}

func (o *observer) StepSucceeded(id string, a sharedctx.Artifact, d time.Duration) {
	o.c.persist(o.ctx, o.p.markCompleted(id, o.c.now()))
	var score *int
	if v, err := strconv.Atoi(a.Metadata[MetaScore]); err == nil {
		score = &v
	}
	_ = o.p.emitter.Succeeded(o.ctx, id, d, score, a.Metadata[MetaImproved] == "true")
}

func (o *observer) StepFailed(id string, err error, d time.Duration) {
	cause := err
	var se *dag.StepError
	if errors.As(err, &se) {
		cause = se.Err
	}
	o.c.persist(o.ctx, o.p.recordFailure(fmt.Sprintf("%s: %v", id, cause), o.c.now()))
	_ = o.p.emitter.Failed(o.ctx, id, d, cause)
}

func (o *observer) StepSkipped(id string, se *dag.SkippedError) {
	if se.Cause != "" {
		o.c.persist(o.ctx, o.p.recordFailure(fmt.Sprintf("%s: skipped, %s failed", id, se.Cause), o.c.now()))
	}
	_ = o.p.emitter.Skipped(o.ctx, id, se.Cause, se)
}
