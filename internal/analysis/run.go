package analysis

import (
	"context"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/progress"
)

// Run is a handle on one analysis generation.
type Run struct {
	Generation uint64

	agg  *progress.Aggregator
	done chan struct{}

	result *model.AnalysisResult
	err    error
}

// Progress is the single-consumer snapshot stream. It is closed after the
// final snapshot.
func (r *Run) Progress() <-chan model.AnalysisProgress {
	return r.agg.Snapshots()
}

// Done is closed once the run has settled.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run settles or ctx is done.
func (r *Run) Wait(ctx context.Context) (*model.AnalysisResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.result, r.err
	}
}

// Discarded counts completion events rejected as stale.
func (r *Run) Discarded() int64 {
	return r.agg.Discarded()
}

// Dropped counts progress snapshots superseded before being read.
func (r *Run) Dropped() int64 {
	return r.agg.Dropped()
}
