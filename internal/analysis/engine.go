package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/cost"
	"github.com/sells-group/visibility-cli/internal/dispatch"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/progress"
	"github.com/sells-group/visibility-cli/internal/scorer"
)

// Engine wires dispatcher, aggregator and scorer together for one
// generation at a time.
type Engine struct {
	dispatcher *dispatch.Dispatcher
	scorer     *scorer.Scorer
	costs      *cost.Calculator
}

// NewEngine creates an engine over a dispatcher, pricing usage with the
// default rates.
func NewEngine(d *dispatch.Dispatcher) *Engine {
	return &Engine{dispatcher: d, scorer: scorer.New(0), costs: cost.NewCalculator(cost.DefaultRates())}
}

// Providers returns the provider names in dispatch order.
func (e *Engine) Providers() []string {
	return e.dispatcher.Providers()
}

// Scorer exposes the running accumulator.
func (e *Engine) Scorer() *scorer.Scorer {
	return e.scorer
}

type job struct {
	generation  uint64
	company     model.Company
	competitors []model.Competitor
	prompts     []model.Prompt
	current     func() uint64
}

// start dispatches a job. The returned channel yields the summary once every
// cell has drained; the aggregator's snapshots are live until then.
func (e *Engine) start(ctx context.Context, j job) (*progress.Aggregator, <-chan progress.Summary) {
	e.scorer.Reset(j.generation)
	exec := e.dispatcher.Dispatch(ctx, j.generation, j.competitors, j.prompts)

	agg := progress.New(progress.Config{
		Generation:  j.generation,
		Prompts:     j.prompts,
		Providers:   exec.Providers,
		Competitors: j.competitors,
		Scorer:      e.scorer,
		Current:     j.current,
	})

	out := make(chan progress.Summary, 1)
	go func() {
		start := time.Now()
		sum := agg.Run(exec.Events())
		zap.L().Info("analysis: dispatch drained",
			zap.Uint64("generation", j.generation),
			zap.Int("completed", sum.Completed),
			zap.Int("failed", sum.Failed),
			zap.Int("not_issued", sum.Pending),
			zap.Int64("snapshots_dropped", sum.Dropped),
			zap.Int64("events_discarded", sum.Discarded),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		out <- sum
	}()
	return agg, out
}

// buildResult assembles the terminal result from retained rows.
func (e *Engine) buildResult(company model.Company, competitors []model.Competitor, prompts []model.Prompt, providers []string, rows []scorer.RawRow, sum progress.Summary) *model.AnalysisResult {
	rec := scorer.Reconcile(scorer.Input{Rows: rows, Declared: competitors, Providers: providers})
	return &model.AnalysisResult{
		Company:            company,
		Competitors:        rec.Rankings,
		ProviderComparison: rec.Comparison,
		Prompts:            append([]model.Prompt(nil), prompts...),
		Responses:          sum.Results,
		TotalMentions:      rec.TotalMentions,
		FailedCells:        sum.Failed,
		Cancelled:          sum.Pending > 0,
		Usage:              e.costs.Summarize(sum.Results),
	}
}
