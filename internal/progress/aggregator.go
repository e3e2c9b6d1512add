// Package progress turns dispatch events into ordered progress snapshots and
// hands finished prompts to the scorer.
package progress

import (
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/dispatch"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/scorer"
)

// Folder is the scoring side of the aggregator.
type Folder interface {
	Fold(generation uint64, results ...model.ProviderResult) bool
	Rows() []scorer.RawRow
}

// Config describes the analysis an aggregator observes.
type Config struct {
	Generation  uint64
	Prompts     []model.Prompt
	Providers   []string
	Competitors []model.Competitor
	Scorer      Folder
	// Current reports the live generation; events from any other generation
	// are discarded. Nil means Generation never goes stale.
	Current func() uint64
}

// Summary is what remains after the event stream closes.
type Summary struct {
	Results   []model.ProviderResult
	Completed int
	Failed    int
	Pending   int
	Dropped   int64
	Discarded int64
	Stale     bool
}

// Aggregator consumes TaskCompletion events. It is single-use: call Run once.
type Aggregator struct {
	cfg Config

	observed []model.CellStatus
	results  []*model.ProviderResult
	terminal []int
	folded   []bool
	done     int
	failed   int
	seq      int
	ranking  []model.CompetitorRanking

	out       chan model.AnalysisProgress
	dropped   atomic.Int64
	discarded atomic.Int64
}

// New creates an aggregator.
func New(cfg Config) *Aggregator {
	cells := len(cfg.Prompts) * len(cfg.Providers)
	a := &Aggregator{
		cfg:      cfg,
		observed: make([]model.CellStatus, cells),
		results:  make([]*model.ProviderResult, cells),
		terminal: make([]int, len(cfg.Prompts)),
		folded:   make([]bool, len(cfg.Prompts)),
		out:      make(chan model.AnalysisProgress, 1),
	}
	a.ranking = a.reconcile()
	return a
}

// Snapshots is the single-consumer progress channel. A slow reader sees only
// the latest snapshot; the final one is always delivered, then the channel
// is closed.
func (a *Aggregator) Snapshots() <-chan model.AnalysisProgress {
	return a.out
}

// Dropped counts snapshots superseded before they were read.
func (a *Aggregator) Dropped() int64 {
	return a.dropped.Load()
}

// Discarded counts events rejected for carrying a stale generation.
func (a *Aggregator) Discarded() int64 {
	return a.discarded.Load()
}

// Run consumes events until the channel closes and returns the summary.
func (a *Aggregator) Run(events <-chan dispatch.TaskCompletion) Summary {
	a.publish(false)

	for ev := range events {
		if a.stale(ev.Generation) {
			a.discarded.Add(1)
			zap.L().Debug("progress: discarding stale event",
				zap.Uint64("generation", ev.Generation),
				zap.String("prompt_id", ev.PromptID),
				zap.String("provider", ev.Provider),
			)
			continue
		}
		if a.apply(ev) {
			a.publish(false)
		}
	}

	stale := a.stale(a.cfg.Generation)
	if !stale {
		// Cancelled runs leave prompts short of their barrier; their
		// finished cells still count.
		for qi := range a.cfg.Prompts {
			if !a.folded[qi] && a.terminal[qi] > 0 {
				a.fold(qi)
			}
		}
		a.ranking = a.reconcile()
	}
	a.publish(true)
	close(a.out)

	sum := Summary{
		Completed: a.done - a.failed,
		Failed:    a.failed,
		Pending:   len(a.observed) - a.done,
		Dropped:   a.dropped.Load(),
		Discarded: a.discarded.Load(),
		Stale:     stale,
	}
	for _, r := range a.results {
		if r != nil {
			sum.Results = append(sum.Results, *r)
		}
	}
	return sum
}

func (a *Aggregator) stale(generation uint64) bool {
	if generation != a.cfg.Generation {
		return true
	}
	return a.cfg.Current != nil && a.cfg.Current() != generation
}

// apply records a transition and reports whether anything changed.
func (a *Aggregator) apply(ev dispatch.TaskCompletion) bool {
	np := len(a.cfg.Providers)
	if ev.Cell.Prompt < 0 || ev.Cell.Prompt >= len(a.cfg.Prompts) || ev.Cell.Provider < 0 || ev.Cell.Provider >= np {
		return false
	}
	idx := ev.Cell.Prompt*np + ev.Cell.Provider
	prev := a.observed[idx]
	if prev.Terminal() || ev.Status <= prev {
		return false
	}
	a.observed[idx] = ev.Status
	if !ev.Status.Terminal() {
		return true
	}

	a.done++
	if ev.Status == model.CellFailed {
		a.failed++
	}
	a.results[idx] = ev.Result
	a.terminal[ev.Cell.Prompt]++
	if a.terminal[ev.Cell.Prompt] == np {
		a.fold(ev.Cell.Prompt)
		a.ranking = a.reconcile()
	}
	return true
}

func (a *Aggregator) fold(prompt int) {
	np := len(a.cfg.Providers)
	batch := make([]model.ProviderResult, 0, np)
	for pi := 0; pi < np; pi++ {
		if r := a.results[prompt*np+pi]; r != nil {
			batch = append(batch, *r)
		}
	}
	a.folded[prompt] = true
	if a.cfg.Scorer == nil {
		return
	}
	if !a.cfg.Scorer.Fold(a.cfg.Generation, batch...) {
		a.discarded.Add(int64(len(batch)))
	}
}

func (a *Aggregator) reconcile() []model.CompetitorRanking {
	var rows []scorer.RawRow
	if a.cfg.Scorer != nil {
		rows = a.cfg.Scorer.Rows()
	}
	return scorer.Reconcile(scorer.Input{
		Rows:      rows,
		Declared:  a.cfg.Competitors,
		Providers: a.cfg.Providers,
	}).Rankings
}

// percent rounds to one decimal but never reports 100 while a cell is
// outstanding.
func percent(done, total int) float64 {
	if total <= 0 || done >= total {
		return 100
	}
	return min(math.Round(float64(done)/float64(total)*1000)/10, 99.9)
}

func (a *Aggregator) snapshot(final bool) model.AnalysisProgress {
	total := len(a.observed)
	pct := percent(a.done, total)

	np := len(a.cfg.Providers)
	prompts := make([]model.PromptProgress, len(a.cfg.Prompts))
	for qi, p := range a.cfg.Prompts {
		statuses := make(map[string]model.CellStatus, np)
		for pi, name := range a.cfg.Providers {
			statuses[name] = a.observed[qi*np+pi]
		}
		prompts[qi] = model.PromptProgress{Prompt: p, Providers: statuses}
	}

	msg := fmt.Sprintf("%d of %d responses received", a.done, total)
	switch {
	case final && a.done == total:
		msg = fmt.Sprintf("analysis complete: %d responses, %d failed", total, a.failed)
	case final:
		msg = fmt.Sprintf("analysis stopped: %d of %d responses received", a.done, total)
	}

	a.seq++
	return model.AnalysisProgress{
		Stage:          model.StageAnalyzing,
		Progress:       pct,
		Message:        msg,
		Competitors:    append([]model.Competitor(nil), a.cfg.Competitors...),
		Prompts:        prompts,
		PartialResults: append([]model.CompetitorRanking(nil), a.ranking...),
		Sequence:       a.seq,
		Final:          final,
	}
}

// publish never blocks: an unread snapshot is replaced by the newer one.
// Run is the only sender, so the send after draining always has room.
func (a *Aggregator) publish(final bool) {
	snap := a.snapshot(final)
	select {
	case a.out <- snap:
		return
	default:
	}
	select {
	case old := <-a.out:
		a.dropped.Add(1)
		zap.L().Debug("progress: dropped superseded snapshot",
			zap.Int("sequence", old.Sequence),
			zap.Uint64("generation", a.cfg.Generation),
		)
	default:
	}
	a.out <- snap
}
