// Package dispatch runs every (prompt, provider) cell of an analysis against
// its provider, one bounded pool per provider, and reports each cell
// transition as a TaskCompletion.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/provider"
)

// TaskCompletion reports one cell transition. Result is set only on the
// terminal transition.
type TaskCompletion struct {
	Generation uint64
	Cell       model.Cell
	PromptID   string
	Provider   string
	Status     model.CellStatus
	Result     *model.ProviderResult
}

// Options tunes the per-provider pools.
type Options struct {
	// Concurrency caps in-flight calls per provider name.
	Concurrency map[string]int
	// DefaultConcurrency applies to providers absent from Concurrency.
	DefaultConcurrency int
	// Timeouts bounds each call per provider name.
	Timeouts map[string]time.Duration
	// DefaultTimeout applies to providers absent from Timeouts.
	DefaultTimeout time.Duration
}

func (o Options) concurrency(name string) int {
	if n := o.Concurrency[name]; n > 0 {
		return n
	}
	if o.DefaultConcurrency > 0 {
		return o.DefaultConcurrency
	}
	return 1
}

func (o Options) timeout(name string) time.Duration {
	if t := o.Timeouts[name]; t > 0 {
		return t
	}
	if o.DefaultTimeout > 0 {
		return o.DefaultTimeout
	}
	return 90 * time.Second
}

// Dispatcher fans prompts out to providers.
type Dispatcher struct {
	clients []provider.Client
	opts    Options
	now     func() time.Time
}

// New creates a dispatcher over the given provider clients.
func New(clients []provider.Client, opts Options) *Dispatcher {
	return &Dispatcher{clients: clients, opts: opts, now: time.Now}
}

// Providers returns provider names in dispatch order.
func (d *Dispatcher) Providers() []string {
	names := make([]string, len(d.clients))
	for i, c := range d.clients {
		names[i] = c.Name()
	}
	return names
}

// Execution is one running dispatch.
type Execution struct {
	Generation uint64
	Prompts    []model.Prompt
	Providers  []string

	matrix *Matrix
	events chan TaskCompletion
}

// Events yields every cell transition and is closed once all pools have
// drained. The buffer holds two events per cell so tasks never block on it.
func (e *Execution) Events() <-chan TaskCompletion {
	return e.events
}

// Matrix returns the live completion status table.
func (e *Execution) Matrix() *Matrix {
	return e.matrix
}

// Dispatch starts one task per (prompt, provider) cell and returns
// immediately. Cancelling ctx stops new tasks from being issued; calls
// already in flight run to completion or to their own timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, generation uint64, competitors []model.Competitor, prompts []model.Prompt) *Execution {
	exec := &Execution{
		Generation: generation,
		Prompts:    prompts,
		Providers:  d.Providers(),
		matrix:     NewMatrix(len(prompts), len(d.clients)),
		events:     make(chan TaskCompletion, 2*len(prompts)*len(d.clients)),
	}
	entities := provider.EntitiesFor(competitors)

	var pools sync.WaitGroup
	for pi, client := range d.clients {
		pools.Add(1)
		go func() {
			defer pools.Done()
			d.runPool(ctx, exec, pi, client, entities)
		}()
	}

	go func() {
		pools.Wait()
		close(exec.events)
	}()

	return exec
}

func (d *Dispatcher) runPool(ctx context.Context, exec *Execution, pi int, client provider.Client, entities []provider.Entity) {
	name := client.Name()
	g := new(errgroup.Group)
	g.SetLimit(d.opts.concurrency(name))

	for qi, prompt := range exec.Prompts {
		if ctx.Err() != nil {
			break
		}
		cell := model.Cell{Prompt: qi, Provider: pi}
		g.Go(func() error {
			// A slot may free up after cancellation; the cell then stays pending.
			if ctx.Err() != nil {
				return nil
			}
			d.runTask(ctx, exec, cell, prompt, client, entities)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		pending := 0
		for qi := range exec.Prompts {
			if exec.matrix.Status(model.Cell{Prompt: qi, Provider: pi}) == model.CellPending {
				pending++
			}
		}
		zap.L().Info("dispatch: provider pool stopped early",
			zap.String("provider", name),
			zap.Uint64("generation", exec.Generation),
			zap.Int("cells_not_issued", pending),
		)
	}
}

func (d *Dispatcher) runTask(ctx context.Context, exec *Execution, cell model.Cell, prompt model.Prompt, client provider.Client, entities []provider.Entity) {
	name := client.Name()
	if !exec.matrix.Start(cell) {
		return
	}
	exec.events <- TaskCompletion{
		Generation: exec.Generation,
		Cell:       cell,
		PromptID:   prompt.ID,
		Provider:   name,
		Status:     model.CellRunning,
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.timeout(name))
	defer cancel()

	start := d.now()
	resp, err := client.Query(callCtx, provider.Request{
		PromptID: prompt.ID,
		Prompt:   prompt.Text,
		Entities: entities,
	})

	if err == nil && resp == nil {
		err = &provider.Failure{Kind: provider.FailureInvalidResponse, Provider: name}
	}

	result := &model.ProviderResult{
		PromptID:    prompt.ID,
		Provider:    name,
		DurationMs:  d.now().Sub(start).Milliseconds(),
		CompletedAt: d.now().UTC(),
	}
	status := model.CellCompleted
	if err != nil {
		status = model.CellFailed
		failResult(result, name, err)
		zap.L().Warn("dispatch: cell failed",
			zap.String("provider", name),
			zap.String("prompt_id", prompt.ID),
			zap.Uint64("generation", exec.Generation),
			zap.String("kind", result.FailureKind),
			zap.Error(err),
		)
	} else {
		result.Status = model.ResultCompleted
		result.Model = resp.Model
		result.Answer = resp.Answer
		result.Mentions = resp.Mentions
		result.FromCache = resp.FromCache
		result.InputTokens = resp.InputTokens
		result.OutputTokens = resp.OutputTokens
	}

	if !exec.matrix.Finish(cell, status) {
		return
	}
	exec.events <- TaskCompletion{
		Generation: exec.Generation,
		Cell:       cell,
		PromptID:   prompt.ID,
		Provider:   name,
		Status:     status,
		Result:     result,
	}
}

func failResult(result *model.ProviderResult, name string, err error) {
	f, ok := provider.AsFailure(err)
	if !ok {
		kind := provider.FailureUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = provider.FailureTimeout
		}
		f = &provider.Failure{Kind: kind, Provider: name, Err: err}
	}
	result.Status = model.ResultFailed
	if f.Kind == provider.FailureTimeout {
		result.Status = model.ResultTimedOut
	}
	result.FailureKind = string(f.Kind)
	result.Error = f.Error()
}
