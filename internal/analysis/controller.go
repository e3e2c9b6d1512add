// Package analysis owns the staged brand-visibility workflow: it drives the
// external collaborators, validates the analysis input and runs the
// dispatch, progress and scoring engine for one generation at a time.
package analysis

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/progress"
	"github.com/sells-group/visibility-cli/internal/scorer"
)

// Snapshot is an immutable copy of the controller state.
type Snapshot struct {
	Generation  uint64                `json:"generation"`
	Stage       model.Stage           `json:"stage"`
	FailedStage model.Stage           `json:"failed_stage,omitempty"`
	Error       string                `json:"error,omitempty"`
	URL         string                `json:"url,omitempty"`
	Company     *model.Company        `json:"company,omitempty"`
	Candidates  []model.Competitor    `json:"candidates,omitempty"`
	Competitors []model.Competitor    `json:"competitors,omitempty"`
	Personas    []model.Persona       `json:"personas,omitempty"`
	Selected    []model.Persona       `json:"selected_personas,omitempty"`
	Prompts     []model.Prompt        `json:"prompts,omitempty"`
	Result      *model.AnalysisResult `json:"result,omitempty"`
}

type state struct {
	stage        model.Stage
	failedStage  model.Stage
	err          error
	url          string
	company      *model.Company
	candidates   []model.Competitor
	competitors  []model.Competitor
	personas     []model.Persona
	selected     []model.Persona
	prompts      []model.Prompt
	promptsReady bool
	result       *model.AnalysisResult
	rows         []scorer.RawRow
	providers    []string
}

// Controller is the analysis stage machine. All state is private; every
// transition returns a fresh Snapshot.
type Controller struct {
	collab Collaborators
	engine *Engine

	mu         sync.Mutex
	st         state
	generation atomic.Uint64
	active     *Run
	cancel     context.CancelFunc
	cancelled  bool
}

// NewController creates an idle controller.
func NewController(collab Collaborators, engine *Engine) *Controller {
	return &Controller{collab: collab, engine: engine, st: state{stage: model.StageIdle}}
}

// Generation returns the live generation id.
func (c *Controller) Generation() uint64 {
	return c.generation.Load()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Result returns the terminal result once the controller is in Results.
func (c *Controller) Result() (*model.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.stage != model.StageResults || c.st.result == nil {
		return nil, false
	}
	r := *c.st.result
	return &r, true
}

// Start scrapes the company website and identifies competitor candidates,
// leaving the controller in SelectingCompetitors.
func (c *Controller) Start(ctx context.Context, url string) (Snapshot, error) {
	c.mu.Lock()
	if c.st.stage != model.StageIdle {
		defer c.mu.Unlock()
		return c.snapshotLocked(), c.invalid("start")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		defer c.mu.Unlock()
		return c.snapshotLocked(), eris.Wrap(ErrValidation, "company url is required")
	}
	c.st.url = url
	gen := c.enterLocked(model.StageScraping)
	c.mu.Unlock()

	return c.scrape(ctx, gen, url)
}

func (c *Controller) scrape(ctx context.Context, gen uint64, url string) (Snapshot, error) {
	company, err := c.collab.Scraper.Scrape(ctx, url)
	if err == nil && (company == nil || strings.TrimSpace(company.Name) == "") {
		err = eris.New("analysis: scraper returned no company")
	}

	c.mu.Lock()
	if done, snap, derr := c.settleLocked(gen, model.StageScraping, err); done {
		c.mu.Unlock()
		return snap, derr
	}
	co := *company
	if co.URL == "" {
		co.URL = url
	}
	c.st.company = &co
	c.enterLocked(model.StageIdentifyingCompetitors)
	c.mu.Unlock()

	return c.identify(ctx, gen, co)
}

func (c *Controller) identify(ctx context.Context, gen uint64, company model.Company) (Snapshot, error) {
	candidates, err := c.collab.Competitors.IdentifyCompetitors(ctx, company)

	c.mu.Lock()
	defer c.mu.Unlock()
	if done, snap, derr := c.settleLocked(gen, model.StageIdentifyingCompetitors, err); done {
		return snap, derr
	}
	c.st.candidates = withOwn(company, candidates)
	c.transitionLocked(model.StageSelectingCompetitors)
	return c.snapshotLocked(), nil
}

// AddCompetitor appends a candidate while competitors are being selected.
func (c *Controller) AddCompetitor(comp model.Competitor) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.stage != model.StageSelectingCompetitors {
		return c.snapshotLocked(), c.invalid("add competitor")
	}
	if strings.TrimSpace(comp.Name) == "" {
		return c.snapshotLocked(), eris.Wrap(ErrValidation, "competitor name is required")
	}
	key := scorer.NormalizeName(comp.Name)
	for _, existing := range c.st.candidates {
		if scorer.NormalizeName(existing.Name) == key {
			return c.snapshotLocked(), nil
		}
	}
	comp.IsOwn = false
	c.st.candidates = append(c.st.candidates, comp)
	return c.snapshotLocked(), nil
}

// RemoveCompetitor drops a candidate by name. The company row stays.
func (c *Controller) RemoveCompetitor(name string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.stage != model.StageSelectingCompetitors {
		return c.snapshotLocked(), c.invalid("remove competitor")
	}
	key := scorer.NormalizeName(name)
	kept := c.st.candidates[:0:0]
	for _, comp := range c.st.candidates {
		if comp.IsOwn || scorer.NormalizeName(comp.Name) != key {
			kept = append(kept, comp)
		}
	}
	c.st.candidates = kept
	return c.snapshotLocked(), nil
}

// SelectCompetitors fixes the tracked set (nil selects every candidate) and
// generates personas, leaving the controller in SelectingPersonas.
func (c *Controller) SelectCompetitors(ctx context.Context, names []string) (Snapshot, error) {
	c.mu.Lock()
	if c.st.stage != model.StageSelectingCompetitors {
		defer c.mu.Unlock()
		return c.snapshotLocked(), c.invalid("select competitors")
	}
	c.st.competitors = pickCompetitors(*c.st.company, c.st.candidates, names)
	c.st.personas = nil
	gen := c.enterLocked(model.StageSelectingPersonas)
	company, competitors := *c.st.company, cloneCompetitors(c.st.competitors)
	c.mu.Unlock()

	return c.generatePersonas(ctx, gen, company, competitors)
}

func (c *Controller) generatePersonas(ctx context.Context, gen uint64, company model.Company, competitors []model.Competitor) (Snapshot, error) {
	personas, err := c.collab.Personas.GeneratePersonas(ctx, company, competitors)

	c.mu.Lock()
	defer c.mu.Unlock()
	if done, snap, derr := c.settleLocked(gen, model.StageSelectingPersonas, err); done {
		return snap, derr
	}
	if personas == nil {
		personas = []model.Persona{}
	}
	c.st.personas = personas
	return c.snapshotLocked(), nil
}

// SelectPersonas picks personas by id (nil selects all) and generates
// prompts, leaving the controller in GeneratingPrompts until Analyze.
func (c *Controller) SelectPersonas(ctx context.Context, ids []string) (Snapshot, error) {
	c.mu.Lock()
	if c.st.stage != model.StageSelectingPersonas || c.st.personas == nil {
		defer c.mu.Unlock()
		return c.snapshotLocked(), c.invalid("select personas")
	}
	c.st.selected = pickPersonas(c.st.personas, ids)
	c.st.prompts = nil
	c.st.promptsReady = false
	gen := c.enterLocked(model.StageGeneratingPrompts)
	company, competitors := *c.st.company, cloneCompetitors(c.st.competitors)
	personas := append([]model.Persona(nil), c.st.selected...)
	c.mu.Unlock()

	return c.generatePrompts(ctx, gen, company, competitors, personas)
}

func (c *Controller) generatePrompts(ctx context.Context, gen uint64, company model.Company, competitors []model.Competitor, personas []model.Persona) (Snapshot, error) {
	prompts, err := c.collab.Prompts.GeneratePrompts(ctx, company, competitors, personas)

	c.mu.Lock()
	defer c.mu.Unlock()
	if done, snap, derr := c.settleLocked(gen, model.StageGeneratingPrompts, err); done {
		return snap, derr
	}
	c.st.prompts = normalizePrompts(prompts)
	c.st.promptsReady = true
	return c.snapshotLocked(), nil
}

// AddPrompt appends a user-authored prompt before dispatch.
func (c *Controller) AddPrompt(text string, category model.PromptCategory) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.stage != model.StageGeneratingPrompts || !c.st.promptsReady {
		return c.snapshotLocked(), c.invalid("add prompt")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return c.snapshotLocked(), eris.Wrap(ErrValidation, "prompt text is required")
	}
	if !category.Valid() {
		category = model.CategoryRecommendations
	}
	c.st.prompts = append(c.st.prompts, model.Prompt{
		ID:       uuid.NewString(),
		Text:     text,
		Category: category,
		Source:   model.SourceUser,
	})
	return c.snapshotLocked(), nil
}

// RemovePrompt drops a prompt by id before dispatch.
func (c *Controller) RemovePrompt(id string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.stage != model.StageGeneratingPrompts || !c.st.promptsReady {
		return c.snapshotLocked(), c.invalid("remove prompt")
	}
	kept := c.st.prompts[:0:0]
	for _, p := range c.st.prompts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	c.st.prompts = kept
	return c.snapshotLocked(), nil
}

// Analyze validates the input and dispatches every (prompt, provider) cell.
// At most one analysis runs per controller.
func (c *Controller) Analyze(ctx context.Context) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.st.stage {
	case model.StageAnalyzing:
		return nil, ErrAnalysisInProgress
	case model.StageGeneratingPrompts:
		if !c.st.promptsReady {
			return nil, c.invalid("analyze")
		}
	default:
		return nil, c.invalid("analyze")
	}
	if err := c.validateLocked(); err != nil {
		return nil, err
	}

	gen := c.generation.Add(1)
	c.transitionLocked(model.StageAnalyzing)
	c.cancelled = false
	c.st.providers = c.engine.Providers()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	company := *c.st.company
	competitors := cloneCompetitors(c.st.competitors)
	prompts := append([]model.Prompt(nil), c.st.prompts...)

	agg, summary := c.engine.start(runCtx, job{
		generation:  gen,
		company:     company,
		competitors: competitors,
		prompts:     prompts,
		current:     c.Generation,
	})
	run := &Run{Generation: gen, agg: agg, done: make(chan struct{})}
	c.active = run
	c.cancel = cancel

	go func() {
		sum := <-summary
		cancel()
		c.finish(run, company, competitors, prompts, sum)
	}()
	return run, nil
}

func (c *Controller) validateLocked() error {
	if c.st.company == nil || strings.TrimSpace(c.st.company.Name) == "" {
		return eris.Wrap(ErrValidation, "company is required")
	}
	if len(c.st.prompts) == 0 {
		return eris.Wrap(ErrValidation, "at least one prompt is required")
	}
	hasOwn := false
	for _, comp := range c.st.competitors {
		if comp.IsOwn {
			hasOwn = true
			break
		}
	}
	if !hasOwn {
		return eris.Wrap(ErrValidation, "company must be part of the competitor set")
	}
	if len(c.engine.Providers()) == 0 {
		return eris.Wrap(ErrValidation, "no providers enabled")
	}
	return nil
}

func (c *Controller) finish(run *Run, company model.Company, competitors []model.Competitor, prompts []model.Prompt, sum progress.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(run.done)

	if sum.Stale || run.Generation != c.generation.Load() {
		run.err = ErrRunDiscarded
		zap.L().Info("analysis: discarded run settled",
			zap.Uint64("generation", run.Generation),
			zap.Int64("events_discarded", sum.Discarded),
		)
		return
	}

	c.st.rows = c.engine.Scorer().Rows()
	result := c.engine.buildResult(company, competitors, prompts, c.st.providers, c.st.rows, sum)
	result.Cancelled = result.Cancelled || c.cancelled

	if !hasOwnRanking(result) {
		c.failLocked(model.StageAnalyzing, eris.New("analysis: ranking is missing the company"))
		run.err = c.st.err
		c.active, c.cancel = nil, nil
		return
	}

	c.st.result = result
	c.transitionLocked(model.StageResults)
	c.active, c.cancel = nil, nil

	r := *result
	run.result = &r
}

// Cancel stops issuing new cells. Calls in flight finish and the partial
// result still reaches Results.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.stage != model.StageAnalyzing || c.cancel == nil {
		return c.invalid("cancel")
	}
	c.cancelled = true
	c.cancel()
	zap.L().Info("analysis: cancel requested", zap.Uint64("generation", c.generation.Load()))
	return nil
}

// Reset cancels any active dispatch, moves to a new generation and returns
// to Idle. Late events from the old generation are discarded.
func (c *Controller) Reset() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	gen := c.generation.Add(1)
	c.engine.Scorer().Reset(gen)
	c.active, c.cancel, c.cancelled = nil, nil, false
	c.st = state{stage: model.StageIdle}
	zap.L().Info("analysis: reset", zap.Uint64("generation", gen))
	return c.snapshotLocked()
}

// Retry re-enters the stage that failed. A failed analysis goes back to
// GeneratingPrompts so it can be analyzed again.
func (c *Controller) Retry(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.st.stage != model.StageFailed {
		defer c.mu.Unlock()
		return c.snapshotLocked(), c.invalid("retry")
	}
	failed := c.st.failedStage
	if failed != model.StageScraping && c.st.company == nil {
		defer c.mu.Unlock()
		return c.snapshotLocked(), c.invalid("retry")
	}

	gen := c.enterLocked(failed)
	url := c.st.url
	var company model.Company
	if c.st.company != nil {
		company = *c.st.company
	}
	competitors := cloneCompetitors(c.st.competitors)
	personas := append([]model.Persona(nil), c.st.selected...)
	c.mu.Unlock()

	switch failed {
	case model.StageScraping:
		return c.scrape(ctx, gen, url)
	case model.StageIdentifyingCompetitors:
		return c.identify(ctx, gen, company)
	case model.StageSelectingPersonas:
		return c.generatePersonas(ctx, gen, company, competitors)
	case model.StageGeneratingPrompts:
		return c.generatePrompts(ctx, gen, company, competitors, personas)
	default:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.transitionLocked(model.StageGeneratingPrompts)
		return c.snapshotLocked(), nil
	}
}

// UpdateCompetitor edits a tracked competitor identity in Results and
// reconciles the retained rows again.
func (c *Controller) UpdateCompetitor(name string, updated model.Competitor) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.stage != model.StageResults || c.st.result == nil {
		return c.snapshotLocked(), c.invalid("update competitor")
	}
	if strings.TrimSpace(updated.Name) == "" {
		return c.snapshotLocked(), eris.Wrap(ErrValidation, "competitor name is required")
	}

	key := scorer.NormalizeName(name)
	found := false
	competitors := cloneCompetitors(c.st.competitors)
	for i, comp := range competitors {
		if scorer.NormalizeName(comp.Name) == key {
			updated.IsOwn = comp.IsOwn
			competitors[i] = updated
			found = true
			break
		}
	}
	if !found {
		competitors = append(competitors, model.Competitor{Name: updated.Name, URL: updated.URL, Favicon: updated.Favicon, Description: updated.Description})
	}
	c.st.competitors = competitors

	rec := scorer.Reconcile(scorer.Input{Rows: c.st.rows, Declared: competitors, Providers: c.st.providers})
	result := *c.st.result
	result.Competitors = rec.Rankings
	result.ProviderComparison = rec.Comparison
	result.TotalMentions = rec.TotalMentions
	c.st.result = &result
	return c.snapshotLocked(), nil
}

// enterLocked moves to a working stage and returns the generation the
// collaborator call belongs to.
func (c *Controller) enterLocked(stage model.Stage) uint64 {
	c.st.err = nil
	c.st.failedStage = ""
	c.transitionLocked(stage)
	return c.generation.Load()
}

// settleLocked handles the end of a collaborator call. It reports done when
// the caller should return immediately.
func (c *Controller) settleLocked(gen uint64, stage model.Stage, err error) (bool, Snapshot, error) {
	if gen != c.generation.Load() {
		return true, c.snapshotLocked(), ErrRunDiscarded
	}
	if err != nil {
		c.failLocked(stage, err)
		return true, c.snapshotLocked(), c.st.err
	}
	return false, Snapshot{}, nil
}

func (c *Controller) failLocked(stage model.Stage, err error) {
	c.st.failedStage = stage
	c.st.err = eris.Wrapf(err, "analysis: %s", stage)
	c.transitionLocked(model.StageFailed)
	zap.L().Error("analysis: stage failed",
		zap.String("stage", string(stage)),
		zap.Uint64("generation", c.generation.Load()),
		zap.Error(err),
	)
}

func (c *Controller) transitionLocked(to model.Stage) {
	from := c.st.stage
	c.st.stage = to
	zap.L().Info("analysis: stage",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Uint64("generation", c.generation.Load()),
	)
}

func (c *Controller) invalid(op string) error {
	return eris.Wrapf(ErrInvalidTransition, "%s during %s", op, c.st.stage)
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Generation:  c.generation.Load(),
		Stage:       c.st.stage,
		FailedStage: c.st.failedStage,
		URL:         c.st.url,
		Candidates:  cloneCompetitors(c.st.candidates),
		Competitors: cloneCompetitors(c.st.competitors),
		Personas:    append([]model.Persona(nil), c.st.personas...),
		Selected:    append([]model.Persona(nil), c.st.selected...),
		Prompts:     append([]model.Prompt(nil), c.st.prompts...),
	}
	if c.st.err != nil {
		s.Error = c.st.err.Error()
	}
	if c.st.company != nil {
		co := *c.st.company
		s.Company = &co
	}
	if c.st.result != nil {
		r := *c.st.result
		s.Result = &r
	}
	return s
}
