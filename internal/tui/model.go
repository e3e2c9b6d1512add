// Package tui renders a running analysis in the terminal. It consumes the
// progress snapshot stream and finishes once the run settles.
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sells-group/visibility-cli/internal/model"
)

// SnapshotReceived carries one progress snapshot.
type SnapshotReceived struct {
	Progress model.AnalysisProgress
}

// StreamClosed is sent once the snapshot channel is closed.
type StreamClosed struct{}

// RunSettled carries the terminal outcome.
type RunSettled struct {
	Result *model.AnalysisResult
	Err    error
}

const leaderboardSize = 5

// Model is the bubbletea model for one analysis run.
type Model struct {
	snapshots <-chan model.AnalysisProgress
	wait      func() (*model.AnalysisResult, error)
	cancel    func() error

	bar        progress.Model
	latest     *model.AnalysisProgress
	result     *model.AnalysisResult
	err        error
	cancelling bool
	done       bool
}

// New creates a model. wait blocks until the run settles; cancel asks the
// run to stop issuing work.
func New(snapshots <-chan model.AnalysisProgress, wait func() (*model.AnalysisResult, error), cancel func() error) Model {
	return Model{
		snapshots: snapshots,
		wait:      wait,
		cancel:    cancel,
		bar:       progress.New(progress.WithDefaultGradient()),
	}
}

// Result returns the outcome once the model has finished.
func (m Model) Result() (*model.AnalysisResult, error) {
	return m.result, m.err
}

func (m Model) Init() tea.Cmd {
	return nextSnapshot(m.snapshots)
}

func nextSnapshot(ch <-chan model.AnalysisProgress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return StreamClosed{}
		}
		return SnapshotReceived{Progress: p}
	}
}

func (m Model) awaitResult() tea.Cmd {
	return func() tea.Msg {
		res, err := m.wait()
		return RunSettled{Result: res, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotReceived:
		p := msg.Progress
		m.latest = &p
		return m, nextSnapshot(m.snapshots)

	case StreamClosed:
		return m, m.awaitResult()

	case RunSettled:
		m.result, m.err = msg.Result, msg.Err
		m.done = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.bar.Width = max(msg.Width-4, 10)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.cancelling && m.cancel != nil {
				m.cancelling = true
				// A run that already settled has nothing to cancel.
				_ = m.cancel()
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Brand visibility analysis"))
	b.WriteString("\n\n")

	pct := 0.0
	if m.latest != nil {
		pct = m.latest.Progress
	}
	b.WriteString(m.bar.ViewAs(pct / 100))
	b.WriteString("\n")

	if m.latest != nil {
		b.WriteString(mutedStyle.Render(m.latest.Message))
		b.WriteString("\n\n")
		b.WriteString(renderGrid(m.latest.Prompts))
		b.WriteString("\n")
		b.WriteString(renderLeaderboard(m.latest.PartialResults))
	}

	switch {
	case m.err != nil:
		b.WriteString("\n" + errorStyle.Render("error: "+m.err.Error()) + "\n")
	case m.done && m.result != nil:
		b.WriteString(fmt.Sprintf("\n%d mentions across %d responses, %d failed cells\n",
			m.result.TotalMentions, len(m.result.Responses), m.result.FailedCells))
	case m.cancelling:
		b.WriteString("\n" + mutedStyle.Render("cancelling: waiting for calls in flight") + "\n")
	default:
		b.WriteString("\n" + mutedStyle.Render("q: stop issuing new prompts") + "\n")
	}
	return b.String()
}

func renderGrid(prompts []model.PromptProgress) string {
	var b strings.Builder
	for _, pp := range prompts {
		text := pp.Prompt.Text
		if len([]rune(text)) > 48 {
			text = string([]rune(text)[:47]) + "…"
		}
		b.WriteString(fmt.Sprintf("%-48s", text))
		for _, name := range sortedKeys(pp.Providers) {
			status := pp.Providers[name].String()
			b.WriteString("  ")
			b.WriteString(statusStyles[status].Render(name + ":" + status))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderLeaderboard(rows []model.CompetitorRanking) string {
	if len(rows) == 0 {
		return mutedStyle.Render("no mentions yet") + "\n"
	}
	var b strings.Builder
	for i, r := range rows {
		if i == leaderboardSize {
			break
		}
		line := fmt.Sprintf("%d. %-24s %5.1f%%  (%d mentions)", i+1, r.Name, r.VisibilityScore, r.Mentions)
		if r.IsOwn {
			line = ownStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func sortedKeys(m map[string]model.CellStatus) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
