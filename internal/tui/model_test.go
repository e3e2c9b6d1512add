package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

func snapshot(pct float64) model.AnalysisProgress {
	return model.AnalysisProgress{
		Stage:    model.StageAnalyzing,
		Progress: pct,
		Message:  "analyzing: 2 of 4 cells done",
		Prompts: []model.PromptProgress{{
			Prompt:    model.Prompt{ID: "p1", Text: "Best CRM for small teams?"},
			Providers: map[string]model.CellStatus{"openai": model.CellCompleted, "anthropic": model.CellRunning},
		}},
		PartialResults: []model.CompetitorRanking{
			{Name: "Northwind", IsOwn: true, Mentions: 2, VisibilityScore: 66.7},
			{Name: "Acme", Mentions: 1, VisibilityScore: 33.3},
		},
	}
}

func TestModel_SnapshotFlow(t *testing.T) {
	ch := make(chan model.AnalysisProgress, 1)
	want := &model.AnalysisResult{TotalMentions: 3}
	m := New(ch, func() (*model.AnalysisResult, error) { return want, nil }, nil)

	ch <- snapshot(50)
	msg := m.Init()()
	require.IsType(t, SnapshotReceived{}, msg)

	next, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	m = next.(Model)
	view := m.View()
	assert.Contains(t, view, "analyzing: 2 of 4 cells done")
	assert.Contains(t, view, "Best CRM for small teams?")
	assert.Contains(t, view, "anthropic:running")
	assert.Contains(t, view, "Northwind")

	close(ch)
	msg = cmd()
	require.IsType(t, StreamClosed{}, msg)

	next, cmd = m.Update(msg)
	m = next.(Model)
	msg = cmd()
	require.Equal(t, RunSettled{Result: want}, msg)

	next, cmd = m.Update(msg)
	m = next.(Model)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	res, err := m.Result()
	require.NoError(t, err)
	assert.Same(t, want, res)
	assert.Contains(t, m.View(), "3 mentions")
}

func TestModel_CancelOnce(t *testing.T) {
	calls := 0
	m := New(nil, nil, func() error {
		calls++
		return nil
	})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, calls)
	assert.Contains(t, next.View(), "cancelling")
}

func TestModel_ErrorOutcome(t *testing.T) {
	m := New(nil, nil, nil)
	next, _ := m.Update(RunSettled{Err: errors.New("run discarded")})
	assert.Contains(t, next.View(), "error: run discarded")
}

func TestModel_EmptyLeaderboard(t *testing.T) {
	m := New(nil, nil, nil)
	p := snapshot(0)
	p.PartialResults = nil
	next, _ := m.Update(SnapshotReceived{Progress: p})
	assert.Contains(t, next.View(), "no mentions yet")
}
