package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/model"
)

// Run shows the analysis until it settles and returns its outcome.
func Run(ctx context.Context, run *analysis.Run, cancel func() error) (*model.AnalysisResult, error) {
	m := New(run.Progress(), func() (*model.AnalysisResult, error) {
		return run.Wait(ctx)
	}, cancel)

	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, eris.Wrap(err, "tui: run program")
	}
	return final.(Model).Result()
}
