package analysis

import (
	"context"

	"github.com/rotisserie/eris"
)

// Autopilot walks a fresh controller through every stage with the
// collaborators' full output selected, then starts the analysis.
func Autopilot(ctx context.Context, c *Controller, url string) (*Run, error) {
	if _, err := c.Start(ctx, url); err != nil {
		return nil, eris.Wrap(err, "analysis: autopilot start")
	}
	if _, err := c.SelectCompetitors(ctx, nil); err != nil {
		return nil, eris.Wrap(err, "analysis: autopilot select competitors")
	}
	if _, err := c.SelectPersonas(ctx, nil); err != nil {
		return nil, eris.Wrap(err, "analysis: autopilot select personas")
	}
	run, err := c.Analyze(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: autopilot analyze")
	}
	return run, nil
}
