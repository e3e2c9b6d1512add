package analysis

import "github.com/rotisserie/eris"

var (
	// ErrValidation rejects an analysis before anything is dispatched.
	ErrValidation = eris.New("analysis: validation failed")
	// ErrInvalidTransition is returned when an operation does not apply to
	// the current stage.
	ErrInvalidTransition = eris.New("analysis: invalid stage transition")
	// ErrAnalysisInProgress guards against a second concurrent analysis.
	ErrAnalysisInProgress = eris.New("analysis: analysis already in progress")
	// ErrRunDiscarded is returned by Run.Wait and by interrupted stage calls
	// after a reset.
	ErrRunDiscarded = eris.New("analysis: run discarded by reset")
)
