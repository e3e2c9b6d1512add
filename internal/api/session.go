package api

import (
	"sync"
	"time"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/model"
)

// session is one analysis owned by the API. Progress snapshots are fanned
// out to any number of event-stream readers through a replaceable channel
// that is closed on every change.
type session struct {
	id      string
	ctrl    *analysis.Controller
	created time.Time

	mu         sync.Mutex
	latest     *model.AnalysisProgress
	changed    chan struct{}
	finished   bool
	finishedAt time.Time
	result     *model.AnalysisResult
	err        error
}

func newSession(id string, ctrl *analysis.Controller) *session {
	return &session{id: id, ctrl: ctrl, created: time.Now().UTC(), changed: make(chan struct{})}
}

func (s *session) publish(p model.AnalysisProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &p
	s.notifyLocked()
}

func (s *session) finish(result *model.AnalysisResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.finishedAt = time.Now().UTC()
	s.result, s.err = result, err
	s.notifyLocked()
}

// settledAt reports when the session finished, if it has.
func (s *session) settledAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt, s.finished
}

func (s *session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// view is a consistent copy of the session state plus the channel that
// will be closed on the next change.
type view struct {
	latest   *model.AnalysisProgress
	finished bool
	result   *model.AnalysisResult
	err      error
	changed  <-chan struct{}
}

func (s *session) view() view {
	s.mu.Lock()
	defer s.mu.Unlock()
	return view{
		latest:   s.latest,
		finished: s.finished,
		result:   s.result,
		err:      s.err,
		changed:  s.changed,
	}
}
