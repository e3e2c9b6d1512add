// Package api exposes brand-visibility analyses over HTTP. Each POSTed plan
// becomes a session with its own stage controller; progress is streamed as
// Server-Sent Events.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/plan"
)

const (
	maxPlanBytes = 1 << 20

	defaultSessionTTL  = time.Hour
	defaultMaxFinished = 200
)

// ControllerFactory builds a fresh controller over the given collaborators.
type ControllerFactory func(analysis.Collaborators) *analysis.Controller

// Server holds the analysis sessions.
type Server struct {
	newController ControllerFactory
	origins       []string

	ctx    context.Context
	cancel context.CancelFunc

	sessionTTL  time.Duration
	maxFinished int
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithRetention bounds how long finished sessions stay queryable and how
// many are kept. Running sessions are never evicted. Zero keeps the default.
func WithRetention(ttl time.Duration, maxFinished int) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		if maxFinished > 0 {
			s.maxFinished = maxFinished
		}
	}
}

// NewServer creates a server and starts its session sweeper. allowedOrigins
// feeds the CORS policy; empty allows any origin.
func NewServer(factory ControllerFactory, allowedOrigins []string, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		newController: factory,
		origins:       allowedOrigins,
		ctx:           ctx,
		cancel:        cancel,
		sessionTTL:    defaultSessionTTL,
		maxFinished:   defaultMaxFinished,
		now:           time.Now,
		sessions:      make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepLoop()
	}()
	return s
}

func (s *Server) sweepLoop() {
	ticker := time.NewTicker(max(s.sessionTTL/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops finished sessions older than the TTL, then the oldest
// finished sessions beyond the cap.
func (s *Server) sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	type done struct {
		id string
		at time.Time
	}
	var kept []done
	evicted := 0
	for id, sess := range s.sessions {
		at, finished := sess.settledAt()
		if !finished {
			continue
		}
		if now.Sub(at) > s.sessionTTL {
			delete(s.sessions, id)
			evicted++
			continue
		}
		kept = append(kept, done{id: id, at: at})
	}
	if extra := len(kept) - s.maxFinished; extra > 0 {
		sort.Slice(kept, func(i, j int) bool { return kept[i].at.Before(kept[j].at) })
		for _, d := range kept[:extra] {
			delete(s.sessions, d.id)
			evicted++
		}
	}
	if evicted > 0 {
		zap.L().Debug("api: evicted finished sessions", zap.Int("count", evicted))
	}
	return evicted
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1/analyses", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/events", s.handleEvents)
		r.Delete("/{id}", s.handleCancel)
	})
	return r
}

// Close cancels every running analysis and waits for the session drivers
// to settle.
func (s *Server) Close() {
	s.cancel()
	s.mu.RLock()
	for _, sess := range s.sessions {
		_ = sess.ctrl.Cancel()
	}
	s.mu.RUnlock()
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	n := len(s.sessions)
	s.mu.RUnlock()
	writeData(w, http.StatusOK, map[string]any{"status": "ok", "sessions": n})
}

type sessionSummary struct {
	ID         string      `json:"id"`
	Stage      model.Stage `json:"stage"`
	Company    string      `json:"company,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Generation uint64      `json:"generation"`
}

type sessionDetail struct {
	ID       string                  `json:"id"`
	State    analysis.Snapshot       `json:"state"`
	Progress *model.AnalysisProgress `json:"progress,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPlanBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "plan exceeds 1MB")
		return
	}
	p, err := plan.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PLAN", err.Error())
		return
	}
	if !p.HasCompany() {
		writeError(w, http.StatusBadRequest, "INVALID_PLAN", "plan: company is required")
		return
	}

	sess := newSession(uuid.NewString(), s.newController(analysis.Collaborators{
		Scraper:     p,
		Competitors: p,
		Personas:    p,
		Prompts:     p,
	}))
	s.sweep()
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drive(sess, p.Company.URL)
	}()

	zap.L().Info("api: analysis created", zap.String("session", sess.id), zap.String("company", p.Company.Name))
	writeData(w, http.StatusAccepted, sessionSummary{
		ID:        sess.id,
		Stage:     model.StageIdle,
		Company:   p.Company.Name,
		CreatedAt: sess.created,
	})
}

// drive runs the session end to end and feeds its progress stream.
func (s *Server) drive(sess *session, url string) {
	run, err := analysis.Autopilot(s.ctx, sess.ctrl, url)
	if err != nil {
		zap.L().Warn("api: analysis did not start", zap.String("session", sess.id), zap.Error(err))
		sess.finish(nil, err)
		return
	}
	for p := range run.Progress() {
		sess.publish(p)
	}
	result, err := run.Wait(context.Background())
	if err != nil {
		zap.L().Warn("api: analysis ended without result", zap.String("session", sess.id), zap.Error(err))
	}
	sess.finish(result, err)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	out := make([]sessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snap := sess.ctrl.Snapshot()
		sum := sessionSummary{ID: sess.id, Stage: snap.Stage, CreatedAt: sess.created, Generation: snap.Generation}
		if snap.Company != nil {
			sum.Company = snap.Company.Name
		}
		out = append(out, sum)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	writeData(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	v := sess.view()
	detail := sessionDetail{ID: sess.id, State: sess.ctrl.Snapshot(), Progress: v.latest}
	if v.err != nil {
		detail.Error = v.err.Error()
	}
	writeData(w, http.StatusOK, detail)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := sess.ctrl.Cancel(); err != nil {
		if errors.Is(err, analysis.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "NOT_ANALYZING", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "CANCEL_FAILED", err.Error())
		return
	}
	writeData(w, http.StatusAccepted, map[string]string{"id": sess.id, "status": "cancelling"})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "id")
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "analysis not found")
	}
	return sess, ok
}
