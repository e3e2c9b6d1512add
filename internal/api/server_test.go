package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/dispatch"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/provider"
)

const planJSON = `{
  "plan": {
    "company": {"name": "Northwind", "url": "https://northwind.io", "industry": "CRM"},
    "competitors": [{"name": "Acme", "url": "https://acme.com"}],
    "personas": [{"id": "ops", "role": "ops lead"}],
    "prompts": [
      {"id": "p1", "text": "Best CRM?", "category": "ranking"},
      {"id": "p2", "text": "CRM alternatives?", "category": "alternatives"}
    ]
  }
}`

type fakeClient struct {
	name    string
	release chan struct{}
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Query(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	mentions := []model.Mention{{Entity: "Northwind", Mentioned: true, Sentiment: model.SentimentPositive}}
	if req.PromptID == "p2" {
		mentions = append(mentions, model.Mention{Entity: "Acme", Mentioned: true, Sentiment: model.SentimentNeutral})
	}
	return &provider.Response{Model: "fake-1", Answer: "answer", Mentions: mentions}, nil
}

type envelopeOf[T any] struct {
	Data  T         `json:"data"`
	Error errorBody `json:"error"`
}

func newTestServer(t *testing.T, clients ...provider.Client) (*Server, *httptest.Server) {
	t.Helper()
	factory := func(collab analysis.Collaborators) *analysis.Controller {
		d := dispatch.New(clients, dispatch.Options{DefaultConcurrency: 2, DefaultTimeout: 5 * time.Second})
		return analysis.NewController(collab, analysis.NewEngine(d))
	}
	srv := NewServer(factory, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func create(t *testing.T, ts *httptest.Server, body string) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/analyses", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var env envelopeOf[sessionSummary]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.NotEmpty(t, env.Data.ID)
	assert.Equal(t, "Northwind", env.Data.Company)
	return env.Data.ID
}

func getDetail(t *testing.T, ts *httptest.Server, id string) (int, envelopeOf[sessionDetail]) {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/v1/analyses/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelopeOf[sessionDetail]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeClient{name: "openai"})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestCreateAndGet(t *testing.T) {
	_, ts := newTestServer(t, &fakeClient{name: "openai"}, &fakeClient{name: "anthropic"})
	id := create(t, ts, planJSON)

	require.Eventually(t, func() bool {
		_, env := getDetail(t, ts, id)
		return env.Data.State.Stage == model.StageResults
	}, 5*time.Second, 20*time.Millisecond)

	status, env := getDetail(t, ts, id)
	assert.Equal(t, http.StatusOK, status)
	res := env.Data.State.Result
	require.NotNil(t, res)
	assert.Equal(t, 6, res.TotalMentions)
	require.Len(t, res.Competitors, 2)
	assert.Equal(t, "Northwind", res.Competitors[0].Name)
	assert.InDelta(t, 66.7, res.Competitors[0].VisibilityScore, 0.0001)
}

func TestCreate_InvalidPlan(t *testing.T) {
	_, ts := newTestServer(t, &fakeClient{name: "openai"})
	resp, err := http.Post(ts.URL+"/api/v1/analyses", "application/json", strings.NewReader(`{"plan": {"company": {"name": ""}}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var env envelopeOf[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "INVALID_PLAN", env.Error.Code)
}

func TestGet_NotFound(t *testing.T) {
	_, ts := newTestServer(t, &fakeClient{name: "openai"})
	status, env := getDetail(t, ts, "missing")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestEvents_StreamsProgressThenResult(t *testing.T) {
	release := make(chan struct{})
	_, ts := newTestServer(t, &fakeClient{name: "openai", release: release})
	id := create(t, ts, planJSON)

	resp, err := http.Get(ts.URL + "/api/v1/analyses/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	close(release)

	var events []string
	var lastData string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			lastData = strings.TrimPrefix(line, "data: ")
		}
	}
	require.NoError(t, sc.Err())

	require.NotEmpty(t, events)
	assert.Equal(t, "result", events[len(events)-1])
	assert.Contains(t, events, "progress")

	var result model.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(lastData), &result))
	assert.Equal(t, 3, result.TotalMentions)
}

func TestCancel(t *testing.T) {
	release := make(chan struct{})
	_, ts := newTestServer(t, &fakeClient{name: "openai", release: release})
	id := create(t, ts, planJSON)

	require.Eventually(t, func() bool {
		_, env := getDetail(t, ts, id)
		return env.Data.State.Stage == model.StageAnalyzing
	}, 5*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/analyses/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	close(release)

	require.Eventually(t, func() bool {
		_, env := getDetail(t, ts, id)
		return env.Data.State.Stage == model.StageResults
	}, 5*time.Second, 20*time.Millisecond)
	_, env := getDetail(t, ts, id)
	require.NotNil(t, env.Data.State.Result)
	assert.True(t, env.Data.State.Result.Cancelled)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing left to cancel")
}

func TestList(t *testing.T) {
	_, ts := newTestServer(t, &fakeClient{name: "openai"})
	first := create(t, ts, planJSON)
	second := create(t, ts, planJSON)

	resp, err := http.Get(ts.URL + "/api/v1/analyses")
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelopeOf[[]sessionSummary]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Len(t, env.Data, 2)
	ids := []string{env.Data[0].ID, env.Data[1].ID}
	assert.ElementsMatch(t, []string{first, second}, ids)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, &fakeClient{name: "openai"})
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/analyses", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSweep_EvictsFinishedSessions(t *testing.T) {
	srv, ts := newTestServer(t, &fakeClient{name: "openai"})
	idle := func(id string) *session {
		return newSession(id, srv.newController(analysis.Collaborators{}))
	}

	running := idle("running")
	stale := idle("stale")
	stale.finish(nil, nil)
	stale.finishedAt = time.Now().Add(-2 * time.Hour)
	older := idle("older")
	older.finish(nil, nil)
	older.finishedAt = time.Now().Add(-time.Minute)
	newer := idle("newer")
	newer.finish(nil, nil)

	srv.mu.Lock()
	for _, s := range []*session{running, stale, older, newer} {
		srv.sessions[s.id] = s
	}
	srv.mu.Unlock()

	assert.Equal(t, 1, srv.sweep(), "only sessions finished longer than the TTL go")
	status, _ := getDetail(t, ts, "stale")
	assert.Equal(t, http.StatusNotFound, status)

	srv.maxFinished = 1
	assert.Equal(t, 1, srv.sweep(), "oldest finished session goes past the cap")
	for id, want := range map[string]int{
		"running": http.StatusOK,
		"older":   http.StatusNotFound,
		"newer":   http.StatusOK,
	} {
		status, _ := getDetail(t, ts, id)
		assert.Equal(t, want, status, id)
	}

	srv.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Equal(t, 1, srv.sweep())
	status, _ = getDetail(t, ts, "running")
	assert.Equal(t, http.StatusOK, status, "running sessions are never evicted")
}

func TestWithRetention(t *testing.T) {
	srv := NewServer(nil, nil, WithRetention(10*time.Minute, 5))
	defer srv.Close()
	assert.Equal(t, 10*time.Minute, srv.sessionTTL)
	assert.Equal(t, 5, srv.maxFinished)

	defaults := NewServer(nil, nil, WithRetention(0, 0))
	defer defaults.Close()
	assert.Equal(t, defaultSessionTTL, defaults.sessionTTL)
	assert.Equal(t, defaultMaxFinished, defaults.maxFinished)
}
