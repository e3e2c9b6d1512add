package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/analysis"
	"github.com/sells-group/visibility-cli/internal/config"
	"github.com/sells-group/visibility-cli/internal/dispatch"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/plan"
	"github.com/sells-group/visibility-cli/internal/provider"
	"github.com/sells-group/visibility-cli/internal/scrape"
)

func sampleResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		Competitors: []model.CompetitorRanking{
			{Name: "Northwind", IsOwn: true, Mentions: 3, AveragePosition: 1.5, SentimentScore: 75, VisibilityScore: 75},
			{Name: "Acme", Mentions: 1, VisibilityScore: 25, SentimentScore: 50},
		},
		ProviderComparison: []model.ProviderComparison{
			{Competitor: "Northwind", IsOwn: true, Providers: map[string]model.ProviderScore{
				"openai": {Mentions: 2, VisibilityScore: 100}, "anthropic": {Mentions: 1, VisibilityScore: 50},
			}},
			{Competitor: "Acme", Providers: map[string]model.ProviderScore{
				"openai": {}, "anthropic": {Mentions: 1, VisibilityScore: 50},
			}},
		},
		Responses:     make([]model.ProviderResult, 4),
		TotalMentions: 4,
		Cancelled:     true,
		Usage:         model.Usage{CostUSD: 0.0123},
	}
}

func TestFormatRankings(t *testing.T) {
	var buf bytes.Buffer
	formatRankings(&buf, sampleResult())
	out := buf.String()

	assert.Contains(t, out, "anthropic")
	assert.Contains(t, out, "Northwind *")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "4 mentions, 4 responses, 0 failed cells")
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, "estimated cost $0.0123")
}

func TestWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	require.NoError(t, writeResult(path, sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got model.AnalysisResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 4, got.TotalMentions)
	assert.Len(t, got.Competitors, 2)

	err = writeResult(filepath.Join(t.TempDir(), "missing", "r.json"), sampleResult())
	assert.Error(t, err)
}

func TestDispatchOptions(t *testing.T) {
	off := false
	c := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai":     {Key: "k", Concurrency: 4, TimeoutSecs: 30},
			"anthropic":  {Key: "k"},
			"perplexity": {Key: "k", Enabled: &off, Concurrency: 9},
		},
		Dispatch: config.DispatchConfig{DefaultConcurrency: 2, TimeoutSecs: 90},
	}
	opts := dispatchOptions(c)
	assert.Equal(t, map[string]int{"openai": 4}, opts.Concurrency)
	assert.Equal(t, map[string]time.Duration{"openai": 30 * time.Second}, opts.Timeouts)
	assert.Equal(t, 2, opts.DefaultConcurrency)
	assert.Equal(t, 90*time.Second, opts.DefaultTimeout)
}

func TestLoadCollaborators(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("company: {name: Northwind, url: northwind.io}\n"), 0o600))

	p, collab, url, err := loadCollaborators(path, "")
	require.NoError(t, err)
	assert.Equal(t, "northwind.io", url)
	assert.Same(t, p, collab.Scraper)

	_, collab, url, err = loadCollaborators("", "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.com", url)
	assert.IsType(t, &scrape.Website{}, collab.Scraper)

	_, _, _, err = loadCollaborators("", "")
	assert.Error(t, err)
}

type echoClient struct{}

func (echoClient) Name() string { return "openai" }

func (echoClient) Query(_ context.Context, req provider.Request) (*provider.Response, error) {
	return &provider.Response{Answer: "ok", Mentions: []model.Mention{{Entity: "Northwind", Mentioned: true}}}, nil
}

func TestFollowRun(t *testing.T) {
	p, err := plan.Parse([]byte(`
company: {name: Northwind, url: northwind.io}
competitors: [{name: Acme}]
prompts:
  - {id: p1, text: Best CRM?, category: ranking}
`))
	require.NoError(t, err)

	env := &engineEnv{Clients: []provider.Client{echoClient{}}, Options: dispatch.Options{DefaultConcurrency: 1}}
	ctrl := env.NewController(analysis.Collaborators{Scraper: p, Competitors: p, Personas: p, Prompts: p})
	run, err := analysis.Autopilot(context.Background(), ctrl, p.Company.URL)
	require.NoError(t, err)

	res, err := followRun(context.Background(), run, ctrl.Cancel)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalMentions)
	assert.Equal(t, "Northwind", res.Competitors[0].Name)
}
