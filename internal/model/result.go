package model

import "time"

// Sentiment is the tone of a mention.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Score maps a sentiment onto the 0-100 sentiment scale.
func (s Sentiment) Score() float64 {
	switch s {
	case SentimentPositive:
		return 100
	case SentimentNegative:
		return 0
	default:
		return 50
	}
}

// ParseSentiment maps free-form labels onto a Sentiment, defaulting to neutral.
func ParseSentiment(s string) Sentiment {
	switch s {
	case "positive", "Positive", "POSITIVE":
		return SentimentPositive
	case "negative", "Negative", "NEGATIVE":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Mention is one extracted entity from a provider answer.
type Mention struct {
	Entity    string    `json:"entity"`
	Mentioned bool      `json:"mentioned"`
	Position  *int      `json:"position,omitempty"`
	Sentiment Sentiment `json:"sentiment"`
}

// ResultStatus is the outcome of one (prompt, provider) execution.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultTimedOut  ResultStatus = "timed_out"
)

// ProviderResult is written once by the task that owns its cell.
type ProviderResult struct {
	PromptID     string       `json:"prompt_id"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model,omitempty"`
	Status       ResultStatus `json:"status"`
	Answer       string       `json:"answer,omitempty"`
	Mentions     []Mention    `json:"mentions,omitempty"`
	FailureKind  string       `json:"failure_kind,omitempty"`
	Error        string       `json:"error,omitempty"`
	FromCache    bool         `json:"from_cache,omitempty"`
	InputTokens  int64        `json:"input_tokens,omitempty"`
	OutputTokens int64        `json:"output_tokens,omitempty"`
	DurationMs   int64        `json:"duration_ms"`
	CompletedAt  time.Time    `json:"completed_at"`
}

// Succeeded reports whether the result can be scored.
func (r ProviderResult) Succeeded() bool {
	return r.Status == ResultCompleted
}

// CompetitorRanking is a derived ranking row.
type CompetitorRanking struct {
	Name            string  `json:"name"`
	URL             string  `json:"url,omitempty"`
	IsOwn           bool    `json:"is_own"`
	Mentions        int     `json:"mentions"`
	AveragePosition float64 `json:"average_position"`
	SentimentScore  float64 `json:"sentiment_score"`
	VisibilityScore float64 `json:"visibility_score"`
}

// ProviderScore is one provider's view of a competitor.
type ProviderScore struct {
	Mentions        int     `json:"mentions"`
	VisibilityScore float64 `json:"visibility_score"`
}

// ProviderComparison holds per-provider share of voice for one competitor.
type ProviderComparison struct {
	Competitor string                   `json:"competitor"`
	IsOwn      bool                     `json:"is_own"`
	Providers  map[string]ProviderScore `json:"providers"`
}

// AnalysisResult is the terminal output of an analysis.
type AnalysisResult struct {
	Company            Company              `json:"company"`
	Competitors        []CompetitorRanking  `json:"competitors"`
	ProviderComparison []ProviderComparison `json:"provider_comparison"`
	Prompts            []Prompt             `json:"prompts"`
	Responses          []ProviderResult     `json:"responses"`
	TotalMentions      int                  `json:"total_mentions"`
	FailedCells        int                  `json:"failed_cells"`
	Cancelled          bool                 `json:"cancelled,omitempty"`
	Usage              Usage                `json:"usage"`
}

// ProviderUsage is the token usage and estimated spend of one provider.
type ProviderUsage struct {
	Calls        int     `json:"calls"`
	CacheHits    int     `json:"cache_hits"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Usage totals provider usage for one analysis.
type Usage struct {
	Providers map[string]ProviderUsage `json:"providers"`
	CostUSD   float64                  `json:"cost_usd"`
}
