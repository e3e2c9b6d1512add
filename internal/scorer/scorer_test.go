package scorer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

func pos(n int) *int { return &n }

func completed(promptID, provider string, mentions ...model.Mention) model.ProviderResult {
	return model.ProviderResult{
		PromptID: promptID,
		Provider: provider,
		Status:   model.ResultCompleted,
		Mentions: mentions,
	}
}

func mentioned(entity string, position int, s model.Sentiment) model.Mention {
	return model.Mention{Entity: entity, Mentioned: true, Position: pos(position), Sentiment: s}
}

func TestScorer_Fold(t *testing.T) {
	s := New(1)

	ok := s.Fold(1,
		completed("p1", "openai",
			mentioned("Acme", 1, model.SentimentNeutral),
			model.Mention{Entity: "Globex", Mentioned: false},
		),
		completed("p2", "openai",
			mentioned("Acme", 3, model.SentimentPositive),
			mentioned("Acme", 0, model.SentimentNegative),
		),
		model.ProviderResult{PromptID: "p1", Provider: "anthropic", Status: model.ResultFailed},
	)
	require.True(t, ok)
	assert.Equal(t, 3, s.Folded())

	rows := s.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme", rows[0].Label)
	assert.Equal(t, 2, rows[0].Mentions, "a label repeated within one result counts once")
	assert.InDelta(t, 2.0, rows[0].AveragePosition, 0.0001)
	assert.InDelta(t, 100.0, rows[0].SentimentScore, 0.0001, "max sentiment wins")
	assert.Equal(t, map[string]int{"openai": 2}, rows[0].Providers)
}

func TestScorer_RepeatedLabelSharesVoiceEvenly(t *testing.T) {
	s := New(1)
	s.Fold(1,
		completed("p1", "openai",
			mentioned("Acme", 2, model.SentimentNeutral),
			mentioned(" Acme ", 1, model.SentimentPositive),
		),
		completed("p1", "anthropic", mentioned("Northwind", 1, model.SentimentNeutral)),
	)

	rows := s.Rows()
	require.Len(t, rows, 2)
	res := Reconcile(Input{Rows: rows})
	require.Len(t, res.Rankings, 2)
	assert.Equal(t, 2, res.TotalMentions)
	for _, r := range res.Rankings {
		assert.Equal(t, 1, r.Mentions, r.Name)
		assert.InDelta(t, 50.0, r.VisibilityScore, 0.0001, r.Name)
	}
	assert.InDelta(t, 1.0, rows[0].AveragePosition, 0.0001, "best position kept")
	assert.InDelta(t, 100.0, rows[0].SentimentScore, 0.0001)
}

func TestMergeMentions(t *testing.T) {
	got := MergeMentions([]model.Mention{
		{Entity: "Globex", Mentioned: false, Sentiment: model.SentimentNeutral},
		mentioned("Acme", 3, model.SentimentNegative),
		mentioned("Globex", 2, model.SentimentNegative),
		{Entity: "Acme ", Mentioned: true, Sentiment: model.SentimentNeutral},
		{Entity: "Acme", Mentioned: false, Sentiment: model.SentimentPositive},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "Globex", got[0].Entity)
	assert.True(t, got[0].Mentioned)
	require.NotNil(t, got[0].Position)
	assert.Equal(t, 2, *got[0].Position)
	assert.Equal(t, model.SentimentNegative, got[0].Sentiment)

	assert.Equal(t, "Acme", got[1].Entity)
	require.NotNil(t, got[1].Position)
	assert.Equal(t, 3, *got[1].Position)
	assert.Equal(t, model.SentimentNeutral, got[1].Sentiment, "unmentioned duplicates are ignored")
}

func TestScorer_NegativeOnlySentiment(t *testing.T) {
	s := New(1)
	s.Fold(1, completed("p1", "openai", mentioned("Acme", 1, model.SentimentNegative)))
	rows := s.Rows()
	require.Len(t, rows, 1)
	assert.InDelta(t, 0.0, rows[0].SentimentScore, 0.0001)
}

func TestScorer_StaleGenerationIsDiscarded(t *testing.T) {
	s := New(1)
	require.True(t, s.Fold(1, completed("p1", "openai", mentioned("Acme", 1, model.SentimentNeutral))))

	s.Reset(2)
	assert.Empty(t, s.Rows())
	assert.Equal(t, uint64(2), s.Generation())

	assert.False(t, s.Fold(1, completed("p2", "openai", mentioned("Acme", 1, model.SentimentNeutral))))
	assert.Empty(t, s.Rows())
	assert.Equal(t, 0, s.Folded())
}

func TestScorer_ConcurrentFolds(t *testing.T) {
	s := New(7)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			provider := "openai"
			if i%2 == 0 {
				provider = "anthropic"
			}
			s.Fold(7, completed("p", provider, mentioned("Acme", 1, model.SentimentNeutral)))
		}(i)
	}
	wg.Wait()

	rows := s.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 50, rows[0].Mentions)
	assert.Equal(t, 25, rows[0].Providers["openai"])
	assert.Equal(t, 25, rows[0].Providers["anthropic"])
}
