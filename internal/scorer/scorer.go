// Package scorer folds provider results into per-label mention statistics and
// reconciles them into a deduplicated share-of-voice ranking.
package scorer

import (
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/visibility-cli/internal/model"
)

// RawRow is the unmerged statistics for one label exactly as providers
// reported it.
type RawRow struct {
	Label           string
	Mentions        int
	AveragePosition float64
	SentimentScore  float64
	Providers       map[string]int
}

type accumulator struct {
	mentions     int
	positionSum  int
	positionSeen int
	sentiment    float64
	providers    map[string]int
}

// Scorer is the running mention accumulator for one analysis generation.
// All folds go through a single mutex.
type Scorer struct {
	mu         sync.Mutex
	generation uint64
	rows       map[string]*accumulator
	folded     int
}

// New creates a scorer for the given generation.
func New(generation uint64) *Scorer {
	return &Scorer{generation: generation, rows: make(map[string]*accumulator)}
}

// Generation returns the generation the scorer currently accepts.
func (s *Scorer) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Reset discards all statistics and starts accepting folds for generation.
func (s *Scorer) Reset(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = generation
	s.rows = make(map[string]*accumulator)
	s.folded = 0
}

// Fold adds the mentions of a completed result. It reports false, and leaves
// the statistics untouched, when generation is stale.
func (s *Scorer) Fold(generation uint64, results ...model.ProviderResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return false
	}

	for _, r := range results {
		s.folded++
		if !r.Succeeded() {
			continue
		}
		for _, m := range MergeMentions(r.Mentions) {
			label := m.Entity
			if !m.Mentioned || label == "" {
				continue
			}
			acc, ok := s.rows[label]
			if !ok {
				acc = &accumulator{providers: make(map[string]int)}
				s.rows[label] = acc
			}
			// First mention sets the floor; sentiment only ever rises.
			score := m.Sentiment.Score()
			if acc.mentions == 0 || score > acc.sentiment {
				acc.sentiment = score
			}
			acc.mentions++
			acc.providers[r.Provider]++
			if m.Position != nil && *m.Position > 0 {
				acc.positionSum += *m.Position
				acc.positionSeen++
			}
		}
	}
	return true
}

// MergeMentions collapses mentions that share a trimmed label so one result
// counts each label once. The merged mention keeps the best position and the
// highest sentiment; order follows first appearance.
func MergeMentions(mentions []model.Mention) []model.Mention {
	out := make([]model.Mention, 0, len(mentions))
	index := make(map[string]int, len(mentions))
	for _, m := range mentions {
		m.Entity = strings.TrimSpace(m.Entity)
		i, ok := index[m.Entity]
		if !ok {
			index[m.Entity] = len(out)
			out = append(out, m)
			continue
		}
		cur := &out[i]
		if !m.Mentioned {
			continue
		}
		if !cur.Mentioned {
			*cur = m
			continue
		}
		if m.Position != nil && *m.Position > 0 && (cur.Position == nil || *m.Position < *cur.Position) {
			p := *m.Position
			cur.Position = &p
		}
		if m.Sentiment.Score() > cur.Sentiment.Score() {
			cur.Sentiment = m.Sentiment
		}
	}
	return out
}

// Folded returns how many results were folded in this generation.
func (s *Scorer) Folded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folded
}

// Rows returns a copy of the unmerged statistics sorted by label.
func (s *Scorer) Rows() []RawRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RawRow, 0, len(s.rows))
	for label, acc := range s.rows {
		row := RawRow{
			Label:          label,
			Mentions:       acc.mentions,
			SentimentScore: acc.sentiment,
			Providers:      make(map[string]int, len(acc.providers)),
		}
		if acc.positionSeen > 0 {
			row.AveragePosition = float64(acc.positionSum) / float64(acc.positionSeen)
		}
		for p, n := range acc.providers {
			row.Providers[p] = n
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
