package analysis

import (
	"github.com/google/uuid"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/scorer"
)

// withOwn puts the company row first and drops candidates that are the
// company under another spelling.
func withOwn(company model.Company, candidates []model.Competitor) []model.Competitor {
	own := company.OwnCompetitor()
	ownName := scorer.NormalizeName(own.Name)
	ownDomain := scorer.NormalizeDomain(own.URL)

	out := []model.Competitor{own}
	seen := map[string]bool{ownName: true}
	for _, c := range candidates {
		name := scorer.NormalizeName(c.Name)
		if name == "" || seen[name] {
			continue
		}
		if ownDomain != "" && scorer.NormalizeDomain(c.URL) == ownDomain {
			continue
		}
		seen[name] = true
		c.IsOwn = false
		out = append(out, c)
	}
	return out
}

func pickCompetitors(company model.Company, candidates []model.Competitor, names []string) []model.Competitor {
	if names == nil {
		return withOwn(company, candidates)
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[scorer.NormalizeName(n)] = true
	}
	var picked []model.Competitor
	for _, c := range candidates {
		if c.IsOwn || want[scorer.NormalizeName(c.Name)] {
			picked = append(picked, c)
		}
	}
	return withOwn(company, picked)
}

func pickPersonas(personas []model.Persona, ids []string) []model.Persona {
	if ids == nil {
		return append([]model.Persona(nil), personas...)
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var picked []model.Persona
	for _, p := range personas {
		if want[p.ID] {
			picked = append(picked, p)
		}
	}
	return picked
}

// normalizePrompts fills ids, sources and categories the generator left out
// and drops blank or duplicate prompts.
func normalizePrompts(prompts []model.Prompt) []model.Prompt {
	out := make([]model.Prompt, 0, len(prompts))
	seenID := make(map[string]bool, len(prompts))
	seenText := make(map[string]bool, len(prompts))
	for _, p := range prompts {
		key := scorer.NormalizeName(p.Text)
		if key == "" || seenText[key] {
			continue
		}
		seenText[key] = true
		if p.ID == "" || seenID[p.ID] {
			p.ID = uuid.NewString()
		}
		seenID[p.ID] = true
		if p.Source == "" {
			p.Source = model.SourceSystem
		}
		if !p.Category.Valid() {
			p.Category = model.CategoryRecommendations
		}
		out = append(out, p)
	}
	return out
}

func cloneCompetitors(in []model.Competitor) []model.Competitor {
	if in == nil {
		return nil
	}
	return append([]model.Competitor(nil), in...)
}

func hasOwnRanking(r *model.AnalysisResult) bool {
	for _, rk := range r.Competitors {
		if rk.IsOwn {
			return true
		}
	}
	return false
}
