package model

// PromptCategory classifies the intent of a prompt.
type PromptCategory string

const (
	CategoryRanking         PromptCategory = "ranking"
	CategoryComparison      PromptCategory = "comparison"
	CategoryAlternatives    PromptCategory = "alternatives"
	CategoryRecommendations PromptCategory = "recommendations"
)

// Valid reports whether c is a known category.
func (c PromptCategory) Valid() bool {
	switch c {
	case CategoryRanking, CategoryComparison, CategoryAlternatives, CategoryRecommendations:
		return true
	default:
		return false
	}
}

// PromptSource records who authored a prompt.
type PromptSource string

const (
	SourceSystem PromptSource = "system"
	SourceUser   PromptSource = "user"
)

// Prompt is one natural-language query submitted to every enabled provider.
// Prompts are immutable once dispatched.
type Prompt struct {
	ID       string         `json:"id" yaml:"id"`
	Text     string         `json:"text" yaml:"text"`
	Category PromptCategory `json:"category" yaml:"category"`
	Source   PromptSource   `json:"source" yaml:"source"`
	Persona  string         `json:"persona,omitempty" yaml:"persona"`
}
