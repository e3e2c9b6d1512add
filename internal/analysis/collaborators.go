package analysis

import (
	"context"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Scraper resolves a website into company facts.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*model.Company, error)
}

// CompetitorIdentifier proposes competitor candidates for a company.
type CompetitorIdentifier interface {
	IdentifyCompetitors(ctx context.Context, company model.Company) ([]model.Competitor, error)
}

// PersonaGenerator proposes audience personas.
type PersonaGenerator interface {
	GeneratePersonas(ctx context.Context, company model.Company, competitors []model.Competitor) ([]model.Persona, error)
}

// PromptGenerator writes the prompts sent to every provider.
type PromptGenerator interface {
	GeneratePrompts(ctx context.Context, company model.Company, competitors []model.Competitor, personas []model.Persona) ([]model.Prompt, error)
}

// Collaborators are the external services the controller drives.
type Collaborators struct {
	Scraper     Scraper
	Competitors CompetitorIdentifier
	Personas    PersonaGenerator
	Prompts     PromptGenerator
}
