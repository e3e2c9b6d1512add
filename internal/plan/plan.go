// Package plan loads a static analysis plan from YAML. A plan stands in for
// the website scraper and the LLM-backed competitor, persona and prompt
// generators, so an analysis can be run reproducibly from a file.
package plan

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/scorer"
)

// Plan is the top-level plan document.
type Plan struct {
	Company     model.Company      `yaml:"company"`
	Competitors []model.Competitor `yaml:"competitors"`
	Personas    []model.Persona    `yaml:"personas"`
	Prompts     []model.Prompt     `yaml:"prompts"`
	Templates   []Template         `yaml:"templates"`
}

// Template is a prompt pattern expanded per persona. Placeholders:
// {company}, {industry}, {persona}, {competitor}.
type Template struct {
	Text     string               `yaml:"text"`
	Category model.PromptCategory `yaml:"category"`
}

// DefaultTemplates are used when a plan lists neither prompts nor templates.
var DefaultTemplates = []Template{
	{Text: "What are the best {industry} tools for a {persona}?", Category: model.CategoryRanking},
	{Text: "As a {persona}, which {industry} vendors would you recommend?", Category: model.CategoryRecommendations},
	{Text: "What are good alternatives to {competitor} for {industry}?", Category: model.CategoryAlternatives},
	{Text: "How does {company} compare to {competitor}?", Category: model.CategoryComparison},
}

// DefaultPersonas are used when a plan lists none.
var DefaultPersonas = []model.Persona{
	{ID: "buyer", Role: "buyer", Description: "Evaluates vendors for their team"},
	{ID: "practitioner", Role: "practitioner", Description: "Uses the product day to day"},
}

// Load reads a plan from a YAML file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "plan: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a plan document. The plan may be wrapped in a top-level
// "plan" key.
func Parse(data []byte) (*Plan, error) {
	var wrapper struct {
		Plan *Plan `yaml:"plan"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "plan: parse")
	}
	p := wrapper.Plan
	if p == nil {
		p = &Plan{}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, eris.Wrap(err, "plan: parse")
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the plan is usable. A plan without a company is partial:
// it supplies competitors, personas and prompts while the company comes
// from scraping its website.
func (p *Plan) Validate() error {
	name, url := strings.TrimSpace(p.Company.Name), strings.TrimSpace(p.Company.URL)
	if name == "" && url != "" {
		return eris.New("plan: company.name is required")
	}
	if url == "" && name != "" {
		return eris.New("plan: company.url is required")
	}
	for i, t := range p.Templates {
		if strings.TrimSpace(t.Text) == "" {
			return eris.Errorf("plan: templates[%d] has no text", i)
		}
	}
	return nil
}

// HasCompany reports whether the plan names the company itself.
func (p *Plan) HasCompany() bool {
	return strings.TrimSpace(p.Company.Name) != ""
}

// Scrape returns the plan's company. The URL must point at the same site.
func (p *Plan) Scrape(ctx context.Context, url string) (*model.Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "plan: scrape")
	}
	if !p.HasCompany() {
		return nil, eris.New("plan: no company in plan")
	}
	want := scorer.NormalizeDomain(p.Company.URL)
	if got := scorer.NormalizeDomain(url); got != "" && want != "" && got != want {
		return nil, eris.Errorf("plan: no company for %s (plan covers %s)", got, want)
	}
	co := p.Company
	return &co, nil
}

// IdentifyCompetitors returns the declared competitors, falling back to the
// names listed in the company facts.
func (p *Plan) IdentifyCompetitors(ctx context.Context, company model.Company) ([]model.Competitor, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "plan: identify competitors")
	}
	if len(p.Competitors) > 0 {
		return append([]model.Competitor(nil), p.Competitors...), nil
	}
	out := make([]model.Competitor, 0, len(company.Facts.Competitors))
	for _, name := range company.Facts.Competitors {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, model.Competitor{Name: name})
		}
	}
	return out, nil
}

// GeneratePersonas returns the plan's personas or DefaultPersonas.
func (p *Plan) GeneratePersonas(ctx context.Context, _ model.Company, _ []model.Competitor) ([]model.Persona, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "plan: generate personas")
	}
	if len(p.Personas) > 0 {
		return append([]model.Persona(nil), p.Personas...), nil
	}
	return append([]model.Persona(nil), DefaultPersonas...), nil
}

// GeneratePrompts returns the plan's explicit prompts followed by the
// templates expanded for every selected persona. Templates that name
// {competitor} expand once per tracked competitor other than the company.
func (p *Plan) GeneratePrompts(ctx context.Context, company model.Company, competitors []model.Competitor, personas []model.Persona) ([]model.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "plan: generate prompts")
	}

	out := make([]model.Prompt, 0, len(p.Prompts))
	for _, pr := range p.Prompts {
		pr.Source = model.SourceSystem
		out = append(out, pr)
	}

	templates := p.Templates
	if len(templates) == 0 && len(p.Prompts) == 0 {
		templates = DefaultTemplates
	}
	if len(personas) == 0 {
		personas = []model.Persona{{}}
	}

	var rivals []string
	for _, c := range competitors {
		if !c.IsOwn {
			rivals = append(rivals, c.Name)
		}
	}

	for _, t := range templates {
		for _, persona := range personas {
			if strings.Contains(t.Text, "{persona}") && persona.Role == "" {
				continue
			}
			targets := []string{""}
			if strings.Contains(t.Text, "{competitor}") {
				targets = rivals
			}
			for _, rival := range targets {
				out = append(out, model.Prompt{
					Text:     expand(t.Text, company, persona, rival),
					Category: t.Category,
					Source:   model.SourceSystem,
					Persona:  persona.ID,
				})
			}
			if !strings.Contains(t.Text, "{persona}") {
				break
			}
		}
	}
	return out, nil
}

func expand(text string, company model.Company, persona model.Persona, competitor string) string {
	industry := company.Industry
	if industry == "" {
		industry = "software"
	}
	return strings.NewReplacer(
		"{company}", company.Name,
		"{industry}", industry,
		"{persona}", persona.Role,
		"{competitor}", competitor,
	).Replace(text)
}
