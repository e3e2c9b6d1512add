package model

// Company is the brand under analysis. It is immutable once analysis starts.
type Company struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	Industry string `json:"industry,omitempty" yaml:"industry"`
	Facts    Facts  `json:"facts" yaml:"facts"`
}

// Facts holds free-form scraped facts about a company.
type Facts struct {
	Description string            `json:"description,omitempty" yaml:"description"`
	Products    []string          `json:"products,omitempty" yaml:"products"`
	Competitors []string          `json:"competitors,omitempty" yaml:"competitors"` // extracted competitor names
	Extra       map[string]string `json:"extra,omitempty" yaml:"extra"`
}

// Competitor is an entity tracked during analysis. The Company itself is
// one row with IsOwn set.
type Competitor struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url,omitempty" yaml:"url"`
	Favicon     string `json:"favicon,omitempty" yaml:"favicon"`
	Description string `json:"description,omitempty" yaml:"description"`
	IsOwn       bool   `json:"is_own" yaml:"is_own"`
}

// OwnCompetitor returns the competitor row representing the company itself.
func (c Company) OwnCompetitor() Competitor {
	return Competitor{
		Name:        c.Name,
		URL:         c.URL,
		Description: c.Facts.Description,
		IsOwn:       true,
	}
}

// Persona is an audience profile used to tag generated prompts.
type Persona struct {
	ID          string `json:"id" yaml:"id"`
	Role        string `json:"role" yaml:"role"`
	Description string `json:"description,omitempty" yaml:"description"`
}
