// Package provider queries AI answer providers and extracts brand mentions
// from their answers. Every provider is driven through the same LLM client;
// vendors differ only by the Completer plugged into it and its configuration.
package provider

import (
	"context"
	"time"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Client issues one (prompt, provider) query. Errors returned by Query are
// always *Failure.
type Client interface {
	Name() string
	Query(ctx context.Context, req Request) (*Response, error)
}

// Entity is a tracked brand the answer is scanned for.
type Entity struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// Request is the provider boundary input.
type Request struct {
	PromptID string
	Prompt   string
	Entities []Entity
}

// Response is a successfully parsed answer.
type Response struct {
	Model        string
	Answer       string
	Mentions     []model.Mention
	FromCache    bool
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
}

// EntitiesFor converts the tracked competitor set into provider entities.
func EntitiesFor(competitors []model.Competitor) []Entity {
	out := make([]Entity, 0, len(competitors))
	for _, c := range competitors {
		out = append(out, Entity{Name: c.Name, Domain: DomainOf(c.URL)})
	}
	return out
}
