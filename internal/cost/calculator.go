// Package cost prices provider calls from their token usage.
package cost

import (
	"math"
	"strings"

	"github.com/sells-group/visibility-cli/internal/model"
)

// ModelRate holds per-model pricing in USD. Token prices are per million
// tokens; PerRequest is a flat fee some search-backed models add.
type ModelRate struct {
	Input      float64 `yaml:"input" mapstructure:"input"`
	Output     float64 `yaml:"output" mapstructure:"output"`
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// Rates maps a model name (or name prefix) to its pricing.
type Rates map[string]ModelRate

// Calculator computes costs for provider usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// rate finds the pricing for a model: an exact match first, then the
// longest configured prefix so dated snapshots share their family price.
func (c *Calculator) rate(modelName string) (ModelRate, bool) {
	if r, ok := c.rates[modelName]; ok {
		return r, true
	}
	best, found := "", false
	for name := range c.rates {
		if strings.HasPrefix(modelName, name) && len(name) > len(best) {
			best, found = name, true
		}
	}
	return c.rates[best], found
}

// Call computes the cost of one completion. Unknown models cost 0.
func (c *Calculator) Call(modelName string, input, output int64) float64 {
	r, ok := c.rate(modelName)
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*r.Input + (float64(output)/1e6)*r.Output + r.PerRequest
}

// Summarize totals usage per provider. Cached answers and failed cells
// are counted but cost nothing.
func (c *Calculator) Summarize(results []model.ProviderResult) model.Usage {
	u := model.Usage{Providers: make(map[string]model.ProviderUsage)}
	for _, r := range results {
		pu := u.Providers[r.Provider]
		pu.Calls++
		switch {
		case r.FromCache:
			pu.CacheHits++
		case r.Succeeded():
			pu.InputTokens += r.InputTokens
			pu.OutputTokens += r.OutputTokens
			pu.CostUSD += c.Call(r.Model, r.InputTokens, r.OutputTokens)
		}
		u.Providers[r.Provider] = pu
	}
	for name, pu := range u.Providers {
		pu.CostUSD = roundCents(pu.CostUSD)
		u.Providers[name] = pu
		u.CostUSD += pu.CostUSD
	}
	u.CostUSD = roundCents(u.CostUSD)
	return u
}

// roundCents keeps four decimals; single calls cost fractions of a cent.
func roundCents(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
		"gpt-4o-mini":       {Input: 0.15, Output: 0.60},
		"gpt-4o":            {Input: 2.50, Output: 10.00},
		"gemini-2.0-flash":  {Input: 0.10, Output: 0.40},
		"sonar":             {Input: 1.00, Output: 1.00, PerRequest: 0.005},
		"sonar-pro":         {Input: 3.00, Output: 15.00, PerRequest: 0.006},
	}
}
