package model

import "github.com/rotisserie/eris"

// Stage is a state of the analysis stage controller.
type Stage string

const (
	StageIdle                   Stage = "idle"
	StageScraping               Stage = "scraping"
	StageIdentifyingCompetitors Stage = "identifying_competitors"
	StageSelectingCompetitors   Stage = "selecting_competitors"
	StageSelectingPersonas      Stage = "selecting_personas"
	StageGeneratingPrompts      Stage = "generating_prompts"
	StageAnalyzing              Stage = "analyzing"
	StageResults                Stage = "results"
	StageFailed                 Stage = "failed"
)

// CellStatus is the completion state of one (prompt, provider) cell.
type CellStatus uint32

const (
	CellPending CellStatus = iota
	CellRunning
	CellCompleted
	CellFailed
)

func (s CellStatus) String() string {
	switch s {
	case CellPending:
		return "pending"
	case CellRunning:
		return "running"
	case CellCompleted:
		return "completed"
	case CellFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s CellStatus) Terminal() bool {
	return s == CellCompleted || s == CellFailed
}

// MarshalText renders the status name in JSON payloads.
func (s CellStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *CellStatus) UnmarshalText(text []byte) error {
	for _, c := range []CellStatus{CellPending, CellRunning, CellCompleted, CellFailed} {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return eris.Errorf("model: unknown cell status %q", text)
}

// Cell addresses one (prompt, provider) pair by small integer indices.
type Cell struct {
	Prompt   int `json:"prompt"`
	Provider int `json:"provider"`
}

// PromptProgress is the per-prompt view inside a progress snapshot.
type PromptProgress struct {
	Prompt    Prompt                `json:"prompt"`
	Providers map[string]CellStatus `json:"providers"`
}

// AnalysisProgress is an immutable point-in-time snapshot.
type AnalysisProgress struct {
	Stage          Stage               `json:"stage"`
	Progress       float64             `json:"progress"`
	Message        string              `json:"message"`
	Competitors    []Competitor        `json:"competitors"`
	Prompts        []PromptProgress    `json:"prompts"`
	PartialResults []CompetitorRanking `json:"partial_results"`
	Sequence       int                 `json:"sequence"`
	Final          bool                `json:"final"`
}
