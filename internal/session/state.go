package session

import (
	"time"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
)

// Flags are the session-wide in-flight markers. Persona analysis is tracked per persona.
type Flags struct {
	ContextAnalyzing bool   `json:"contextAnalyzing"`
	Generating       bool   `json:"generating"`
	RefiningLineID   string `json:"refiningLineId,omitempty"`
	AddingNextLine   bool   `json:"addingNextLine"`
	Searching        bool   `json:"searching"`
	AutoSearched     bool   `json:"autoSearched"`
}

// State is one immutable snapshot of a session. Transformations return a new value.
type State struct {
	ID            string                    `json:"id"`
	Step          domain.Step               `json:"step"`
	Personas      []domain.Persona          `json:"personas"`
	Show          domain.ShowStructure      `json:"show"`
	Script        []domain.DialogueLine     `json:"script"`
	SearchResults []domain.SearchResultItem `json:"searchResults"`
	SearchError   string                    `json:"searchError,omitempty"`
	Settings      domain.ModelSettings      `json:"settings"`
	Flags         Flags                     `json:"flags"`
	Error         string                    `json:"error,omitempty"`
	Revision      int64                     `json:"revision"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

func NewState(id string, settings domain.ModelSettings) State {
	return State{
		ID:            id,
		Step:          domain.StepPersonaConfig,
		Personas:      []domain.Persona{},
		Show:          domain.ShowStructure{Title: constants.SessionDefaults.ShowTitle, Topics: []string{}},
		Script:        []domain.DialogueLine{},
		SearchResults: []domain.SearchResultItem{},
		Settings:      settings,
	}
}

// Clone deep-copies every slice so the copy shares nothing with s.
func (s State) Clone() State {
	personas := make([]domain.Persona, len(s.Personas))
	for i, p := range s.Personas {
		personas[i] = p.Clone()
	}
	s.Personas = personas
	s.Show = s.Show.Clone()
	s.Script = domain.CloneLines(s.Script)
	s.SearchResults = append([]domain.SearchResultItem{}, s.SearchResults...)
	return s
}

// Busy reports whether any external call is in flight.
func (s State) Busy() bool {
	if s.Flags.ContextAnalyzing || s.Flags.Generating || s.Flags.RefiningLineID != "" ||
		s.Flags.AddingNextLine || s.Flags.Searching {
		return true
	}
	for _, p := range s.Personas {
		if p.IsAnalyzing {
			return true
		}
	}
	return false
}

// Summary is the listing view of a session.
type Summary struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Step      domain.Step `json:"step"`
	Personas  int         `json:"personas"`
	Lines     int         `json:"lines"`
	Revision  int64       `json:"revision"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (s State) Summary() Summary {
	return Summary{
		ID:        s.ID,
		Title:     s.Show.Title,
		Step:      s.Step,
		Personas:  len(s.Personas),
		Lines:     len(s.Script),
		Revision:  s.Revision,
		UpdatedAt: s.UpdatedAt,
	}
}
