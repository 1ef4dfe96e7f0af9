package session

import (
	"fmt"
	"strings"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/pkg/errors"
)

// Transform is a pure state transformation applied by Session.Apply.
type Transform func(State) (State, error)

// AddPersona appends an empty persona named "Speaker N".
func AddPersona(s State, id string) State {
	s.Personas = append(s.Personas, domain.Persona{
		ID:      id,
		Name:    fmt.Sprintf("%s %d", constants.SessionDefaults.PersonaPrefix, len(s.Personas)+1),
		Sources: []domain.SourceItem{},
	})
	return s
}

func UpdatePersona(s State, id string, upd domain.PersonaUpdate) (State, error) {
	i, ok := domain.FindPersona(s.Personas, id)
	if !ok {
		return s, errors.NewNotFoundError("persona", id)
	}
	s.Personas[i] = upd.Apply(s.Personas[i])
	return s, nil
}

// DeletePersona removes the persona and eagerly clears references to it: the primary host
// is unset and its dialogue lines lose their persona id but keep the speaker name.
func DeletePersona(s State, id string) (State, error) {
	i, ok := domain.FindPersona(s.Personas, id)
	if !ok {
		return s, errors.NewNotFoundError("persona", id)
	}
	if s.Personas[i].IsAnalyzing {
		return s, errors.NewConflictError("This persona is being analyzed. Wait for the analysis to finish before deleting it.")
	}
	s.Personas = append(s.Personas[:i], s.Personas[i+1:]...)

	if s.Show.PrimaryHostID == id {
		s.Show.PrimaryHostID = ""
	}
	for j := range s.Script {
		if s.Script[j].PersonaID == id {
			s.Script[j].PersonaID = ""
		}
	}
	return s, nil
}

func AppendPersonaSources(s State, id string, items []domain.SourceItem) (State, error) {
	i, ok := domain.FindPersona(s.Personas, id)
	if !ok {
		return s, errors.NewNotFoundError("persona", id)
	}
	s.Personas[i].Sources = append(s.Personas[i].Sources, items...)
	return s, nil
}

func RemovePersonaSource(s State, personaID, sourceID string) (State, error) {
	i, ok := domain.FindPersona(s.Personas, personaID)
	if !ok {
		return s, errors.NewNotFoundError("persona", personaID)
	}
	sources, removed := removeSource(s.Personas[i].Sources, sourceID)
	if !removed {
		return s, errors.NewNotFoundError("source", sourceID)
	}
	s.Personas[i].Sources = sources
	return s, nil
}

func SetPersonaAnalyzing(s State, id string, analyzing bool) (State, error) {
	i, ok := domain.FindPersona(s.Personas, id)
	if !ok {
		return s, errors.NewNotFoundError("persona", id)
	}
	s.Personas[i].IsAnalyzing = analyzing
	return s, nil
}

// SetProfile stores the analysis result and rewrites the speaking style from it.
func SetProfile(s State, id string, profile *domain.StyleProfile) (State, error) {
	i, ok := domain.FindPersona(s.Personas, id)
	if !ok {
		return s, errors.NewNotFoundError("persona", id)
	}
	s.Personas[i].Profile = profile.Clone()
	if profile != nil {
		s.Personas[i].SpeakingStyle = profile.SpeakingStyleSummary()
	}
	s.Personas[i].IsAnalyzing = false
	return s, nil
}

// UpdateShow applies a partial show edit. A non-empty host must name an existing persona.
func UpdateShow(s State, upd domain.ShowUpdate) (State, error) {
	if upd.PrimaryHostID != nil && *upd.PrimaryHostID != "" {
		if _, ok := domain.FindPersona(s.Personas, *upd.PrimaryHostID); !ok {
			return s, errors.NewNotFoundError("persona", *upd.PrimaryHostID)
		}
	}
	s.Show = upd.Apply(s.Show)
	return s, nil
}

func AppendContextSources(s State, items []domain.SourceItem) State {
	s.Show.ContextSources = append(s.Show.ContextSources, items...)
	return s
}

func RemoveContextSource(s State, sourceID string) (State, error) {
	sources, removed := removeSource(s.Show.ContextSources, sourceID)
	if !removed {
		return s, errors.NewNotFoundError("source", sourceID)
	}
	s.Show.ContextSources = sources
	return s, nil
}

// ApplyShowContext overwrites title, intro and topics wholesale.
func ApplyShowContext(s State, res domain.ShowContextResult) State {
	s.Show.Title = res.Title
	s.Show.Intro = res.Intro
	s.Show.Topics = append([]string{}, res.Topics...)
	return s
}

func SetScript(s State, lines []domain.DialogueLine) State {
	s.Script = domain.CloneLines(lines)
	if s.Script == nil {
		s.Script = []domain.DialogueLine{}
	}
	return s
}

func ReplaceLineText(s State, lineID, text string) (State, error) {
	i, ok := domain.FindLine(s.Script, lineID)
	if !ok {
		return s, errors.NewNotFoundError("line", lineID)
	}
	s.Script[i].Line = strings.TrimSpace(text)
	return s, nil
}

func AppendLine(s State, line domain.DialogueLine) State {
	s.Script = append(s.Script, line)
	return s
}

func SetSearchResults(s State, items []domain.SearchResultItem) State {
	s.SearchResults = append([]domain.SearchResultItem{}, items...)
	s.SearchError = ""
	return s
}

func SetSearchError(s State, message string) State {
	s.SearchError = message
	return s
}

// SetSettings validates and stores the model settings.
func SetSettings(s State, settings domain.ModelSettings) (State, error) {
	settings.Model = strings.TrimSpace(settings.Model)
	if settings.Model == "" {
		return s, errors.NewValidationError("Select a model.", "model", settings.Model)
	}
	if _, ok := domain.LookupModel(settings.Model); !ok {
		return s, errors.NewValidationError(fmt.Sprintf("Unknown model %q.", settings.Model), "model", settings.Model)
	}
	if settings.Temperature < constants.TemperatureRange.Min || settings.Temperature > constants.TemperatureRange.Max {
		return s, errors.NewValidationError("Temperature must be between 0.0 and 2.0.", "temperature", settings.Temperature)
	}
	settings.ThinkingBudget = strings.TrimSpace(settings.ThinkingBudget)
	settings.SearchAPIKey = strings.TrimSpace(settings.SearchAPIKey)
	settings.SearchEngineID = strings.TrimSpace(settings.SearchEngineID)
	s.Settings = settings
	return s, nil
}

func SetError(s State, message string) State {
	s.Error = message
	return s
}

func ClearError(s State) State {
	s.Error = ""
	return s
}

func removeSource(sources []domain.SourceItem, id string) ([]domain.SourceItem, bool) {
	for i, src := range sources {
		if src.ID == id {
			return append(sources[:i], sources[i+1:]...), true
		}
	}
	return sources, false
}
