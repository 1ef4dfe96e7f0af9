package session

import (
	"strings"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/pkg/errors"
)

// CanAdvance reports why the current step may not be left forward, or nil.
func CanAdvance(s State) error {
	switch s.Step {
	case domain.StepPersonaConfig:
		if len(s.Personas) == 0 {
			return errors.NewConflictError("Add at least one persona before continuing.")
		}
		for _, p := range s.Personas {
			if !p.HasProfile() {
				return errors.NewConflictError("Analyze every persona before continuing.")
			}
		}
	case domain.StepShowStructure:
		if strings.TrimSpace(s.Show.Title) == "" {
			return errors.NewConflictError("Give the episode a title before continuing.")
		}
		if s.Show.HostName(s.Personas) == "" {
			return errors.NewConflictError("Select a primary host before continuing.")
		}
		if !s.Show.TopicsReady() {
			return errors.NewConflictError("Every topic must be filled in before continuing.")
		}
	case domain.StepGenerateDialogue:
		if len(s.Script) == 0 {
			return errors.NewConflictError("Generate a script before continuing.")
		}
	case domain.StepRefineScript:
		if len(s.Script) == 0 {
			return errors.NewConflictError("The script is empty.")
		}
		if s.Flags.RefiningLineID != "" || s.Flags.AddingNextLine {
			return errors.NewConflictError("Wait for the current line edit to finish.")
		}
	case domain.StepFinalReview:
		return errors.NewConflictError("This is the last step.")
	}
	return nil
}

// Next advances one step. Leaving the first step with no topics seeds them from the
// persona profiles, or with a single placeholder topic.
func Next(s State) (State, error) {
	if err := CanAdvance(s); err != nil {
		return s, err
	}
	if s.Step == domain.StepPersonaConfig && len(s.Show.Topics) == 0 {
		s.Show.Topics = SeedTopics(s.Personas)
	}
	s.Step++
	return s, nil
}

// Prev moves back one step; it is a no-op on the first step.
func Prev(s State) State {
	if s.Step > domain.StepPersonaConfig {
		s.Step--
	}
	return s
}

// GoTo jumps to an earlier step. Forward jumps go through Next.
func GoTo(s State, target domain.Step) (State, error) {
	if !target.IsValid() {
		return s, errors.NewValidationError("Unknown step.", "step", int(target))
	}
	if target >= s.Step {
		return s, errors.NewConflictError("Use Next to move forward.")
	}
	s.Step = target
	return s, nil
}

// SeedTopics returns the unique profile topics of personas, or the fallback topic.
func SeedTopics(personas []domain.Persona) []string {
	var all []string
	for _, p := range personas {
		if p.Profile != nil {
			all = append(all, p.Profile.Topics...)
		}
	}
	topics := domain.UniqueTopics(all, constants.AIInputLimits.MaxSeededTopics)
	if len(topics) == 0 {
		return []string{constants.SessionDefaults.FallbackTopic}
	}
	return topics
}

// ShouldAutoSearch reports whether the one-time lookup should fire for s. It fires at most
// once per session, whatever the lookup returned.
func ShouldAutoSearch(s State) bool {
	return !s.Flags.AutoSearched &&
		s.Step == domain.StepRefineScript &&
		len(s.Script) > 0 &&
		len(s.SearchResults) == 0 &&
		s.SearchError == "" &&
		!s.Flags.Searching &&
		len(s.Show.Topics) > 0
}
