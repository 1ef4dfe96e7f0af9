package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/kapu/persona-script-go/internal/domain"
)

type PersonaAnalysisVars struct {
	PersonaName string
	SourceCount int
	MaxTopics   int
}

func BuildPersonaAnalysis(vars PersonaAnalysisVars) (Prompt, error) {
	return DefaultPromptBuilder().Render(TemplatePersonaAnalysis, vars)
}

type ShowContextVars struct {
	SourceCount int
	MaxTopics   int
}

func BuildShowContext(vars ShowContextVars) (Prompt, error) {
	return DefaultPromptBuilder().Render(TemplateShowContext, vars)
}

type DialogueVars struct {
	Title        string
	HostName     string
	Intro        string
	Topics       []string
	PersonasJSON string
	HasContext   bool
}

func BuildDialogue(vars DialogueVars) (Prompt, error) {
	if vars.HostName == "" {
		vars.HostName = "N/A"
	}
	return DefaultPromptBuilder().Render(TemplateDialogue, vars)
}

type RefineLineVars struct {
	PersonasJSON string
	History      string
	Speaker      string
	Line         string
	Instruction  string
}

func BuildRefineLine(vars RefineLineVars) (Prompt, error) {
	return DefaultPromptBuilder().Render(TemplateRefineLine, vars)
}

type NextLineVars struct {
	PersonasJSON string
	History      string
	LastSpeaker  string
}

func BuildNextLine(vars NextLineVars) (Prompt, error) {
	return DefaultPromptBuilder().Render(TemplateNextLine, vars)
}

// PersonasJSON serialises the persona roster the way every generation prompt embeds it.
func PersonasJSON(personas []domain.Persona) (string, error) {
	data, err := json.MarshalIndent(domain.Briefs(personas), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal personas: %w", err)
	}
	return string(data), nil
}
