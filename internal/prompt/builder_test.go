package prompt

import (
	"strings"
	"testing"

	"github.com/kapu/persona-script-go/internal/domain"
)

func TestEveryTemplateLoads(t *testing.T) {
	pb := NewPromptBuilder()
	for _, name := range []TemplateName{
		TemplatePersonaAnalysis,
		TemplateShowContext,
		TemplateDialogue,
		TemplateRefineLine,
		TemplateNextLine,
	} {
		if _, err := pb.getTemplate(name); err != nil {
			t.Fatalf("template %s: %v", name, err)
		}
	}
}

func TestBuildPersonaAnalysisIncludesRubric(t *testing.T) {
	p, err := BuildPersonaAnalysis(PersonaAnalysisVars{PersonaName: "Alex", SourceCount: 2, MaxTopics: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(p.System, "Systemic Functional Linguistics") {
		t.Fatalf("system prompt missing role: %q", p.System)
	}
	for _, want := range []string{`"processDistribution"`, "Definitional Expert", "up to 5", `speaker "Alex"`, "2 source(s)"} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("user prompt missing %q", want)
		}
	}
}

func TestBuildDialogueDefaultsHost(t *testing.T) {
	personas := []domain.Persona{{ID: "p1", Name: "Alex", Role: "Host"}}
	personasJSON, err := PersonasJSON(personas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := BuildDialogue(DialogueVars{
		Title:        "My Show",
		Topics:       []string{"One", "Two"},
		PersonasJSON: personasJSON,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(p.User, `Primary Host: "N/A"`) {
		t.Fatalf("expected N/A host, got %q", p.User)
	}
	if !strings.Contains(p.User, "Key Topics: One, Two") {
		t.Fatalf("expected joined topics")
	}
	if !strings.Contains(p.User, `"sflProfile": null`) {
		t.Fatalf("expected persona JSON with null profile")
	}
	if strings.Contains(p.User, "CONTEXT MATERIAL") {
		t.Fatalf("context block should be omitted without context sources")
	}
}

func TestBuildNextLineMentionsLastSpeaker(t *testing.T) {
	p, err := BuildNextLine(NextLineVars{PersonasJSON: "[]", History: "A: hi", LastSpeaker: "A"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(p.User, `previous speaker was "A"`) {
		t.Fatalf("missing last speaker: %q", p.User)
	}
}
