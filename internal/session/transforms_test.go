package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/pkg/errors"
)

func profileWithTopics(topics ...string) *domain.StyleProfile {
	return &domain.StyleProfile{Tone: "Calm", PersonaStyle: "Analytical", Topics: topics}
}

func TestAddPersona_DefaultNames(t *testing.T) {
	s := NewState("s1", domain.ModelSettings{})
	s = AddPersona(s, "p1")
	s = AddPersona(s, "p2")
	if s.Personas[0].Name != "Speaker 1" || s.Personas[1].Name != "Speaker 2" {
		t.Fatalf("unexpected names %q %q", s.Personas[0].Name, s.Personas[1].Name)
	}
	if s.Show.Title != "Untitled Episode" {
		t.Fatalf("unexpected default title %q", s.Show.Title)
	}
}

func TestDeletePersona_ClearsReferences(t *testing.T) {
	s := NewState("s1", domain.ModelSettings{})
	s = AddPersona(s, "p1")
	s = AddPersona(s, "p2")
	s.Show.PrimaryHostID = "p1"
	s.Script = []domain.DialogueLine{
		{ID: "l1", SpeakerName: "Speaker 1", PersonaID: "p1", Line: "Hi"},
		{ID: "l2", SpeakerName: "Speaker 2", PersonaID: "p2", Line: "Hey"},
	}

	s, err := DeletePersona(s, "p1")
	if err != nil {
		t.Fatalf("DeletePersona failed: %v", err)
	}
	if s.Show.PrimaryHostID != "" {
		t.Fatalf("host reference should be cleared, got %q", s.Show.PrimaryHostID)
	}
	if s.Script[0].PersonaID != "" || s.Script[0].SpeakerName != "Speaker 1" {
		t.Fatalf("line should keep its speaker name and lose the persona id: %+v", s.Script[0])
	}
	if s.Script[1].PersonaID != "p2" {
		t.Fatalf("other lines must be untouched")
	}
	if len(s.Personas) != 1 || s.Personas[0].ID != "p2" {
		t.Fatalf("unexpected personas %+v", s.Personas)
	}

	if _, err := DeletePersona(s, "p1"); !errors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSetProfile_RewritesSpeakingStyle(t *testing.T) {
	s := AddPersona(NewState("s1", domain.ModelSettings{}), "p1")
	s.Personas[0].IsAnalyzing = true

	s, err := SetProfile(s, "p1", profileWithTopics("AI"))
	if err != nil {
		t.Fatalf("SetProfile failed: %v", err)
	}
	if s.Personas[0].SpeakingStyle != "Calm, Analytical" || s.Personas[0].IsAnalyzing {
		t.Fatalf("unexpected persona %+v", s.Personas[0])
	}
}

func TestUpdateShow_RejectsUnknownHost(t *testing.T) {
	s := AddPersona(NewState("s1", domain.ModelSettings{}), "p1")
	unknown := "nobody"
	if _, err := UpdateShow(s, domain.ShowUpdate{PrimaryHostID: &unknown}); !errors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	host := "p1"
	s, err := UpdateShow(s, domain.ShowUpdate{PrimaryHostID: &host})
	if err != nil || s.Show.PrimaryHostID != "p1" {
		t.Fatalf("expected host set, got %v %+v", err, s.Show)
	}
}

func TestRemoveSources(t *testing.T) {
	s := AddPersona(NewState("s1", domain.ModelSettings{}), "p1")
	s, _ = AppendPersonaSources(s, "p1", []domain.SourceItem{{ID: "a"}, {ID: "b"}})
	s = AppendContextSources(s, []domain.SourceItem{{ID: "c"}})

	s, err := RemovePersonaSource(s, "p1", "a")
	if err != nil || len(s.Personas[0].Sources) != 1 || s.Personas[0].Sources[0].ID != "b" {
		t.Fatalf("unexpected sources %v %+v", err, s.Personas[0].Sources)
	}
	s, err = RemoveContextSource(s, "c")
	if err != nil || len(s.Show.ContextSources) != 0 {
		t.Fatalf("unexpected context sources %v %+v", err, s.Show.ContextSources)
	}
	if _, err := RemoveContextSource(s, "c"); !errors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSetSettings_Validation(t *testing.T) {
	s := NewState("s1", domain.ModelSettings{})
	if _, err := SetSettings(s, domain.ModelSettings{Model: "gemini-2.5-flash", Temperature: 2.5}); err == nil {
		t.Fatalf("expected temperature rejection")
	}
	if _, err := SetSettings(s, domain.ModelSettings{Model: "unknown", Temperature: 0.7}); err == nil {
		t.Fatalf("expected unknown model rejection")
	}
	s, err := SetSettings(s, domain.ModelSettings{Model: " gemini-3-pro-preview ", ThinkingBudget: " 200 ", Temperature: 1})
	if err != nil || s.Settings.Model != "gemini-3-pro-preview" || s.Settings.ThinkingBudget != "200" {
		t.Fatalf("unexpected settings %v %+v", err, s.Settings)
	}
}

func TestSteps(t *testing.T) {
	s := NewState("s1", domain.ModelSettings{})

	if _, err := Next(s); err == nil {
		t.Fatalf("step 1 without personas must not advance")
	}

	s = AddPersona(s, "p1")
	if _, err := Next(s); err == nil {
		t.Fatalf("step 1 with unanalyzed persona must not advance")
	}

	s.Personas[0].Profile = profileWithTopics("AI", "ai", "Ethics")
	s, err := Next(s)
	if err != nil {
		t.Fatalf("Next from step 1 failed: %v", err)
	}
	if s.Step != domain.StepShowStructure {
		t.Fatalf("expected step 2, got %v", s.Step)
	}
	if len(s.Show.Topics) != 2 || s.Show.Topics[0] != "AI" || s.Show.Topics[1] != "Ethics" {
		t.Fatalf("unexpected seeded topics %v", s.Show.Topics)
	}

	if _, err := Next(s); err == nil {
		t.Fatalf("step 2 without host must not advance")
	}
	s.Show.PrimaryHostID = "p1"
	s.Show.Topics = []string{"AI", " "}
	if _, err := Next(s); err == nil {
		t.Fatalf("step 2 with a blank topic must not advance")
	}
	s.Show.Topics = []string{"AI"}
	s, err = Next(s)
	if err != nil || s.Step != domain.StepGenerateDialogue {
		t.Fatalf("expected step 3, got %v %v", s.Step, err)
	}

	if _, err := GoTo(s, domain.StepFinalReview); err == nil {
		t.Fatalf("forward jumps must be rejected")
	}
	s, err = GoTo(s, domain.StepPersonaConfig)
	if err != nil || s.Step != domain.StepPersonaConfig {
		t.Fatalf("backward jump failed: %v", err)
	}
	if Prev(s).Step != domain.StepPersonaConfig {
		t.Fatalf("Prev on step 1 must be a no-op")
	}
}

func TestSeedTopics_Fallback(t *testing.T) {
	topics := SeedTopics([]domain.Persona{{ID: "p1", Profile: profileWithTopics()}})
	if len(topics) != 1 || topics[0] != "Main Topic" {
		t.Fatalf("unexpected fallback topics %v", topics)
	}

	many := SeedTopics([]domain.Persona{
		{Profile: profileWithTopics("a", "b", "c")},
		{Profile: profileWithTopics("d", "e", "f")},
	})
	if len(many) != 5 {
		t.Fatalf("seeded topics must be capped at 5, got %v", many)
	}
}

func TestSeedOnlyWhenTopicsEmpty(t *testing.T) {
	s := AddPersona(NewState("s1", domain.ModelSettings{}), "p1")
	s.Personas[0].Profile = profileWithTopics("AI")
	s.Show.Topics = []string{"Existing"}

	s, err := Next(s)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(s.Show.Topics) != 1 || s.Show.Topics[0] != "Existing" {
		t.Fatalf("existing topics must be kept, got %v", s.Show.Topics)
	}
}

func TestShouldAutoSearch(t *testing.T) {
	s := NewState("s1", domain.ModelSettings{})
	s.Step = domain.StepRefineScript
	s.Show.Topics = []string{"AI"}
	if ShouldAutoSearch(s) {
		t.Fatalf("empty script must not trigger")
	}
	s.Script = []domain.DialogueLine{{ID: "l1", SpeakerName: "A", Line: "hi"}}
	if !ShouldAutoSearch(s) {
		t.Fatalf("expected trigger")
	}
	s.SearchError = "boom"
	if ShouldAutoSearch(s) {
		t.Fatalf("a recorded search error must suppress the trigger")
	}
	s.SearchError = ""
	s.Flags.AutoSearched = true
	if ShouldAutoSearch(s) {
		t.Fatalf("the trigger must not fire twice")
	}
}

func TestExport_RoundTrip(t *testing.T) {
	s := AddPersona(NewState("s1", domain.ModelSettings{}), "p1")
	s.Personas[0].Name = "Alex"
	s.Show.Title = "My Show"
	s.Show.PrimaryHostID = "p1"
	s.Script = []domain.DialogueLine{{ID: "l1", SpeakerName: "Alex", PersonaID: "p1", Line: "Hello"}}

	doc, filename := Export(s, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if filename != "my_show_script.json" {
		t.Fatalf("unexpected filename %q", filename)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Show struct {
			Title       string `json:"title"`
			GeneratedAt string `json:"generatedAt"`
			Host        string `json:"host"`
		} `json:"show"`
		Personas []struct {
			Name string `json:"name"`
		} `json:"personas"`
		Script []struct {
			Speaker string `json:"speaker"`
			Text    string `json:"text"`
		} `json:"script"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Script) != 1 || decoded.Script[0].Speaker != "Alex" || decoded.Script[0].Text != "Hello" {
		t.Fatalf("unexpected script %+v", decoded.Script)
	}
	if decoded.Personas[0].Name != "Alex" || decoded.Show.Host != "Alex" {
		t.Fatalf("unexpected personas/host %+v %+v", decoded.Personas, decoded.Show)
	}
	if decoded.Show.GeneratedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %q", decoded.Show.GeneratedAt)
	}
}

func TestExportFilename(t *testing.T) {
	cases := map[string]string{
		"My Show":      "my_show_script.json",
		"   ":          "podcast_script.json",
		"AI & Ethics!": "ai___ethics__script.json",
	}
	for title, want := range cases {
		if got := ExportFilename(title); got != want {
			t.Errorf("ExportFilename(%q) = %q, want %q", title, got, want)
		}
	}
}
