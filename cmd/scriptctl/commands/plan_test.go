package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/capture"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/service/search"
	"github.com/kapu/persona-script-go/internal/session"
)

type planAnalyzer struct {
	contextCalls int
}

func (a *planAnalyzer) AnalyzePersona(_ context.Context, p domain.Persona, _ domain.ModelSettings) (*domain.StyleProfile, error) {
	return &domain.StyleProfile{Tone: "Calm", PersonaStyle: p.Name + " style", Topics: []string{"Rockets"}}, nil
}

func (a *planAnalyzer) AnalyzeShowContext(context.Context, []domain.SourceItem, domain.ModelSettings) (*domain.ShowContextResult, error) {
	a.contextCalls++
	return &domain.ShowContextResult{Title: "From Notes", Intro: "An intro", Topics: []string{"Orbits"}}, nil
}

type planWriter struct {
	show domain.ShowStructure
}

func (w *planWriter) Generate(_ context.Context, show domain.ShowStructure, personas []domain.Persona, _ domain.ModelSettings) ([]domain.DialogueLine, error) {
	w.show = show
	lines := make([]domain.DialogueLine, 0, len(personas))
	for i, p := range personas {
		lines = append(lines, domain.DialogueLine{ID: p.ID + "-line", PersonaID: p.ID, SpeakerName: p.Name, Line: strings.Repeat("hi ", i+1)})
	}
	return lines, nil
}

func (w *planWriter) Refine(context.Context, []domain.Persona, []domain.DialogueLine, string, string, domain.ModelSettings) (string, error) {
	return "", nil
}

func (w *planWriter) Continue(context.Context, []domain.Persona, []domain.DialogueLine, domain.ModelSettings) (domain.DialogueLine, error) {
	return domain.DialogueLine{}, nil
}

type noSearch struct{}

func (noSearch) Search(context.Context, string, search.Credentials) ([]domain.SearchResultItem, error) {
	return nil, nil
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestParsePlanValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"no personas", "show:\n  title: x\n", "at least one persona"},
		{"blank name", "personas:\n  - name: ' '\n    sources: [{path: a.txt}]\n", "name is required"},
		{"duplicate", "personas:\n  - name: Alex\n    sources: [{path: a.txt}]\n  - name: alex\n    sources: [{path: b.txt}]\n", "duplicate name"},
		{"no sources", "personas:\n  - name: Alex\n", "at least one source"},
		{"bad kind", "personas:\n  - name: Alex\n    sources: [{path: a.bin, kind: hologram}]\n", "unsupported kind"},
		{"unknown host", "personas:\n  - name: Alex\n    sources: [{path: a.txt}]\nshow:\n  host: Sam\n", "does not match"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSourceKindInference(t *testing.T) {
	cases := map[string]domain.MediaKind{
		"talk.MP3":   domain.MediaKindAudio,
		"clip.mov":   domain.MediaKindVideo,
		"slide.png":  domain.MediaKindImage,
		"paper.pdf":  domain.MediaKindText,
		"notes":      domain.MediaKindText,
		"script.vtt": domain.MediaKindText,
	}
	for path, want := range cases {
		got, err := PlanSource{Path: path}.kind()
		if err != nil || got != want {
			t.Fatalf("%s: got %v %v, want %v", path, got, err, want)
		}
	}
	if got, _ := (PlanSource{Path: "x.txt", Kind: "audio"}).kind(); got != domain.MediaKindAudio {
		t.Fatalf("explicit kind should win, got %v", got)
	}
}

func TestLoadPlanResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plan.yaml", "personas:\n  - name: Alex\n    sources: [{path: alex.txt}, {path: /abs/x.txt}]\n")

	plan, err := LoadPlan(filepath.Join(dir, "plan.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := plan.Personas[0].Sources[0].Path; got != filepath.Join(dir, "alex.txt") {
		t.Fatalf("unexpected resolved path %q", got)
	}
	if got := plan.Personas[0].Sources[1].Path; got != "/abs/x.txt" {
		t.Fatalf("absolute path changed: %q", got)
	}
}

func newRunner(analyzer *planAnalyzer, writer *planWriter) (*Runner, *session.Store, *session.Workflow) {
	capturer := capture.NewCapturer(capture.Options{}, nil, zap.NewNop())
	wf := session.NewWorkflow(analyzer, writer, noSearch{}, capturer, zap.NewNop())
	store := session.NewStore(domain.ModelSettings{Model: "gemini-2.5-flash", Temperature: 0.7}, zap.NewNop())
	return &Runner{Workflow: wf, Progress: &bytes.Buffer{}}, store, wf
}

func TestRunnerProducesScript(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alex.txt", "Alex talks about rockets.")
	writeFile(t, dir, "sam.txt", "Sam talks about orbits.")
	writeFile(t, dir, "plan.yaml", `
settings:
  model: gemini-3-pro-preview
  temperature: 1.1
personas:
  - name: Alex
    role: Host
    sources: [{path: alex.txt}]
  - name: Sam
    role: Guest
    sources: [{path: sam.txt}]
show:
  title: Deep Space Weekly
  host: sam
`)
	plan, err := LoadPlan(filepath.Join(dir, "plan.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	analyzer, writer := &planAnalyzer{}, &planWriter{}
	runner, store, wf := newRunner(analyzer, writer)
	defer store.Close()
	defer wf.Wait()

	st, err := runner.Run(context.Background(), store.Create(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if st.Step != domain.StepRefineScript || len(st.Script) != 2 {
		t.Fatalf("unexpected state step=%v lines=%d", st.Step, len(st.Script))
	}
	if st.Settings.Model != "gemini-3-pro-preview" || st.Settings.Temperature != 1.1 {
		t.Fatalf("settings not applied: %+v", st.Settings)
	}
	if st.Show.HostName(st.Personas) != "Sam" {
		t.Fatalf("host should resolve case-insensitively, got %q", st.Show.HostName(st.Personas))
	}
	if writer.show.Title != "Deep Space Weekly" || len(writer.show.Topics) != 1 || writer.show.Topics[0] != "Rockets" {
		t.Fatalf("unexpected show sent to generation: %+v", writer.show)
	}
	if analyzer.contextCalls != 0 {
		t.Fatalf("no context sources, analysis should be skipped")
	}

	out := t.TempDir()
	path, err := writeExport(st, out)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if filepath.Base(path) != "deep_space_weekly_script.json" {
		t.Fatalf("unexpected export name %q", path)
	}
	data, _ := os.ReadFile(path)
	var doc session.ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if doc.Show.Host != "Sam" || len(doc.Script) != 2 {
		t.Fatalf("unexpected export %+v", doc)
	}
}

func TestRunnerUsesShowContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alex.txt", "Alex.")
	writeFile(t, dir, "notes.md", "Episode notes.")
	writeFile(t, dir, "plan.yaml", "personas:\n  - name: Alex\n    sources: [{path: alex.txt}]\nshow:\n  context: [{path: notes.md}]\n")

	plan, err := LoadPlan(filepath.Join(dir, "plan.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	analyzer, writer := &planAnalyzer{}, &planWriter{}
	runner, store, wf := newRunner(analyzer, writer)
	defer store.Close()
	defer wf.Wait()

	st, err := runner.Run(context.Background(), store.Create(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if analyzer.contextCalls != 1 {
		t.Fatalf("expected one context analysis, got %d", analyzer.contextCalls)
	}
	if st.Show.Title != "From Notes" || st.Show.Topics[0] != "Orbits" {
		t.Fatalf("context result not applied: %+v", st.Show)
	}
	if st.Show.HostName(st.Personas) != "Alex" {
		t.Fatalf("first persona should host by default")
	}
}
