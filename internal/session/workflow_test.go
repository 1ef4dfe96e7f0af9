package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/capture"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/service/search"
	"github.com/kapu/persona-script-go/pkg/errors"
)

type fakeAnalyzer struct {
	profile *domain.StyleProfile
	showCtx *domain.ShowContextResult
	err     error
	calls   int
	// during runs while the call is in flight
	during func()
}

func (f *fakeAnalyzer) AnalyzePersona(_ context.Context, _ domain.Persona, _ domain.ModelSettings) (*domain.StyleProfile, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	return f.profile, f.err
}

func (f *fakeAnalyzer) AnalyzeShowContext(_ context.Context, _ []domain.SourceItem, _ domain.ModelSettings) (*domain.ShowContextResult, error) {
	f.calls++
	return f.showCtx, f.err
}

type fakeWriter struct {
	lines   []domain.DialogueLine
	refined string
	next    domain.DialogueLine
	err     error
	calls   int
}

func (f *fakeWriter) Generate(context.Context, domain.ShowStructure, []domain.Persona, domain.ModelSettings) ([]domain.DialogueLine, error) {
	f.calls++
	return f.lines, f.err
}

func (f *fakeWriter) Refine(context.Context, []domain.Persona, []domain.DialogueLine, string, string, domain.ModelSettings) (string, error) {
	f.calls++
	return f.refined, f.err
}

func (f *fakeWriter) Continue(context.Context, []domain.Persona, []domain.DialogueLine, domain.ModelSettings) (domain.DialogueLine, error) {
	f.calls++
	return f.next, f.err
}

type fakeSearcher struct {
	mu      sync.Mutex
	items   []domain.SearchResultItem
	err     error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ search.Credentials) ([]domain.SearchResultItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.items, f.err
}

func (f *fakeSearcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fixture struct {
	sess     *Session
	wf       *Workflow
	analyzer *fakeAnalyzer
	writer   *fakeWriter
	searcher *fakeSearcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewStore(domain.ModelSettings{Model: "gemini-2.5-flash", Temperature: 0.7}, zap.NewNop())
	t.Cleanup(store.Close)

	f := &fixture{
		sess:     store.Create(),
		analyzer: &fakeAnalyzer{},
		writer:   &fakeWriter{},
		searcher: &fakeSearcher{},
	}
	capturer := capture.NewCapturer(capture.Options{MaxFileBytes: 1024, MaxConcurrency: 2}, nil, zap.NewNop())
	f.wf = NewWorkflow(f.analyzer, f.writer, f.searcher, capturer, zap.NewNop())
	t.Cleanup(f.wf.Wait)
	return f
}

// readyForScript builds a session at the generation step with one host persona "Alex".
func (f *fixture) readyForScript(t *testing.T) {
	t.Helper()
	_, id := f.wf.AddPersona(f.sess)
	f.sess.Update(func(s State) State {
		s.Personas[0].Name = "Alex"
		s.Personas[0].Profile = profileWithTopics("AI")
		s.Show.PrimaryHostID = id
		s.Show.Topics = []string{"AI", "Ethics"}
		s.Step = domain.StepGenerateDialogue
		return s
	})
}

func textFile(name, body string) capture.FileInput {
	return capture.FileInput{
		Name:     name,
		MIMEType: "text/plain",
		Open:     func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func TestAnalyzePersona_CommitsProfileAndClearsFlag(t *testing.T) {
	f := newFixture(t)
	_, id := f.wf.AddPersona(f.sess)
	f.sess.Apply(func(s State) (State, error) {
		return AppendPersonaSources(s, id, []domain.SourceItem{{ID: "src", Kind: domain.MediaKindText, Data: "x"}})
	})

	f.analyzer.profile = profileWithTopics("AI")
	f.analyzer.during = func() {
		if !f.sess.Snapshot().Personas[0].IsAnalyzing {
			t.Errorf("persona should be flagged while the call runs")
		}
	}

	st, err := f.wf.AnalyzePersona(context.Background(), f.sess, id)
	if err != nil {
		t.Fatalf("AnalyzePersona failed: %v", err)
	}
	p := st.Personas[0]
	if p.IsAnalyzing || p.Profile == nil || p.SpeakingStyle != "Calm, Analytical" {
		t.Fatalf("unexpected persona %+v", p)
	}
}

func TestAnalyzePersona_FailureSetsBannerAndKeepsProfile(t *testing.T) {
	f := newFixture(t)
	_, id := f.wf.AddPersona(f.sess)
	f.sess.Apply(func(s State) (State, error) {
		s.Personas[0].Profile = profileWithTopics("Old")
		return AppendPersonaSources(s, id, []domain.SourceItem{{ID: "src", Kind: domain.MediaKindText, Data: "x"}})
	})
	f.analyzer.err = errors.NewMalformedResponseError("SFL profile", nil)

	st, err := f.wf.AnalyzePersona(context.Background(), f.sess, id)
	if !errors.IsMalformedResponse(err) {
		t.Fatalf("expected MalformedResponse, got %v", err)
	}
	if st.Personas[0].IsAnalyzing {
		t.Fatalf("flag must be cleared after failure")
	}
	if st.Personas[0].Profile.Topics[0] != "Old" {
		t.Fatalf("failed analysis must not touch the profile")
	}
	if st.Error != "Failed to parse the SFL profile from the AI. The model returned malformed JSON." {
		t.Fatalf("unexpected banner %q", st.Error)
	}
}

func TestAnalyzePersona_NoSourcesRejectedWithoutCall(t *testing.T) {
	f := newFixture(t)
	_, id := f.wf.AddPersona(f.sess)

	st, err := f.wf.AnalyzePersona(context.Background(), f.sess, id)
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if f.analyzer.calls != 0 || st.Personas[0].IsAnalyzing {
		t.Fatalf("no request and no flag expected")
	}
	if st.Error == "" {
		t.Fatalf("rejection should be shown in the banner")
	}
}

func TestAnalyzePersona_DeletedWhileRunning(t *testing.T) {
	f := newFixture(t)
	_, id := f.wf.AddPersona(f.sess)
	f.sess.Apply(func(s State) (State, error) {
		return AppendPersonaSources(s, id, []domain.SourceItem{{ID: "src", Kind: domain.MediaKindText, Data: "x"}})
	})
	f.analyzer.profile = profileWithTopics("AI")
	f.analyzer.during = func() {
		f.sess.Update(func(s State) State {
			s.Personas = nil
			return s
		})
	}

	if _, err := f.wf.AnalyzePersona(context.Background(), f.sess, id); !errors.IsNotFound(err) {
		t.Fatalf("expected NotFound for a vanished persona, got %v", err)
	}
	if f.sess.Snapshot().Busy() {
		t.Fatalf("no flag may remain raised")
	}
}

func TestAnalyzeShowContext_OverwritesShow(t *testing.T) {
	f := newFixture(t)
	f.sess.Update(func(s State) State {
		s.Show.Topics = []string{"Old"}
		return AppendContextSources(s, []domain.SourceItem{{ID: "c", Kind: domain.MediaKindText, Data: "doc"}})
	})
	f.analyzer.showCtx = &domain.ShowContextResult{Title: "Robots", Intro: "Intro", Topics: []string{"Automation"}}

	st, err := f.wf.AnalyzeShowContext(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("AnalyzeShowContext failed: %v", err)
	}
	if st.Show.Title != "Robots" || len(st.Show.Topics) != 1 || st.Show.Topics[0] != "Automation" || st.Flags.ContextAnalyzing {
		t.Fatalf("unexpected show %+v flags %+v", st.Show, st.Flags)
	}
}

func TestGenerateScript_MovesToRefineAndAutoSearchesOnce(t *testing.T) {
	f := newFixture(t)
	f.readyForScript(t)
	f.writer.lines = []domain.DialogueLine{{ID: "l1", SpeakerName: "Alex", Line: "Hello"}}
	f.searcher.items = []domain.SearchResultItem{{Title: "r", Link: "https://r.example"}}

	st, err := f.wf.GenerateScript(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	if st.Step != domain.StepRefineScript || len(st.Script) != 1 || st.Flags.Generating {
		t.Fatalf("unexpected state step=%v lines=%d flags=%+v", st.Step, len(st.Script), st.Flags)
	}

	f.wf.Wait()
	if f.searcher.count() != 1 || f.searcher.queries[0] != "AI Ethics" {
		t.Fatalf("expected one automatic search for the joined topics, got %v", f.searcher.queries)
	}
	if len(f.sess.Snapshot().SearchResults) != 1 {
		t.Fatalf("search results should be committed")
	}

	// Results exist now, so navigating back onto the refine step does not search again.
	f.wf.GoTo(context.Background(), f.sess, domain.StepGenerateDialogue)
	f.wf.Next(context.Background(), f.sess)
	f.wf.Wait()
	if f.searcher.count() != 1 {
		t.Fatalf("search must fire only once, got %d", f.searcher.count())
	}
}

func TestAutoSearch_EmptyResultsDoNotRetrigger(t *testing.T) {
	f := newFixture(t)
	f.readyForScript(t)
	f.writer.lines = []domain.DialogueLine{{ID: "l1", SpeakerName: "Alex", Line: "Hello"}}

	if _, err := f.wf.GenerateScript(context.Background(), f.sess); err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	f.wf.Wait()
	if !f.sess.Snapshot().Flags.AutoSearched {
		t.Fatalf("the automatic trigger should be recorded")
	}

	for i := 0; i < 3; i++ {
		if _, err := f.wf.GoTo(context.Background(), f.sess, domain.StepGenerateDialogue); err != nil {
			t.Fatalf("GoTo failed: %v", err)
		}
		if _, err := f.wf.Next(context.Background(), f.sess); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		f.wf.Wait()
	}
	if _, err := f.wf.GenerateScript(context.Background(), f.sess); err != nil {
		t.Fatalf("regeneration failed: %v", err)
	}
	f.wf.Wait()

	if f.searcher.count() != 1 {
		t.Fatalf("an empty lookup must not be repeated, got %d searches", f.searcher.count())
	}

	// A manual search is still allowed.
	if _, err := f.wf.Search(context.Background(), f.sess); err != nil {
		t.Fatalf("manual search failed: %v", err)
	}
	if f.searcher.count() != 2 {
		t.Fatalf("expected the manual search to run, got %d", f.searcher.count())
	}
}

func TestGenerateScript_RequiresHost(t *testing.T) {
	f := newFixture(t)
	f.wf.AddPersona(f.sess)

	st, err := f.wf.GenerateScript(context.Background(), f.sess)
	if err == nil || f.writer.calls != 0 {
		t.Fatalf("expected rejection without a call")
	}
	if st.Error != "Please configure at least one persona and select a primary host." {
		t.Fatalf("unexpected banner %q", st.Error)
	}
}

func TestGenerateScript_FailureKeepsOldScript(t *testing.T) {
	f := newFixture(t)
	f.readyForScript(t)
	f.sess.Update(func(s State) State {
		return SetScript(s, []domain.DialogueLine{{ID: "old", SpeakerName: "Alex", Line: "Old"}})
	})
	f.writer.err = errors.NewEmptyResponseError("dialogue generation")

	st, err := f.wf.GenerateScript(context.Background(), f.sess)
	if !errors.IsEmptyResponse(err) {
		t.Fatalf("expected EmptyResponse, got %v", err)
	}
	if len(st.Script) != 1 || st.Script[0].ID != "old" || st.Flags.Generating || st.Step != domain.StepGenerateDialogue {
		t.Fatalf("failed generation must not mutate the script: %+v", st)
	}
}

func TestRefineLine_ReplacesOnlyTarget(t *testing.T) {
	f := newFixture(t)
	f.sess.Update(func(s State) State {
		return SetScript(s, []domain.DialogueLine{
			{ID: "l1", SpeakerName: "A", Line: "one"},
			{ID: "l2", SpeakerName: "B", Line: "two"},
		})
	})
	f.writer.refined = "  TWO!  "

	st, err := f.wf.RefineLine(context.Background(), f.sess, "l2", "shout")
	if err != nil {
		t.Fatalf("RefineLine failed: %v", err)
	}
	if st.Script[0].Line != "one" || st.Script[1].Line != "TWO!" || st.Flags.RefiningLineID != "" {
		t.Fatalf("unexpected script %+v", st.Script)
	}

	if _, err := f.wf.RefineLine(context.Background(), f.sess, "missing", "x"); !errors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if f.writer.calls != 1 {
		t.Fatalf("missing line must not send a request")
	}
}

func TestContinueScript_InvalidFormatAppendsNothing(t *testing.T) {
	f := newFixture(t)
	f.sess.Update(func(s State) State {
		return SetScript(s, []domain.DialogueLine{{ID: "l1", SpeakerName: "A", Line: "one"}})
	})
	f.writer.err = errors.NewInvalidFormatError("next line", "the response has no speaker separator")

	st, err := f.wf.ContinueScript(context.Background(), f.sess)
	if !errors.IsInvalidFormat(err) {
		t.Fatalf("expected InvalidFormat, got %v", err)
	}
	if len(st.Script) != 1 || st.Flags.AddingNextLine {
		t.Fatalf("no line may be appended and the flag must clear: %+v", st)
	}

	f.writer.err = nil
	f.writer.next = domain.DialogueLine{ID: "l2", SpeakerName: "B", Line: "two"}
	st, err = f.wf.ContinueScript(context.Background(), f.sess)
	if err != nil || len(st.Script) != 2 || st.Error != "" {
		t.Fatalf("expected appended line and cleared banner, got %v %+v", err, st)
	}
}

func TestSearch_FailureGoesToPanel(t *testing.T) {
	f := newFixture(t)
	f.sess.Update(func(s State) State {
		s.Show.Topics = []string{"AI"}
		return s
	})
	f.searcher.err = errors.NewMissingCredentialsError("Search keys are missing. Please configure them in the Persona/Model settings step.")

	st, err := f.wf.Search(context.Background(), f.sess)
	if !errors.IsMissingCredentials(err) {
		t.Fatalf("expected MissingCredentials, got %v", err)
	}
	if st.SearchError == "" || st.Error != "" || st.Flags.Searching {
		t.Fatalf("search failures belong to the panel: %+v", st)
	}
}

func TestAddPersonaSources_SingleAppendForBatch(t *testing.T) {
	f := newFixture(t)
	_, id := f.wf.AddPersona(f.sess)
	before := f.sess.Snapshot().Revision

	failing := capture.FileInput{Name: "bad.txt", Open: func() (io.ReadCloser, error) { return nil, io.ErrUnexpectedEOF }}
	st, res, err := f.wf.AddPersonaSources(context.Background(), f.sess, id, domain.MediaKindText,
		[]capture.FileInput{textFile("a.txt", "alpha"), failing, textFile("b.txt", "beta")})
	if err != nil {
		t.Fatalf("AddPersonaSources failed: %v", err)
	}
	if len(res.Failed) != 1 || len(st.Personas[0].Sources) != 2 {
		t.Fatalf("expected 2 sources and 1 failure, got %d and %d", len(st.Personas[0].Sources), len(res.Failed))
	}
	if st.Revision != before+1 {
		t.Fatalf("batch must commit exactly once, revision went %d -> %d", before, st.Revision)
	}
}

func TestSession_PublishesSnapshots(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.sess.Subscribe()
	defer cancel()

	f.wf.AddPersona(f.sess)
	ev := <-events
	if ev.Type != EventState || len(ev.State.Personas) != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}

	ev.State.Personas[0].Name = "mutated"
	if f.sess.Snapshot().Personas[0].Name == "mutated" {
		t.Fatalf("snapshots must not alias session state")
	}
}
