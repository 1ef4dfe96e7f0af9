package session

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/capture"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/service/search"
	"github.com/kapu/persona-script-go/pkg/errors"
)

type Analyzer interface {
	AnalyzePersona(ctx context.Context, persona domain.Persona, settings domain.ModelSettings) (*domain.StyleProfile, error)
	AnalyzeShowContext(ctx context.Context, sources []domain.SourceItem, settings domain.ModelSettings) (*domain.ShowContextResult, error)
}

type ScriptWriter interface {
	Generate(ctx context.Context, show domain.ShowStructure, personas []domain.Persona, settings domain.ModelSettings) ([]domain.DialogueLine, error)
	Refine(ctx context.Context, personas []domain.Persona, script []domain.DialogueLine, lineID, instruction string, settings domain.ModelSettings) (string, error)
	Continue(ctx context.Context, personas []domain.Persona, script []domain.DialogueLine, settings domain.ModelSettings) (domain.DialogueLine, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, creds search.Credentials) ([]domain.SearchResultItem, error)
}

type SourceCapturer interface {
	Batch(ctx context.Context, kind domain.MediaKind, files []capture.FileInput, onComplete func(capture.BatchResult)) capture.BatchResult
	CaptureLink(ctx context.Context, rawURL string) (domain.SourceItem, error)
}

// Workflow runs the external operations against a session: it raises the in-flight flag,
// calls the client, then commits the result or records the failure and lowers the flag.
type Workflow struct {
	analyzer Analyzer
	writer   ScriptWriter
	searcher Searcher
	capturer SourceCapturer
	logger   *zap.Logger

	background sync.WaitGroup
}

func NewWorkflow(analyzer Analyzer, writer ScriptWriter, searcher Searcher, capturer SourceCapturer, logger *zap.Logger) *Workflow {
	return &Workflow{
		analyzer: analyzer,
		writer:   writer,
		searcher: searcher,
		capturer: capturer,
		logger:   logger,
	}
}

// Wait blocks until background lookups have finished.
func (w *Workflow) Wait() {
	w.background.Wait()
}

// AddPersona appends a new persona with a generated id.
func (w *Workflow) AddPersona(sess *Session) (State, string) {
	id := "persona-" + uuid.NewString()
	return sess.Update(func(s State) State { return AddPersona(s, id) }), id
}

// AnalyzePersona derives the style profile of one persona. Each persona has its own flag,
// so different personas may be analyzed concurrently.
func (w *Workflow) AnalyzePersona(ctx context.Context, sess *Session, personaID string) (State, error) {
	var persona domain.Persona
	var settings domain.ModelSettings
	_, err := sess.Apply(func(s State) (State, error) {
		i, ok := domain.FindPersona(s.Personas, personaID)
		if !ok {
			return s, errors.NewNotFoundError("persona", personaID)
		}
		if s.Personas[i].IsAnalyzing {
			return s, errors.NewConflictError("This persona is already being analyzed.")
		}
		if len(s.Personas[i].Sources) == 0 {
			return s, errors.NewValidationError("Please add at least one source before analyzing.", "sources", 0)
		}
		s.Personas[i].IsAnalyzing = true
		persona = s.Personas[i].Clone()
		settings = s.Settings
		return ClearError(s), nil
	})
	if err != nil {
		return w.reject(sess, err)
	}

	profile, callErr := w.analyzer.AnalyzePersona(ctx, persona, settings)

	return w.finish(sess, "persona analysis", callErr, func(s State) (State, error) {
		if callErr != nil {
			return SetPersonaAnalyzing(s, personaID, false)
		}
		return SetProfile(s, personaID, profile)
	})
}

func (w *Workflow) AnalyzeShowContext(ctx context.Context, sess *Session) (State, error) {
	var sources []domain.SourceItem
	var settings domain.ModelSettings
	_, err := sess.Apply(func(s State) (State, error) {
		if s.Flags.ContextAnalyzing {
			return s, errors.NewConflictError("The show context is already being analyzed.")
		}
		if len(s.Show.ContextSources) == 0 {
			return s, errors.NewValidationError("Please add at least one context source before analyzing.", "contextSources", 0)
		}
		s.Flags.ContextAnalyzing = true
		sources = domain.CloneSources(s.Show.ContextSources)
		settings = s.Settings
		return ClearError(s), nil
	})
	if err != nil {
		return w.reject(sess, err)
	}

	result, callErr := w.analyzer.AnalyzeShowContext(ctx, sources, settings)

	return w.finish(sess, "show context analysis", callErr, func(s State) (State, error) {
		s.Flags.ContextAnalyzing = false
		if callErr != nil {
			return s, nil
		}
		return ApplyShowContext(s, *result), nil
	})
}

// GenerateScript writes a new script, replaces the old one and moves to the refine step.
func (w *Workflow) GenerateScript(ctx context.Context, sess *Session) (State, error) {
	var snapshot State
	_, err := sess.Apply(func(s State) (State, error) {
		if s.Flags.Generating {
			return s, errors.NewConflictError("A script is already being generated.")
		}
		if len(s.Personas) == 0 || s.Show.HostName(s.Personas) == "" {
			return s, errors.NewValidationError("Please configure at least one persona and select a primary host.", "primaryHostId", s.Show.PrimaryHostID)
		}
		s.Flags.Generating = true
		snapshot = s.Clone()
		return ClearError(s), nil
	})
	if err != nil {
		return w.reject(sess, err)
	}

	lines, callErr := w.writer.Generate(ctx, snapshot.Show, snapshot.Personas, snapshot.Settings)

	st, err := w.finish(sess, "script generation", callErr, func(s State) (State, error) {
		s.Flags.Generating = false
		if callErr != nil {
			return s, nil
		}
		s = SetScript(s, lines)
		s.Step = domain.StepRefineScript
		return s, nil
	})
	if err == nil {
		w.maybeAutoSearch(ctx, sess, st)
	}
	return st, err
}

// RefineLine rewrites one line; no other line changes.
func (w *Workflow) RefineLine(ctx context.Context, sess *Session, lineID, instruction string) (State, error) {
	var snapshot State
	_, err := sess.Apply(func(s State) (State, error) {
		if s.Flags.RefiningLineID != "" {
			return s, errors.NewConflictError("Another line is being refined.")
		}
		if _, ok := domain.FindLine(s.Script, lineID); !ok {
			return s, errors.NewNotFoundError("line", lineID)
		}
		s.Flags.RefiningLineID = lineID
		snapshot = s.Clone()
		return ClearError(s), nil
	})
	if err != nil {
		return w.reject(sess, err)
	}

	refined, callErr := w.writer.Refine(ctx, snapshot.Personas, snapshot.Script, lineID, instruction, snapshot.Settings)

	return w.finish(sess, "line refinement", callErr, func(s State) (State, error) {
		s.Flags.RefiningLineID = ""
		if callErr != nil {
			return s, nil
		}
		return ReplaceLineText(s, lineID, refined)
	})
}

// ContinueScript appends one generated line spoken by someone other than the last speaker.
func (w *Workflow) ContinueScript(ctx context.Context, sess *Session) (State, error) {
	var snapshot State
	_, err := sess.Apply(func(s State) (State, error) {
		if s.Flags.AddingNextLine {
			return s, errors.NewConflictError("A line is already being added.")
		}
		if len(s.Script) == 0 {
			return s, errors.NewValidationError("Generate a script before adding lines.", "script", 0)
		}
		s.Flags.AddingNextLine = true
		snapshot = s.Clone()
		return ClearError(s), nil
	})
	if err != nil {
		return w.reject(sess, err)
	}

	line, callErr := w.writer.Continue(ctx, snapshot.Personas, snapshot.Script, snapshot.Settings)

	return w.finish(sess, "script continuation", callErr, func(s State) (State, error) {
		s.Flags.AddingNextLine = false
		if callErr != nil {
			return s, nil
		}
		return AppendLine(s, line), nil
	})
}

// Search looks up resources for the current topics. Failures land in the search panel,
// not the banner. With no topics it is a no-op.
func (w *Workflow) Search(ctx context.Context, sess *Session) (State, error) {
	return w.search(ctx, sess, false)
}

// search runs one lookup. An automatic run claims the session's single automatic trigger
// in the same commit that marks the search as running.
func (w *Workflow) search(ctx context.Context, sess *Session, auto bool) (State, error) {
	var query string
	var creds search.Credentials
	st, err := sess.Apply(func(s State) (State, error) {
		if s.Flags.Searching {
			return s, errors.NewConflictError("A search is already running.")
		}
		if auto {
			if !ShouldAutoSearch(s) {
				return s, errors.NewConflictError("The automatic search has already run.")
			}
			s.Flags.AutoSearched = true
		}
		s.Flags.Searching = true
		s.SearchError = ""
		query = strings.TrimSpace(s.Show.SearchQuery())
		creds = search.Credentials{APIKey: s.Settings.SearchAPIKey, EngineID: s.Settings.SearchEngineID}
		return s, nil
	})
	if err != nil {
		return st, err
	}
	if query == "" {
		return sess.Update(func(s State) State {
			s.Flags.Searching = false
			return s
		}), nil
	}

	items, callErr := w.searcher.Search(ctx, query, creds)

	st = sess.Update(func(s State) State {
		s.Flags.Searching = false
		if callErr != nil {
			return SetSearchError(s, errors.UserMessage(callErr))
		}
		return SetSearchResults(s, items)
	})
	if callErr != nil {
		w.logger.Warn("Search failed", zap.String("session", sess.ID()), zap.Error(callErr))
	}
	return st, callErr
}

// Next advances one step and fires the one-time lookup when the refine step is reached.
func (w *Workflow) Next(ctx context.Context, sess *Session) (State, error) {
	st, err := sess.Apply(Next)
	if err == nil {
		w.maybeAutoSearch(ctx, sess, st)
	}
	return st, err
}

func (w *Workflow) GoTo(ctx context.Context, sess *Session, step domain.Step) (State, error) {
	st, err := sess.Apply(func(s State) (State, error) { return GoTo(s, step) })
	if err == nil {
		w.maybeAutoSearch(ctx, sess, st)
	}
	return st, err
}

func (w *Workflow) Prev(ctx context.Context, sess *Session) State {
	st := sess.Update(Prev)
	w.maybeAutoSearch(ctx, sess, st)
	return st
}

// AddPersonaSources reads files concurrently and appends the successful ones in one commit.
func (w *Workflow) AddPersonaSources(ctx context.Context, sess *Session, personaID string, kind domain.MediaKind, files []capture.FileInput) (State, capture.BatchResult, error) {
	if _, ok := domain.FindPersona(sess.Snapshot().Personas, personaID); !ok {
		return sess.Snapshot(), capture.BatchResult{}, errors.NewNotFoundError("persona", personaID)
	}

	var commitErr error
	var st State
	res := w.capturer.Batch(ctx, kind, files, func(r capture.BatchResult) {
		st, commitErr = sess.Apply(func(s State) (State, error) {
			return AppendPersonaSources(s, personaID, r.Items)
		})
	})
	return st, res, commitErr
}

func (w *Workflow) AddContextSources(ctx context.Context, sess *Session, kind domain.MediaKind, files []capture.FileInput) (State, capture.BatchResult) {
	var st State
	res := w.capturer.Batch(ctx, kind, files, func(r capture.BatchResult) {
		st = sess.Update(func(s State) State { return AppendContextSources(s, r.Items) })
	})
	return st, res
}

func (w *Workflow) AddPersonaLink(ctx context.Context, sess *Session, personaID, rawURL string) (State, error) {
	if _, ok := domain.FindPersona(sess.Snapshot().Personas, personaID); !ok {
		return sess.Snapshot(), errors.NewNotFoundError("persona", personaID)
	}
	item, err := w.capturer.CaptureLink(ctx, rawURL)
	if err != nil {
		return sess.Snapshot(), err
	}
	return sess.Apply(func(s State) (State, error) {
		return AppendPersonaSources(s, personaID, []domain.SourceItem{item})
	})
}

func (w *Workflow) AddContextLink(ctx context.Context, sess *Session, rawURL string) (State, error) {
	item, err := w.capturer.CaptureLink(ctx, rawURL)
	if err != nil {
		return sess.Snapshot(), err
	}
	return sess.Update(func(s State) State {
		return AppendContextSources(s, []domain.SourceItem{item})
	}), nil
}

func (w *Workflow) maybeAutoSearch(ctx context.Context, sess *Session, st State) {
	if w.searcher == nil || !ShouldAutoSearch(st) {
		return
	}
	bg := context.WithoutCancel(ctx)
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		if _, err := w.search(bg, sess, true); err != nil && !errors.IsMissingCredentials(err) {
			w.logger.Debug("Automatic search did not complete", zap.Error(err))
		}
	}()
}

// finish commits the outcome of an external call. commit lowers the flag before anything
// else, so the flag is cleared even when the target vanished while the call ran.
func (w *Workflow) finish(sess *Session, operation string, callErr error, commit Transform) (State, error) {
	var discarded error
	st, _ := sess.Apply(func(s State) (State, error) {
		next, err := commit(s)
		if err != nil {
			discarded = err
		}
		if callErr != nil {
			next = SetError(next, errors.UserMessage(callErr))
		}
		return next, nil
	})
	if callErr != nil {
		w.logger.Warn("Operation failed",
			zap.String("session", sess.ID()),
			zap.String("operation", operation),
			zap.String("code", errors.CodeOf(callErr)),
			zap.Error(callErr),
		)
		return st, callErr
	}
	if discarded != nil {
		w.logger.Warn("Result discarded", zap.String("operation", operation), zap.Error(discarded))
		return st, discarded
	}
	return st, nil
}

// reject records a precondition failure in the banner.
func (w *Workflow) reject(sess *Session, err error) (State, error) {
	if errors.CodeOf(err) == errors.CodeConflict || errors.IsNotFound(err) {
		return sess.Snapshot(), err
	}
	return sess.Update(func(s State) State { return SetError(s, errors.UserMessage(err)) }), err
}
