package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kapu/persona-script-go/internal/capture"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/session"
)

// Plan describes one episode to produce end to end.
type Plan struct {
	Settings *PlanSettings `yaml:"settings"`
	Personas []PlanPersona `yaml:"personas"`
	Show     PlanShow      `yaml:"show"`
}

type PlanSettings struct {
	Model          string   `yaml:"model"`
	ThinkingBudget *string  `yaml:"thinkingBudget"`
	Temperature    *float32 `yaml:"temperature"`
}

type PlanPersona struct {
	Name          string       `yaml:"name"`
	Role          string       `yaml:"role"`
	SpeakingStyle string       `yaml:"speakingStyle"`
	Sources       []PlanSource `yaml:"sources"`
	Links         []string     `yaml:"links"`
}

// PlanSource is a file path with an optional kind; the kind is inferred from the extension when empty.
type PlanSource struct {
	Path string `yaml:"path"`
	Kind string `yaml:"kind"`
}

type PlanShow struct {
	Title   string       `yaml:"title"`
	Host    string       `yaml:"host"`
	Intro   string       `yaml:"intro"`
	Topics  []string     `yaml:"topics"`
	Context []PlanSource `yaml:"context"`
	Links   []string     `yaml:"links"`
}

// LoadPlan reads a YAML plan. Relative source paths resolve against the plan's directory.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, err
	}
	plan.resolvePaths(filepath.Dir(path))
	return plan, nil
}

func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Plan) Validate() error {
	if len(p.Personas) == 0 {
		return fmt.Errorf("plan needs at least one persona")
	}
	seen := make(map[string]struct{}, len(p.Personas))
	for i, persona := range p.Personas {
		name := strings.TrimSpace(persona.Name)
		if name == "" {
			return fmt.Errorf("personas[%d]: name is required", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("personas[%d]: duplicate name %q", i, name)
		}
		seen[key] = struct{}{}
		if len(persona.Sources) == 0 && len(persona.Links) == 0 {
			return fmt.Errorf("personas[%d] (%s): at least one source or link is required", i, name)
		}
		for j, src := range persona.Sources {
			if _, err := src.kind(); err != nil {
				return fmt.Errorf("personas[%d].sources[%d]: %w", i, j, err)
			}
		}
	}
	for j, src := range p.Show.Context {
		if _, err := src.kind(); err != nil {
			return fmt.Errorf("show.context[%d]: %w", j, err)
		}
	}
	if p.Show.Host != "" {
		if _, ok := seen[strings.ToLower(strings.TrimSpace(p.Show.Host))]; !ok {
			return fmt.Errorf("show.host %q does not match any persona", p.Show.Host)
		}
	}
	return nil
}

func (p *Plan) resolvePaths(base string) {
	resolve := func(sources []PlanSource) {
		for i := range sources {
			if !filepath.IsAbs(sources[i].Path) {
				sources[i].Path = filepath.Join(base, sources[i].Path)
			}
		}
	}
	for i := range p.Personas {
		resolve(p.Personas[i].Sources)
	}
	resolve(p.Show.Context)
}

var extensionKinds = map[string]domain.MediaKind{
	".txt": domain.MediaKindText, ".md": domain.MediaKindText, ".pdf": domain.MediaKindText,
	".srt": domain.MediaKindText, ".vtt": domain.MediaKindText, ".json": domain.MediaKindText,
	".mp3": domain.MediaKindAudio, ".wav": domain.MediaKindAudio, ".m4a": domain.MediaKindAudio,
	".ogg": domain.MediaKindAudio, ".flac": domain.MediaKindAudio,
	".mp4": domain.MediaKindVideo, ".mov": domain.MediaKindVideo, ".webm": domain.MediaKindVideo,
	".png": domain.MediaKindImage, ".jpg": domain.MediaKindImage, ".jpeg": domain.MediaKindImage,
	".webp": domain.MediaKindImage, ".gif": domain.MediaKindImage,
}

func (s PlanSource) kind() (domain.MediaKind, error) {
	if strings.TrimSpace(s.Path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if s.Kind != "" {
		kind, ok := domain.ParseMediaKind(s.Kind)
		if !ok || kind == domain.MediaKindLink {
			return "", fmt.Errorf("unsupported kind %q", s.Kind)
		}
		return kind, nil
	}
	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(s.Path))]; ok {
		return kind, nil
	}
	return domain.MediaKindText, nil
}

// groupByKind turns plan sources into capture inputs, one batch per kind.
func groupByKind(sources []PlanSource) map[domain.MediaKind][]capture.FileInput {
	out := make(map[domain.MediaKind][]capture.FileInput)
	for _, src := range sources {
		kind, _ := src.kind()
		path := src.Path
		out[kind] = append(out[kind], capture.FileInput{
			Name: filepath.Base(path),
			Open: func() (io.ReadCloser, error) { return os.Open(path) },
		})
	}
	return out
}

// Runner executes a plan against a local session.
type Runner struct {
	Workflow *session.Workflow
	Progress io.Writer
}

func (r *Runner) logf(format string, args ...any) {
	if r.Progress != nil {
		fmt.Fprintf(r.Progress, format+"\n", args...)
	}
}

// Run walks the session through profiling, structure and generation. The returned state
// is at the refine step with a script.
func (r *Runner) Run(ctx context.Context, sess *session.Session, plan *Plan) (session.State, error) {
	if plan.Settings != nil {
		if _, err := sess.Apply(func(s session.State) (session.State, error) {
			settings := s.Settings
			if plan.Settings.Model != "" {
				settings.Model = plan.Settings.Model
			}
			if plan.Settings.ThinkingBudget != nil {
				settings.ThinkingBudget = *plan.Settings.ThinkingBudget
			}
			if plan.Settings.Temperature != nil {
				settings.Temperature = *plan.Settings.Temperature
			}
			return session.SetSettings(s, settings)
		}); err != nil {
			return sess.Snapshot(), err
		}
	}

	hostID := ""
	for _, p := range plan.Personas {
		id, err := r.addPersona(ctx, sess, p)
		if err != nil {
			return sess.Snapshot(), err
		}
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(plan.Show.Host)) {
			hostID = id
		}
	}
	if hostID == "" {
		hostID = sess.Snapshot().Personas[0].ID
	}

	if err := r.addContext(ctx, sess, plan.Show); err != nil {
		return sess.Snapshot(), err
	}

	if _, err := r.Workflow.Next(ctx, sess); err != nil {
		return sess.Snapshot(), err
	}

	upd := domain.ShowUpdate{PrimaryHostID: &hostID}
	if plan.Show.Title != "" {
		upd.Title = &plan.Show.Title
	}
	if plan.Show.Intro != "" {
		upd.Intro = &plan.Show.Intro
	}
	if len(plan.Show.Topics) > 0 {
		topics := domain.UniqueTopics(plan.Show.Topics, 0)
		upd.Topics = &topics
	}
	if _, err := sess.Apply(func(s session.State) (session.State, error) { return session.UpdateShow(s, upd) }); err != nil {
		return sess.Snapshot(), err
	}

	if _, err := r.Workflow.Next(ctx, sess); err != nil {
		return sess.Snapshot(), err
	}

	r.logf("Generating dialogue...")
	st, err := r.Workflow.GenerateScript(ctx, sess)
	if err != nil {
		return st, err
	}
	r.logf("Generated %d lines", len(st.Script))
	return st, nil
}

func (r *Runner) addPersona(ctx context.Context, sess *session.Session, p PlanPersona) (string, error) {
	_, id := r.Workflow.AddPersona(sess)
	upd := domain.PersonaUpdate{Name: &p.Name, Role: &p.Role}
	if p.SpeakingStyle != "" {
		upd.SpeakingStyle = &p.SpeakingStyle
	}
	if _, err := sess.Apply(func(s session.State) (session.State, error) { return session.UpdatePersona(s, id, upd) }); err != nil {
		return "", err
	}

	for kind, files := range groupByKind(p.Sources) {
		_, res, err := r.Workflow.AddPersonaSources(ctx, sess, id, kind, files)
		if err != nil {
			return "", err
		}
		for _, f := range res.Failed {
			r.logf("  skipped %s: %v", f.Name, f.Err)
		}
	}
	for _, link := range p.Links {
		if _, err := r.Workflow.AddPersonaLink(ctx, sess, id, link); err != nil {
			return "", fmt.Errorf("link %s: %w", link, err)
		}
	}

	r.logf("Analyzing %s...", p.Name)
	if _, err := r.Workflow.AnalyzePersona(ctx, sess, id); err != nil {
		return "", fmt.Errorf("analysis of %s failed: %w", p.Name, err)
	}
	return id, nil
}

func (r *Runner) addContext(ctx context.Context, sess *session.Session, show PlanShow) error {
	if len(show.Context) == 0 && len(show.Links) == 0 {
		return nil
	}
	for kind, files := range groupByKind(show.Context) {
		_, res := r.Workflow.AddContextSources(ctx, sess, kind, files)
		for _, f := range res.Failed {
			r.logf("  skipped %s: %v", f.Name, f.Err)
		}
	}
	for _, link := range show.Links {
		if _, err := r.Workflow.AddContextLink(ctx, sess, link); err != nil {
			return fmt.Errorf("link %s: %w", link, err)
		}
	}
	if len(sess.Snapshot().Show.ContextSources) == 0 {
		return nil
	}

	r.logf("Analyzing show context...")
	if _, err := r.Workflow.AnalyzeShowContext(ctx, sess); err != nil {
		return fmt.Errorf("show context analysis failed: %w", err)
	}
	return nil
}
