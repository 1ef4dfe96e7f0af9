package script

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/prompt"
	"github.com/kapu/persona-script-go/internal/service/ai"
	"github.com/kapu/persona-script-go/internal/util"
	"github.com/kapu/persona-script-go/pkg/errors"
)

const (
	OperationDialogue   = "dialogue generation"
	OperationRefineLine = "line refinement"
	OperationNextLine   = "next line"
)

// TextGenerator is the slice of ai.ModelManager the script service needs.
type TextGenerator interface {
	Generate(ctx context.Context, req ai.Request) (*ai.Result, error)
}

type Config struct {
	DefaultModel string
	MediaModel   string
	MaxChars     int
}

// Service generates whole scripts and single lines.
type Service struct {
	generator TextGenerator
	cfg       Config
	logger    *zap.Logger
}

func NewService(generator TextGenerator, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = constants.Models.Default
	}
	if cfg.MediaModel == "" {
		cfg.MediaModel = constants.Models.Media
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = constants.AIInputLimits.MaxAnalysisChars
	}
	return &Service{generator: generator, cfg: cfg, logger: logger}
}

// Generate writes a full script for show with personas. A reply with no parsable line yields
// an empty slice without error.
func (s *Service) Generate(ctx context.Context, show domain.ShowStructure, personas []domain.Persona, settings domain.ModelSettings) ([]domain.DialogueLine, error) {
	personasJSON, err := prompt.PersonasJSON(personas)
	if err != nil {
		return nil, err
	}

	p, err := prompt.BuildDialogue(prompt.DialogueVars{
		Title:        show.Title,
		HostName:     show.HostName(personas),
		Intro:        show.Intro,
		Topics:       show.Topics,
		PersonasJSON: personasJSON,
		HasContext:   len(show.ContextSources) > 0,
	})
	if err != nil {
		return nil, err
	}

	model := s.modelFor(show.ContextSources, settings.Model)
	settings.Model = model

	parts := append([]ai.Part{ai.TextPart(p.User)}, ai.SourceParts(show.ContextSources, s.cfg.MaxChars)...)
	req := ai.Request{
		Operation:         OperationDialogue,
		Model:             model,
		SystemInstruction: p.System,
		Parts:             parts,
		Temperature:       settings.Temperature,
		ThinkingBudget:    settings.EffectiveThinkingBudget(),
	}

	start := time.Now()
	res, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	lines := ParseScript(res.Text, personas)
	s.logger.Info("Script generated",
		zap.String("title", show.Title),
		zap.String("model", model),
		zap.Int("lines", len(lines)),
		zap.Int("context_sources", len(show.ContextSources)),
		zap.Duration("duration", time.Since(start)),
	)
	return lines, nil
}

// Refine rewrites the text of the line lineID, grounded on the lines before it.
func (s *Service) Refine(ctx context.Context, personas []domain.Persona, script []domain.DialogueLine, lineID, instruction string, settings domain.ModelSettings) (string, error) {
	idx, ok := domain.FindLine(script, lineID)
	if !ok {
		return "", errors.NewNotFoundError("line", lineID)
	}
	target := script[idx]

	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", errors.NewValidationError("Enter an instruction to refine this line.", "instruction", instruction)
	}
	if len(instruction) > constants.AIInputLimits.MaxInstructionLen {
		return "", errors.NewValidationError("The refinement instruction is too long.", "instruction", len(instruction))
	}

	personasJSON, err := prompt.PersonasJSON(personas)
	if err != nil {
		return "", err
	}
	p, err := prompt.BuildRefineLine(prompt.RefineLineVars{
		PersonasJSON: personasJSON,
		History:      domain.History(script, target.ID),
		Speaker:      target.SpeakerName,
		Line:         target.Line,
		Instruction:  instruction,
	})
	if err != nil {
		return "", err
	}

	res, err := s.generator.Generate(ctx, s.textRequest(OperationRefineLine, p, settings))
	if err != nil {
		return "", err
	}

	refined := stripSpeakerPrefix(res.Text, target.SpeakerName)
	if refined == "" {
		return "", errors.NewEmptyResponseError(OperationRefineLine)
	}

	s.logger.Info("Line refined",
		zap.String("line_id", target.ID),
		zap.String("speaker", target.SpeakerName),
		zap.Int("length", len(refined)),
	)
	return refined, nil
}

// Continue asks for exactly one new line after script. The new speaker must differ from the last one.
func (s *Service) Continue(ctx context.Context, personas []domain.Persona, script []domain.DialogueLine, settings domain.ModelSettings) (domain.DialogueLine, error) {
	if len(script) == 0 {
		return domain.DialogueLine{}, errors.NewValidationError("Generate a script before adding lines.", "script", 0)
	}
	last := script[len(script)-1]

	personasJSON, err := prompt.PersonasJSON(personas)
	if err != nil {
		return domain.DialogueLine{}, err
	}
	p, err := prompt.BuildNextLine(prompt.NextLineVars{
		PersonasJSON: personasJSON,
		History:      domain.History(script, ""),
		LastSpeaker:  last.SpeakerName,
	})
	if err != nil {
		return domain.DialogueLine{}, err
	}

	res, err := s.generator.Generate(ctx, s.textRequest(OperationNextLine, p, settings))
	if err != nil {
		return domain.DialogueLine{}, err
	}

	line, err := ParseContinuation(res.Text, personas, last.SpeakerName)
	if err != nil {
		s.logger.Warn("Continuation rejected",
			zap.String("last_speaker", last.SpeakerName),
			zap.String("response_preview", util.Preview(res.Text, 200)),
		)
		return domain.DialogueLine{}, err
	}
	return line, nil
}

// ParseContinuation validates a single "Speaker: text" reply.
func ParseContinuation(raw string, personas []domain.Persona, lastSpeaker string) (domain.DialogueLine, error) {
	text := strings.TrimSpace(raw)
	if first, _, ok := strings.Cut(text, "\n"); ok {
		text = strings.TrimSpace(first)
	}

	line, ok := ParseLine(text, personas)
	if !ok {
		return domain.DialogueLine{}, errors.NewInvalidFormatError(OperationNextLine, "the response has no speaker separator")
	}
	if line.SpeakerName == "" || line.Line == "" {
		return domain.DialogueLine{}, errors.NewInvalidFormatError(OperationNextLine, "the response has an empty speaker or text")
	}
	if strings.EqualFold(line.SpeakerName, strings.TrimSpace(lastSpeaker)) {
		return domain.DialogueLine{}, errors.NewInvalidFormatError(OperationNextLine, "the same speaker cannot talk twice in a row")
	}
	return line, nil
}

// textRequest builds a single-prompt request carrying the session's model, temperature and budget.
func (s *Service) textRequest(operation string, p prompt.Prompt, settings domain.ModelSettings) ai.Request {
	model := settings.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}
	settings.Model = model
	return ai.Request{
		Operation:         operation,
		Model:             model,
		SystemInstruction: p.System,
		Parts:             []ai.Part{ai.TextPart(p.User)},
		Temperature:       settings.Temperature,
		ThinkingBudget:    settings.EffectiveThinkingBudget(),
	}
}

func (s *Service) modelFor(sources []domain.SourceItem, selected string) string {
	if domain.NeedsMediaModel(sources) {
		return s.cfg.MediaModel
	}
	if selected == "" {
		return s.cfg.DefaultModel
	}
	return selected
}

// stripSpeakerPrefix trims text and drops a leading "Speaker:" matching speaker.
func stripSpeakerPrefix(text, speaker string) string {
	text = strings.TrimSpace(text)
	if head, rest, ok := strings.Cut(text, ":"); ok && strings.EqualFold(cleanSpeaker(head), strings.TrimSpace(speaker)) {
		text = strings.TrimSpace(rest)
	}
	return text
}
