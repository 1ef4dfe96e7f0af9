package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/prompt"
	"github.com/kapu/persona-script-go/internal/service/ai"
	"github.com/kapu/persona-script-go/pkg/errors"
)

const (
	OperationPersonaProfile = "SFL profile"
	OperationShowContext    = "show context"
)

// JSONGenerator is the slice of ai.ModelManager the analyzers need.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, req ai.Request, dest any) (*ai.GenerateMetadata, error)
}

type Config struct {
	DefaultModel string
	MediaModel   string
	MaxChars     int
	MaxTopics    int
}

// Analyzer derives style profiles for personas and episode context from show sources.
type Analyzer struct {
	generator JSONGenerator
	cfg       Config
	logger    *zap.Logger
}

func NewAnalyzer(generator JSONGenerator, cfg Config, logger *zap.Logger) *Analyzer {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = constants.Models.Default
	}
	if cfg.MediaModel == "" {
		cfg.MediaModel = constants.Models.Media
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = constants.AIInputLimits.MaxAnalysisChars
	}
	if cfg.MaxTopics <= 0 {
		cfg.MaxTopics = constants.AIInputLimits.MaxTopics
	}
	return &Analyzer{generator: generator, cfg: cfg, logger: logger}
}

// AnalyzePersona sends every source of persona in one request and returns the validated profile.
func (a *Analyzer) AnalyzePersona(ctx context.Context, persona domain.Persona, settings domain.ModelSettings) (*domain.StyleProfile, error) {
	if len(persona.Sources) == 0 {
		return nil, errors.NewValidationError("Add at least one source before analyzing this persona.", "sources", 0)
	}

	p, err := prompt.BuildPersonaAnalysis(prompt.PersonaAnalysisVars{
		PersonaName: persona.Name,
		SourceCount: len(persona.Sources),
		MaxTopics:   a.cfg.MaxTopics,
	})
	if err != nil {
		return nil, err
	}

	req := a.buildRequest(OperationPersonaProfile, p, persona.Sources, settings)
	start := time.Now()

	var raw domain.RawStyleProfile
	meta, err := a.generator.GenerateJSON(ctx, req, &raw)
	if err != nil {
		return nil, err
	}

	profile, err := raw.Validate(a.cfg.MaxTopics)
	if err != nil {
		a.logger.Warn("Style profile failed validation",
			zap.String("persona", persona.Name),
			zap.Error(err),
		)
		return nil, errors.NewMalformedResponseError(OperationPersonaProfile, err)
	}

	a.logger.Info("Persona analyzed",
		zap.String("persona", persona.Name),
		zap.String("model", req.Model),
		zap.String("provider", meta.Provider),
		zap.Int("sources", len(persona.Sources)),
		zap.Int("topics", len(profile.Topics)),
		zap.Duration("duration", time.Since(start)),
	)
	return profile, nil
}

// AnalyzeShowContext derives a title, intro and topics from the episode's context sources.
func (a *Analyzer) AnalyzeShowContext(ctx context.Context, sources []domain.SourceItem, settings domain.ModelSettings) (*domain.ShowContextResult, error) {
	if len(sources) == 0 {
		return nil, errors.NewValidationError("Add at least one context source before analyzing.", "contextSources", 0)
	}

	p, err := prompt.BuildShowContext(prompt.ShowContextVars{
		SourceCount: len(sources),
		MaxTopics:   a.cfg.MaxTopics,
	})
	if err != nil {
		return nil, err
	}

	req := a.buildRequest(OperationShowContext, p, sources, settings)

	var raw domain.ShowContextResult
	meta, err := a.generator.GenerateJSON(ctx, req, &raw)
	if err != nil {
		return nil, err
	}

	result, err := raw.Validate(a.cfg.MaxTopics)
	if err != nil {
		a.logger.Warn("Show context failed validation", zap.Error(err))
		return nil, errors.NewMalformedResponseError(OperationShowContext, err)
	}

	a.logger.Info("Show context analyzed",
		zap.String("model", req.Model),
		zap.String("provider", meta.Provider),
		zap.Int("sources", len(sources)),
		zap.Int("topics", len(result.Topics)),
	)
	return result, nil
}

func (a *Analyzer) buildRequest(operation string, p prompt.Prompt, sources []domain.SourceItem, settings domain.ModelSettings) ai.Request {
	parts := append([]ai.Part{ai.TextPart(p.User)}, ai.SourceParts(sources, a.cfg.MaxChars)...)
	model := a.ModelFor(sources, settings.Model)
	settings.Model = model

	temperature := constants.Temperatures.PersonaAnalysis
	if operation == OperationShowContext {
		temperature = constants.Temperatures.ShowContext
	}

	return ai.Request{
		Operation:         operation,
		Model:             model,
		SystemInstruction: p.System,
		Parts:             parts,
		Temperature:       temperature,
		ThinkingBudget:    settings.EffectiveThinkingBudget(),
		JSONMode:          true,
	}
}

// ModelFor returns the media model when any source is video or image, else the selected model.
func (a *Analyzer) ModelFor(sources []domain.SourceItem, selected string) string {
	if domain.NeedsMediaModel(sources) {
		return a.cfg.MediaModel
	}
	if selected == "" {
		return a.cfg.DefaultModel
	}
	return selected
}
