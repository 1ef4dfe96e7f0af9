package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiProvider sends multimodal requests through the genai SDK.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
	logger       *zap.Logger
}

func NewGeminiProvider(client *genai.Client, defaultModel string, logger *zap.Logger) *GeminiProvider {
	return &GeminiProvider{
		client:       client,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

func (g *GeminiProvider) Name() string {
	return "Gemini"
}

func (g *GeminiProvider) Generate(ctx context.Context, req Request) (ProviderResult, error) {
	if g.client == nil {
		return ProviderResult{}, fmt.Errorf("gemini client not initialized")
	}

	modelName := req.Model
	if modelName == "" {
		modelName = g.defaultModel
	}

	parts, err := toGeminiParts(req.Parts)
	if err != nil {
		return ProviderResult{}, err
	}

	g.logger.Debug("Generating with Gemini",
		zap.String("operation", req.Operation),
		zap.String("model", modelName),
		zap.Int("parts", len(parts)),
		zap.Bool("json_mode", req.JSONMode),
		zap.Bool("thinking", req.ThinkingBudget != nil),
	)

	resp, err := g.client.Models.GenerateContent(ctx, modelName,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		buildGenerateConfig(req),
	)
	if err != nil {
		g.logger.Error("Gemini generation failed", zap.String("operation", req.Operation), zap.Error(err))
		return ProviderResult{}, err
	}

	text := extractTextFromGeminiResponse(resp)
	if text == "" && resp != nil && resp.PromptFeedback != nil {
		g.logger.Warn("Gemini returned no text",
			zap.String("operation", req.Operation),
			zap.String("block_reason", string(resp.PromptFeedback.BlockReason)),
		)
	}

	g.logger.Debug("Gemini response received", zap.Int("length", len(text)))
	return ProviderResult{Text: text, Model: modelName}, nil
}

func (g *GeminiProvider) Ping(ctx context.Context) bool {
	if g.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	temp := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, genai.Text("ping"), &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 10,
	})
	if err != nil {
		g.logger.Debug("Gemini ping failed", zap.Error(err))
		return false
	}

	return extractTextFromGeminiResponse(resp) != ""
}

func buildGenerateConfig(req Request) *genai.GenerateContentConfig {
	temp := req.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:    &temp,
		SafetySettings: permissiveSafetySettings(),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if req.ThinkingBudget != nil {
		budget := *req.ThinkingBudget
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}
	return config
}

// permissiveSafetySettings disables blocking for all four harm categories.
func permissiveSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

func toGeminiParts(parts []Part) ([]*genai.Part, error) {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		if !p.IsBlob() {
			out = append(out, genai.NewPartFromText(p.Text))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline %s payload: %w", p.MIMEType, err)
		}
		out = append(out, genai.NewPartFromBytes(data, p.MIMEType))
	}
	return out, nil
}

// extractTextFromGeminiResponse joins the first candidate's text parts, skipping thoughts.
func extractTextFromGeminiResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" && !part.Thought {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "")
}
