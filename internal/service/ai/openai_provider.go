package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// OpenAIProvider serves text-only requests when Gemini is failing.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	logger       *zap.Logger
}

func NewOpenAIProvider(apiKey, defaultModel string, logger *zap.Logger, opts ...option.RequestOption) *OpenAIProvider {
	if apiKey == "" {
		return nil
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIProvider{
		client:       &client,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

func (o *OpenAIProvider) Name() string {
	return "OpenAI"
}

func (o *OpenAIProvider) Generate(ctx context.Context, req Request) (ProviderResult, error) {
	if o.client == nil {
		return ProviderResult{}, fmt.Errorf("OpenAI client not initialized")
	}
	if req.HasBlobs() {
		return ProviderResult{}, fmt.Errorf("OpenAI fallback does not accept inline media")
	}

	modelName := req.Model
	if !strings.HasPrefix(modelName, "gpt-") && !strings.HasPrefix(modelName, "o") {
		modelName = o.defaultModel
	}

	o.logger.Info("Fallback: Generating with OpenAI",
		zap.String("operation", req.Operation),
		zap.String("model", modelName),
	)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: buildOpenAIMessages(req),
	}
	if !strings.HasPrefix(modelName, "gpt-5") {
		params.Temperature = openai.Float(float64(req.Temperature))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		o.logger.Error("OpenAI generation failed", zap.Error(err))
		return ProviderResult{}, err
	}

	if len(resp.Choices) == 0 {
		return ProviderResult{Model: modelName}, nil
	}

	text := resp.Choices[0].Message.Content
	o.logger.Info("OpenAI response received",
		zap.Int("length", len(text)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return ProviderResult{Text: text, Model: modelName}, nil
}

func (o *OpenAIProvider) Ping(ctx context.Context) bool {
	if o.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.defaultModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
		MaxCompletionTokens: openai.Int(10),
	})
	if err != nil {
		o.logger.Debug("OpenAI ping failed", zap.Error(err))
		return false
	}

	return len(resp.Choices) > 0
}

func buildOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	system := req.SystemInstruction
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n\nYou must respond with valid JSON only. Do not include any text outside the JSON object.")
	}

	texts := make([]string, 0, len(req.Parts))
	for _, p := range req.Parts {
		if !p.IsBlob() {
			texts = append(texts, p.Text)
		}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	return append(messages, openai.UserMessage(strings.Join(texts, "\n\n")))
}
