package ai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/util"
	"github.com/kapu/persona-script-go/pkg/errors"
)

type ModelManagerConfig struct {
	GeminiAPIKey       string
	GeminiBaseURL      string
	OpenAIAPIKey       string
	DefaultGeminiModel string
	DefaultOpenAIModel string
	EnableFallback     bool
}

// ModelManager routes requests to Gemini, retries transient failures, falls back to
// OpenAI for text-only requests, and fails fast while the circuit is open.
type ModelManager struct {
	primary        Provider
	fallback       Provider
	retry          RetryPolicy
	circuitBreaker *util.CircuitBreaker
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *zap.Logger
}

func NewModelManager(ctx context.Context, cfg ModelManagerConfig, logger *zap.Logger) (*ModelManager, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.GeminiBaseURL}
	}
	geminiClient, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	defaultGemini := cfg.DefaultGeminiModel
	if defaultGemini == "" {
		defaultGemini = constants.Models.Default
	}
	defaultOpenAI := cfg.DefaultOpenAIModel
	if defaultOpenAI == "" {
		defaultOpenAI = constants.Models.DefaultOpenAI
	}

	var fallback Provider
	if cfg.EnableFallback {
		if p := NewOpenAIProvider(cfg.OpenAIAPIKey, defaultOpenAI, logger); p != nil {
			fallback = p
			logger.Info("OpenAI fallback enabled", zap.String("model", defaultOpenAI))
		}
	}
	if fallback == nil {
		logger.Info("OpenAI fallback disabled")
	}

	return NewModelManagerWithProviders(NewGeminiProvider(geminiClient, defaultGemini, logger), fallback, logger), nil
}

// NewModelManagerWithProviders wires explicit providers; fallback may be nil.
func NewModelManagerWithProviders(primary, fallback Provider, logger *zap.Logger) *ModelManager {
	mm := &ModelManager{
		primary:  primary,
		fallback: fallback,
		retry: RetryPolicy{
			MaxAttempts: constants.RetryConfig.MaxAttempts,
			BaseDelay:   constants.RetryConfig.BaseDelay,
			Jitter:      constants.RetryConfig.Jitter,
		},
		sleep:  sleepContext,
		logger: logger,
	}
	mm.circuitBreaker = util.NewCircuitBreaker(util.CircuitBreakerOptions{
		Name:                "ai",
		FailureThreshold:    constants.CircuitBreakerConfig.FailureThreshold,
		ResetTimeout:        constants.CircuitBreakerConfig.ResetTimeout,
		HealthCheckInterval: constants.CircuitBreakerConfig.HealthCheckInterval,
		HealthCheckTimeout:  constants.CircuitBreakerConfig.HealthCheckTimeout,
		HealthCheck:         mm.healthCheckPing,
	}, logger)
	return mm
}

// Generate runs req and returns non-empty text. Empty output is EmptyResponse and is
// never retried; provider failures become ProviderError.
func (mm *ModelManager) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Operation == "" {
		req.Operation = "generation"
	}

	if !mm.circuitBreaker.CanExecute() {
		status := mm.circuitBreaker.Status()
		mm.logger.Error("AI service unavailable (circuit open)",
			zap.String("operation", req.Operation),
			zap.Int("failure_count", status.FailureCount),
		)
		return nil, errors.NewServiceUnavailableError(
			"The AI service is temporarily unavailable after repeated failures. Please try again in a moment.")
	}

	start := time.Now()
	res, attempts, primaryErr := mm.generateWithRetry(ctx, mm.primary, req)
	if primaryErr == nil {
		mm.circuitBreaker.RecordSuccess()
		return mm.finish(req, res, GenerateMetadata{
			Provider: mm.primary.Name(),
			Model:    res.Model,
			Attempts: attempts,
		}, start)
	}
	mm.recordFailure(primaryErr)

	if mm.fallback != nil && !req.HasBlobs() && ctx.Err() == nil {
		fallbackReq := req
		fallbackReq.Model = ""
		fbRes, fbAttempts, fallbackErr := mm.generateWithRetry(ctx, mm.fallback, fallbackReq)
		if fallbackErr == nil {
			mm.circuitBreaker.RecordSuccess()
			return mm.finish(req, fbRes, GenerateMetadata{
				Provider:     mm.fallback.Name(),
				Model:        fbRes.Model,
				UsedFallback: true,
				Attempts:     attempts + fbAttempts,
			}, start)
		}
		mm.recordFailure(fallbackErr)
		mm.logger.Warn("Fallback provider failed", zap.String("operation", req.Operation), zap.Error(fallbackErr))
	}

	return nil, toProviderError(mm.primary.Name(), req.Operation, primaryErr)
}

// GenerateJSON runs req in JSON mode and strictly decodes the fenced-or-bare JSON body into dest.
func (mm *ModelManager) GenerateJSON(ctx context.Context, req Request, dest any) (*GenerateMetadata, error) {
	req.JSONMode = true
	res, err := mm.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	cleaned := CleanJSON(res.Text)
	if err := DecodeStrict(cleaned, dest); err != nil {
		mm.logger.Error("Failed to decode JSON response",
			zap.String("operation", req.Operation),
			zap.String("provider", res.Metadata.Provider),
			zap.Error(err),
			zap.String("response_preview", util.Preview(cleaned, 200)),
		)
		return nil, errors.NewMalformedResponseError(req.Operation, err)
	}

	return &res.Metadata, nil
}

func (mm *ModelManager) finish(req Request, res ProviderResult, metadata GenerateMetadata, start time.Time) (*Result, error) {
	text := strings.TrimSpace(res.Text)
	mm.logger.Info("AI generation completed",
		zap.String("operation", req.Operation),
		zap.String("provider", metadata.Provider),
		zap.String("model", metadata.Model),
		zap.Bool("used_fallback", metadata.UsedFallback),
		zap.Int("attempts", metadata.Attempts),
		zap.Int("length", len(text)),
		zap.Duration("duration", time.Since(start)),
	)
	if text == "" {
		return nil, errors.NewEmptyResponseError(req.Operation)
	}
	return &Result{Text: text, Metadata: metadata}, nil
}

func (mm *ModelManager) generateWithRetry(ctx context.Context, provider Provider, req Request) (ProviderResult, int, error) {
	if provider == nil {
		return ProviderResult{}, 0, fmt.Errorf("model provider is not configured")
	}

	maxAttempts := mm.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := provider.Generate(ctx, req)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err

		if attempt == maxAttempts || !isTransient(err) || ctx.Err() != nil {
			return ProviderResult{}, attempt, lastErr
		}

		delay := mm.backoff(attempt)
		mm.logger.Warn("Transient AI failure, retrying",
			zap.String("provider", provider.Name()),
			zap.String("operation", req.Operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := mm.sleep(ctx, delay); err != nil {
			return ProviderResult{}, attempt, lastErr
		}
	}
	return ProviderResult{}, maxAttempts, lastErr
}

func (mm *ModelManager) backoff(attempt int) time.Duration {
	delay := mm.retry.BaseDelay << (attempt - 1)
	if mm.retry.Jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(mm.retry.Jitter)))
	}
	return delay
}

func (mm *ModelManager) recordFailure(err error) {
	if !isServiceFailure(err) {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if isRateLimitError(err) {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	mm.circuitBreaker.RecordFailure(timeout)
}

func (mm *ModelManager) healthCheckPing(ctx context.Context) bool {
	primaryOK := mm.primary != nil && mm.primary.Ping(ctx)
	fallbackOK := false
	if !primaryOK && mm.fallback != nil {
		fallbackOK = mm.fallback.Ping(ctx)
	}

	mm.logger.Info("AI health check",
		zap.Bool("primary", primaryOK),
		zap.Bool("fallback", fallbackOK),
	)
	return primaryOK || fallbackOK
}

func (mm *ModelManager) CircuitStatus() util.CircuitBreakerStatus {
	return mm.circuitBreaker.Status()
}

func (mm *ModelManager) ResetCircuit() {
	mm.circuitBreaker.Reset()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
