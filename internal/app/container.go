package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/api"
	"github.com/kapu/persona-script-go/internal/capture"
	"github.com/kapu/persona-script-go/internal/config"
	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/service/ai"
	"github.com/kapu/persona-script-go/internal/service/analysis"
	"github.com/kapu/persona-script-go/internal/service/cache"
	"github.com/kapu/persona-script-go/internal/service/script"
	"github.com/kapu/persona-script-go/internal/service/search"
	"github.com/kapu/persona-script-go/internal/session"
)

// Container bundles the assembled services shared by the HTTP server and the CLI.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Models   *ai.ModelManager
	Store    *session.Store
	Workflow *session.Workflow
	Handler  http.Handler

	closers []func()
}

// DefaultSettings seeds the model settings of every new session from the environment.
func DefaultSettings(cfg *config.Config) domain.ModelSettings {
	return domain.ModelSettings{
		Model:          cfg.Gemini.DefaultModel,
		ThinkingBudget: cfg.Gemini.ThinkingBudgetString(),
		Temperature:    cfg.Gemini.Temperature,
	}
}

// Build assembles all services. Redis is optional; a failed connection only disables
// the search cache.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// AI stack
	c.Models, err = ai.NewModelManager(ctx, ai.ModelManagerConfig{
		GeminiAPIKey:       cfg.Gemini.APIKey,
		GeminiBaseURL:      cfg.Gemini.BaseURL,
		OpenAIAPIKey:       cfg.OpenAI.APIKey,
		DefaultGeminiModel: cfg.Gemini.DefaultModel,
		DefaultOpenAIModel: cfg.OpenAI.DefaultModel,
		EnableFallback:     cfg.OpenAI.EnableFallback,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model manager: %w", err)
	}

	analyzer := analysis.NewAnalyzer(c.Models, analysis.Config{
		DefaultModel: cfg.Gemini.DefaultModel,
		MediaModel:   cfg.Gemini.MediaModel,
	}, logger)
	writer := script.NewService(c.Models, script.Config{
		DefaultModel: cfg.Gemini.DefaultModel,
		MediaModel:   cfg.Gemini.MediaModel,
	}, logger)

	// Search cache
	var store cache.Store
	if cfg.Redis.Enabled {
		cacheSvc, cacheErr := cache.NewCacheService(ctx, cache.CacheConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if cacheErr != nil {
			logger.Warn("Redis unavailable, search results will not be cached", zap.Error(cacheErr))
		} else {
			store = cacheSvc
			c.closers = append(c.closers, func() { _ = cacheSvc.Close() })
		}
	}

	searcher := search.NewService(search.Config{
		DefaultAPIKey:   cfg.Search.APIKey,
		DefaultEngineID: cfg.Search.EngineID,
		Endpoint:        cfg.Search.Endpoint,
		CacheTTL:        constants.CacheTTL.SearchResults,
	}, store, logger)

	links := capture.NewLinkResolver(&http.Client{Timeout: constants.CaptureLimits.LinkTimeout}, logger)
	capturer := capture.NewCapturer(capture.Options{
		MaxFileBytes: cfg.Capture.MaxUploadBytes(),
	}, links, logger)

	c.Store = session.NewStore(DefaultSettings(cfg), logger)
	c.closers = append(c.closers, c.Store.Close)
	c.Workflow = session.NewWorkflow(analyzer, writer, searcher, capturer, logger)

	handler := api.NewHandler(c.Store, c.Workflow, c.Models, cfg.Capture.MaxUploadBytes(), logger)
	c.Handler = api.NewRouter(handler, logger)

	logger.Info("Services assembled",
		zap.String("model", cfg.Gemini.DefaultModel),
		zap.Bool("search_cache", store != nil),
		zap.Bool("openai_fallback", cfg.OpenAI.EnableFallback && cfg.OpenAI.APIKey != ""),
	)
	return c, nil
}

// Close waits for background lookups and releases resources in reverse order.
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Workflow != nil {
		c.Workflow.Wait()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
