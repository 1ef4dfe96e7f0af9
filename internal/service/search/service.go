package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/service/cache"
	"github.com/kapu/persona-script-go/pkg/errors"
)

const (
	providerName           = "google-custom-search"
	missingCredentialsText = "Search keys are missing. Please configure them in the Persona/Model settings step."
)

type Config struct {
	DefaultAPIKey   string
	DefaultEngineID string
	Endpoint        string
	CacheTTL        time.Duration
}

// Credentials are the per-session search settings; blanks fall back to the process defaults.
type Credentials struct {
	APIKey   string
	EngineID string
}

type Service struct {
	cfg    Config
	cache  cache.Store
	logger *zap.Logger
}

// NewService builds the lookup client. store may be nil.
func NewService(cfg Config, store cache.Store, logger *zap.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = constants.CacheTTL.SearchResults
	}
	return &Service{cfg: cfg, cache: store, logger: logger}
}

// Search runs one lookup for query. No items is an empty, non-nil slice.
func (s *Service) Search(ctx context.Context, query string, creds Credentials) ([]domain.SearchResultItem, error) {
	apiKey := firstNonBlank(creds.APIKey, s.cfg.DefaultAPIKey)
	engineID := firstNonBlank(creds.EngineID, s.cfg.DefaultEngineID)
	if apiKey == "" || engineID == "" {
		return nil, errors.NewMissingCredentialsError(missingCredentialsText)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationError("Add at least one topic before searching.", "query", query)
	}

	key := CacheKey(engineID, query)
	if s.cache != nil {
		var cached []domain.SearchResultItem
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("Search cache read failed", zap.String("key", key), zap.Error(err))
		} else if hit {
			s.logger.Debug("Search cache hit", zap.String("key", key), zap.Int("results", len(cached)))
			return cached, nil
		}
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if s.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.cfg.Endpoint))
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.NewProviderError(providerName, "Failed to initialize the search client: "+err.Error(), 0, err)
	}

	start := time.Now()
	resp, err := svc.Cse.List().Cx(engineID).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, toProviderError(err)
	}

	items := make([]domain.SearchResultItem, 0, len(resp.Items))
	for _, r := range resp.Items {
		if r == nil {
			continue
		}
		items = append(items, domain.SearchResultItem{
			Title:     r.Title,
			Link:      r.Link,
			Snippet:   r.Snippet,
			Thumbnail: thumbnail(r.Pagemap),
		})
	}

	s.logger.Info("Search completed",
		zap.Int("query_length", len(query)),
		zap.Int("results", len(items)),
		zap.Duration("duration", time.Since(start)),
	)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, items, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("Search cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return items, nil
}

// CacheKey is search:<engine id>:<sha1 of query>.
func CacheKey(engineID, query string) string {
	sum := sha1.Sum([]byte(query))
	return "search:" + engineID + ":" + hex.EncodeToString(sum[:])
}

type pagemap struct {
	CSEThumbnail []struct {
		Src string `json:"src"`
	} `json:"cse_thumbnail"`
	VideoObject []struct {
		ThumbnailURL string `json:"thumbnailurl"`
	} `json:"videoobject"`
}

// thumbnail prefers the page thumbnail and falls back to the video-object thumbnail.
func thumbnail(raw googleapi.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var pm pagemap
	if err := json.Unmarshal(raw, &pm); err != nil {
		return ""
	}
	if len(pm.CSEThumbnail) > 0 && pm.CSEThumbnail[0].Src != "" {
		return pm.CSEThumbnail[0].Src
	}
	if len(pm.VideoObject) > 0 {
		return pm.VideoObject[0].ThumbnailURL
	}
	return ""
}

func toProviderError(err error) error {
	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return errors.NewProviderError(providerName, msg, apiErr.Code, err)
	}
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.NewProviderError(providerName, "The search request failed: "+err.Error(), 0, err)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
