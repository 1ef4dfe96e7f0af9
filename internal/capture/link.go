package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/pkg/errors"
)

// LinkResolver fetches a page title for link sources.
type LinkResolver struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *zap.Logger
}

func NewLinkResolver(httpClient *http.Client, logger *zap.Logger) *LinkResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.CaptureLimits.LinkTimeout}
	}
	return &LinkResolver{
		httpClient: httpClient,
		maxBytes:   constants.CaptureLimits.MaxLinkBytes,
		logger:     logger,
	}
}

// Title returns og:title, else <title>, else "".
func (r *LinkResolver) Title(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; PersonaScriptStudio/1.0)")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, r.maxBytes))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og), nil
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

// CaptureLink builds a link SourceItem whose payload is the URL. Title lookup failures
// only affect the display name.
func (c *Capturer) CaptureLink(ctx context.Context, rawURL string) (domain.SourceItem, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return domain.SourceItem{}, errors.NewValidationError(fmt.Sprintf("%q is not a valid http(s) link.", rawURL), "url", rawURL)
	}

	name := rawURL
	if c.links != nil {
		title, err := c.links.Title(ctx, rawURL)
		if err != nil {
			c.logger.Debug("Link title lookup failed", zap.String("url", rawURL), zap.Error(err))
		} else if title != "" {
			name = title
		}
	}

	return domain.SourceItem{
		ID:       c.newID(),
		Name:     name,
		Kind:     domain.MediaKindLink,
		MIMEType: "text/uri-list",
		Data:     rawURL,
	}, nil
}
