package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
)

// FileInput is one user-selected file. Open is called exactly once.
type FileInput struct {
	Name     string
	MIMEType string
	Open     func() (io.ReadCloser, error)
}

type FileFailure struct {
	Name string
	Err  error
}

// BatchResult holds the successful items of one batch and the files that failed.
type BatchResult struct {
	Items  []domain.SourceItem
	Failed []FileFailure
}

type Options struct {
	MaxFileBytes   int64
	MaxConcurrency int
}

// Capturer turns files and links into SourceItems.
type Capturer struct {
	maxFileBytes   int64
	maxConcurrency int
	links          *LinkResolver
	newID          func() string
	logger         *zap.Logger
}

func NewCapturer(opts Options, links *LinkResolver, logger *zap.Logger) *Capturer {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = constants.CaptureLimits.MaxFileBytes
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = constants.CaptureLimits.MaxConcurrency
	}
	return &Capturer{
		maxFileBytes:   opts.MaxFileBytes,
		maxConcurrency: opts.MaxConcurrency,
		links:          links,
		newID:          func() string { return "source-" + uuid.NewString() },
		logger:         logger,
	}
}

// Batch reads every file concurrently and calls onComplete exactly once, after the last
// file has finished, with only the successful items. Items are in completion order.
// A failed file contributes no item but still counts toward completion.
func (c *Capturer) Batch(ctx context.Context, kind domain.MediaKind, files []FileInput, onComplete func(BatchResult)) BatchResult {
	tracker := newBatchTracker(len(files), onComplete)
	if len(files) == 0 {
		return tracker.finishEmpty()
	}

	p := pool.New().WithMaxGoroutines(c.maxConcurrency)
	for _, f := range files {
		p.Go(func() {
			item, err := c.readFile(ctx, kind, f)
			if err != nil {
				c.logger.Warn("Failed to read source file",
					zap.String("name", f.Name),
					zap.String("kind", kind.String()),
					zap.Error(err),
				)
				tracker.fail(FileFailure{Name: f.Name, Err: err})
				return
			}
			tracker.succeed(item)
		})
	}
	p.Wait()

	result := tracker.result()
	c.logger.Info("Source batch captured",
		zap.String("kind", kind.String()),
		zap.Int("files", len(files)),
		zap.Int("captured", len(result.Items)),
		zap.Int("failed", len(result.Failed)),
	)
	return result
}

func (c *Capturer) readFile(ctx context.Context, kind domain.MediaKind, f FileInput) (domain.SourceItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.SourceItem{}, err
	}
	if f.Open == nil {
		return domain.SourceItem{}, fmt.Errorf("file %q has no content", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return domain.SourceItem{}, fmt.Errorf("open %q: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, c.maxFileBytes+1))
	if err != nil {
		return domain.SourceItem{}, fmt.Errorf("read %q: %w", f.Name, err)
	}
	if int64(len(data)) > c.maxFileBytes {
		return domain.SourceItem{}, fmt.Errorf("file %q exceeds the %d byte limit", f.Name, c.maxFileBytes)
	}

	return c.FromBytes(kind, f.Name, f.MIMEType, data)
}

// FromBytes converts one payload to a SourceItem. Text kinds carry decoded text (PDFs are
// reduced to their plain text); binary kinds carry base64 with any data-URL prefix removed.
func (c *Capturer) FromBytes(kind domain.MediaKind, name, mimeType string, data []byte) (domain.SourceItem, error) {
	item := domain.SourceItem{
		ID:   c.newID(),
		Name: name,
		Kind: kind,
	}

	if kind == domain.MediaKindText || kind == domain.MediaKindLink {
		item.MIMEType = textMIMEType(name, mimeType)
		if isPDF(name, mimeType) {
			text, err := extractPDFText(data)
			if err != nil {
				return domain.SourceItem{}, err
			}
			item.Data = text
			return item, nil
		}
		item.Data = string(data)
		return item, nil
	}

	payload, declared, isDataURL := splitDataURL(data)
	if isDataURL {
		if mimeType == "" {
			mimeType = declared
		}
		if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
			return domain.SourceItem{}, fmt.Errorf("file %q carries an invalid base64 payload: %w", name, err)
		}
		item.Data = payload
	} else {
		item.Data = base64.StdEncoding.EncodeToString(data)
	}
	item.MIMEType = binaryMIMEType(name, mimeType)
	return item, nil
}

// splitDataURL separates "data:<mime>;base64,<payload>" into payload and declared MIME.
func splitDataURL(data []byte) (payload, mimeType string, ok bool) {
	if !bytes.HasPrefix(data, []byte("data:")) {
		return "", "", false
	}
	header, body, found := strings.Cut(string(data), ",")
	if !found || !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	return strings.TrimSpace(body), mimeType, true
}

func textMIMEType(name, declared string) string {
	if declared != "" {
		return declared
	}
	if isPDF(name, "") {
		return "application/pdf"
	}
	return "text/plain"
}

func binaryMIMEType(name, declared string) string {
	if declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
		return byExt
	}
	return "application/octet-stream"
}

func isPDF(name, mimeType string) bool {
	return strings.EqualFold(mimeType, "application/pdf") || strings.EqualFold(filepath.Ext(name), ".pdf")
}

// batchTracker counts outstanding files; the goroutine that brings the count to zero
// publishes the merged result.
type batchTracker struct {
	remaining  atomic.Int64
	mu         sync.Mutex
	items      []domain.SourceItem
	failed     []FileFailure
	once       sync.Once
	onComplete func(BatchResult)
}

func newBatchTracker(n int, onComplete func(BatchResult)) *batchTracker {
	t := &batchTracker{onComplete: onComplete}
	t.remaining.Store(int64(n))
	return t
}

func (t *batchTracker) succeed(item domain.SourceItem) {
	t.mu.Lock()
	t.items = append(t.items, item)
	t.mu.Unlock()
	t.done()
}

func (t *batchTracker) fail(f FileFailure) {
	t.mu.Lock()
	t.failed = append(t.failed, f)
	t.mu.Unlock()
	t.done()
}

func (t *batchTracker) done() {
	if t.remaining.Add(-1) == 0 {
		t.complete()
	}
}

func (t *batchTracker) finishEmpty() BatchResult {
	t.complete()
	return t.result()
}

func (t *batchTracker) complete() {
	t.once.Do(func() {
		if t.onComplete != nil {
			t.onComplete(t.result())
		}
	})
}

func (t *batchTracker) result() BatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return BatchResult{
		Items:  append([]domain.SourceItem(nil), t.items...),
		Failed: append([]FileFailure(nil), t.failed...),
	}
}
