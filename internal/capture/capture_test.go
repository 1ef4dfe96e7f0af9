package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/domain"
)

func stringFile(name, mimeType, body string) FileInput {
	return FileInput{
		Name:     name,
		MIMEType: mimeType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func failingFile(name string) FileInput {
	return FileInput{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("disk on fire")
		},
	}
}

func newTestCapturer() *Capturer {
	return NewCapturer(Options{MaxFileBytes: 1024, MaxConcurrency: 3}, nil, zap.NewNop())
}

func TestBatchCompletesExactlyOnceWithPartialFailure(t *testing.T) {
	c := newTestCapturer()

	var calls atomic.Int32
	var appended BatchResult
	result := c.Batch(context.Background(), domain.MediaKindText, []FileInput{
		stringFile("a.txt", "", "alpha"),
		failingFile("b.txt"),
		stringFile("c.txt", "text/markdown", "gamma"),
	}, func(r BatchResult) {
		calls.Add(1)
		appended = r
	})

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly one completion, got %d", got)
	}
	if len(appended.Items) != 2 || len(result.Items) != 2 {
		t.Fatalf("expected 2 captured items, got %d (returned %d)", len(appended.Items), len(result.Items))
	}
	if len(result.Failed) != 1 || result.Failed[0].Name != "b.txt" {
		t.Fatalf("expected b.txt to fail, got %+v", result.Failed)
	}
	for _, item := range appended.Items {
		if item.Kind != domain.MediaKindText || item.ID == "" {
			t.Fatalf("unexpected item: %+v", item)
		}
		if item.Name == "a.txt" && (item.Data != "alpha" || item.MIMEType != "text/plain") {
			t.Fatalf("unexpected text item: %+v", item)
		}
	}
}

func TestBatchManyFilesSingleCompletion(t *testing.T) {
	c := newTestCapturer()

	files := make([]FileInput, 0, 20)
	for i := 0; i < 20; i++ {
		if i%4 == 0 {
			files = append(files, failingFile(fmt.Sprintf("bad-%d", i)))
			continue
		}
		files = append(files, stringFile(fmt.Sprintf("f-%d.txt", i), "", "x"))
	}

	var calls atomic.Int32
	var size int
	c.Batch(context.Background(), domain.MediaKindText, files, func(r BatchResult) {
		calls.Add(1)
		size = len(r.Items)
	})

	if calls.Load() != 1 || size != 15 {
		t.Fatalf("expected one completion with 15 items, got %d completions and %d items", calls.Load(), size)
	}
}

func TestBatchEmptyStillCompletes(t *testing.T) {
	c := newTestCapturer()
	var calls int
	c.Batch(context.Background(), domain.MediaKindAudio, nil, func(BatchResult) { calls++ })
	if calls != 1 {
		t.Fatalf("expected completion for empty batch, got %d", calls)
	}
}

func TestBinaryKindsEncodeBase64AndStripDataURL(t *testing.T) {
	c := newTestCapturer()

	item, err := c.FromBytes(domain.MediaKindImage, "pic.png", "", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Data != "iVBORw==" || item.MIMEType != "image/png" {
		t.Fatalf("unexpected encoded item: %+v", item)
	}

	item, err = c.FromBytes(domain.MediaKindAudio, "clip", "", []byte("data:audio/mpeg;base64,SGVsbG8="))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Data != "SGVsbG8=" || item.MIMEType != "audio/mpeg" {
		t.Fatalf("data URL prefix not stripped: %+v", item)
	}

	item, err = c.FromBytes(domain.MediaKindVideo, "clip.bin", "", []byte("raw"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.MIMEType != "application/octet-stream" {
		t.Fatalf("expected octet-stream fallback, got %q", item.MIMEType)
	}
}

func TestOversizedFileFailsIndividually(t *testing.T) {
	c := NewCapturer(Options{MaxFileBytes: 4}, nil, zap.NewNop())
	result := c.Batch(context.Background(), domain.MediaKindText, []FileInput{
		stringFile("big.txt", "", "too large"),
		stringFile("ok.txt", "", "ok"),
	}, nil)
	if len(result.Items) != 1 || len(result.Failed) != 1 {
		t.Fatalf("expected one success and one failure, got %+v", result)
	}
}

func TestCaptureLinkUsesPageTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/og":
			fmt.Fprint(w, `<html><head><meta property="og:title" content="Open Graph Title"><title>Plain</title></head></html>`)
		case "/plain":
			fmt.Fprint(w, `<html><head><title> Plain Title </title></head></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewCapturer(Options{}, NewLinkResolver(srv.Client(), zap.NewNop()), zap.NewNop())

	tests := []struct {
		path string
		want string
	}{
		{"/og", "Open Graph Title"},
		{"/plain", "Plain Title"},
		{"/missing", srv.URL + "/missing"},
	}
	for _, tt := range tests {
		item, err := c.CaptureLink(context.Background(), srv.URL+tt.path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if item.Name != tt.want || item.Data != srv.URL+tt.path || item.Kind != domain.MediaKindLink {
			t.Fatalf("unexpected link item for %s: %+v", tt.path, item)
		}
	}

	if _, err := c.CaptureLink(context.Background(), "ftp://example.com"); err == nil {
		t.Fatalf("expected error for non-http link")
	}
}
