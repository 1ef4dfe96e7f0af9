package ai

import (
	"context"
	"time"
)

// Part is one piece of request content: text, or an inline blob carried as base64.
type Part struct {
	Text     string
	MIMEType string
	Data     string
}

func TextPart(text string) Part {
	return Part{Text: text}
}

func BlobPart(mimeType, base64Data string) Part {
	return Part{MIMEType: mimeType, Data: base64Data}
}

func (p Part) IsBlob() bool {
	return p.Data != ""
}

// Request describes one generation call. Operation names the call in user-facing errors
// ("analysis", "dialogue generation", ...).
type Request struct {
	Operation         string
	Model             string
	SystemInstruction string
	Parts             []Part
	Temperature       float32
	ThinkingBudget    *int32
	JSONMode          bool
}

func (r Request) HasBlobs() bool {
	for _, p := range r.Parts {
		if p.IsBlob() {
			return true
		}
	}
	return false
}

// GenerateMetadata describes which provider served a request.
type GenerateMetadata struct {
	Provider     string
	Model        string
	UsedFallback bool
	Attempts     int
}

type Result struct {
	Text     string
	Metadata GenerateMetadata
}

// Provider is one generative backend. Generate returns the raw text; an empty Text with
// a nil error means the provider answered without usable content.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (ProviderResult, error)
	Ping(ctx context.Context) bool
}

type ProviderResult struct {
	Text  string
	Model string
}

// RetryPolicy controls retries of transient provider failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}
