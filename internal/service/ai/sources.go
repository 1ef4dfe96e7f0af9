package ai

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kapu/persona-script-go/internal/domain"
)

// SourceParts converts sources into request parts. Text and link payloads become labelled text
// blocks sharing a budget of maxChars characters; binary kinds become inline blobs.
func SourceParts(sources []domain.SourceItem, maxChars int) []Part {
	parts := make([]Part, 0, len(sources))
	remaining := maxChars
	for _, s := range sources {
		if s.Kind.IsBinary() {
			parts = append(parts, BlobPart(s.MIMEType, s.Data))
			continue
		}
		if maxChars > 0 && remaining <= 0 {
			continue
		}

		label := "SOURCE"
		if s.Kind == domain.MediaKindLink {
			label = "LINK"
		}
		body := s.Data
		if maxChars > 0 {
			body = truncateRunes(body, remaining)
			remaining -= utf8.RuneCountInString(body)
		}
		parts = append(parts, TextPart(fmt.Sprintf("--- %s: %s ---\n%s", label, s.Name, body)))
	}
	return parts
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count == n {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
