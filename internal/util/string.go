package util

import (
	"strings"
	"unicode/utf8"
)

// Slugify lower-cases the trimmed s and replaces every rune outside [a-z0-9] with '_'.
func Slugify(s string) string {
	s = strings.TrimSpace(s)
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(r + ('a' - 'A'))
		default:
			builder.WriteByte('_')
		}
	}
	return builder.String()
}

// Preview shortens a payload for log fields.
func Preview(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
