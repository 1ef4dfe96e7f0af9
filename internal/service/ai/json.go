package ai

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var fenceRegex = regexp.MustCompile("(?s)^```(\\w*)?\\s*\\n?(.*?)\\n?\\s*```$")

// CleanJSON trims text and removes one surrounding ``` fence with an optional language tag.
func CleanJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	if matches := fenceRegex.FindStringSubmatch(cleaned); len(matches) > 2 && matches[2] != "" {
		cleaned = strings.TrimSpace(matches[2])
	}
	return cleaned
}

// DecodeStrict decodes exactly one JSON value into dest, rejecting unknown fields and trailing data.
func DecodeStrict(text string, dest any) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data after JSON value")
	}
	return nil
}
