package script

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kapu/persona-script-go/internal/domain"
)

// ParseScript splits raw model output into dialogue lines. Lines without a colon or a speaker
// are dropped; the rest split at the first colon and resolve their persona by case-insensitive name.
func ParseScript(text string, personas []domain.Persona) []domain.DialogueLine {
	rows := strings.Split(text, "\n")
	lines := make([]domain.DialogueLine, 0, len(rows))
	for _, row := range rows {
		line, ok := ParseLine(row, personas)
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ParseLine parses one "Speaker: text" row. It reports false when the row has no colon
// or the speaker is blank.
func ParseLine(row string, personas []domain.Persona) (domain.DialogueLine, bool) {
	rawSpeaker, text, found := strings.Cut(row, ":")
	if !found {
		return domain.DialogueLine{}, false
	}

	speaker := cleanSpeaker(rawSpeaker)
	if speaker == "" {
		return domain.DialogueLine{}, false
	}

	text = strings.TrimSpace(text)
	// "**Alex:** hi" leaves the closing marker in front of the text.
	if rawSpeaker = strings.TrimSpace(rawSpeaker); strings.HasPrefix(rawSpeaker, "**") && !strings.HasSuffix(rawSpeaker, "**") {
		text = strings.TrimSpace(strings.TrimPrefix(text, "**"))
	}

	line := domain.DialogueLine{
		ID:          "line-" + uuid.NewString(),
		SpeakerName: speaker,
		Line:        text,
	}
	if p := domain.FindPersonaByName(personas, speaker); p != nil {
		line.PersonaID = p.ID
	}
	return line, true
}

// cleanSpeaker trims whitespace and markdown bold markers ("**Name**") around a speaker name.
func cleanSpeaker(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "**")
	s = strings.TrimSuffix(s, "**")
	return strings.TrimSpace(s)
}
