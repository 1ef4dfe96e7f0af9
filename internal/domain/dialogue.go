package domain

import "strings"

// DialogueLine is one turn in the script. PersonaID is empty when no persona matched.
type DialogueLine struct {
	ID          string `json:"id"`
	SpeakerName string `json:"speakerName"`
	PersonaID   string `json:"personaId,omitempty"`
	Line        string `json:"line"`
}

// String renders the line in "Speaker: text" form.
func (l DialogueLine) String() string {
	return l.SpeakerName + ": " + l.Line
}

func FindLine(lines []DialogueLine, id string) (int, bool) {
	for i := range lines {
		if lines[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// History renders every line before untilID (all lines when untilID is empty or absent).
func History(lines []DialogueLine, untilID string) string {
	rendered := make([]string, 0, len(lines))
	for _, l := range lines {
		if untilID != "" && l.ID == untilID {
			break
		}
		rendered = append(rendered, l.String())
	}
	return strings.Join(rendered, "\n")
}

func CloneLines(lines []DialogueLine) []DialogueLine {
	if lines == nil {
		return nil
	}
	out := make([]DialogueLine, len(lines))
	copy(out, lines)
	return out
}
