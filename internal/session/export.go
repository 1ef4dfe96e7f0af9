package session

import (
	"time"

	"github.com/kapu/persona-script-go/internal/constants"
	"github.com/kapu/persona-script-go/internal/domain"
	"github.com/kapu/persona-script-go/internal/util"
)

type ExportDocument struct {
	Show     ExportShow      `json:"show"`
	Personas []ExportPersona `json:"personas"`
	Script   []ExportLine    `json:"script"`
}

// ExportShow.Host is omitted when no existing persona is the host.
type ExportShow struct {
	Title       string   `json:"title"`
	GeneratedAt string   `json:"generatedAt"`
	Host        string   `json:"host,omitempty"`
	Intro       string   `json:"intro"`
	Topics      []string `json:"topics"`
}

type ExportPersona struct {
	Name       string               `json:"name"`
	Role       string               `json:"role"`
	Style      string               `json:"style"`
	SFLProfile *domain.StyleProfile `json:"sflProfile"`
}

type ExportLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Export builds the downloadable script document and its file name.
func Export(s State, now time.Time) (ExportDocument, string) {
	doc := ExportDocument{
		Show: ExportShow{
			Title:       s.Show.Title,
			GeneratedAt: now.UTC().Format(time.RFC3339),
			Host:        s.Show.HostName(s.Personas),
			Intro:       s.Show.Intro,
			Topics:      append([]string{}, s.Show.Topics...),
		},
		Personas: make([]ExportPersona, 0, len(s.Personas)),
		Script:   make([]ExportLine, 0, len(s.Script)),
	}
	for _, p := range s.Personas {
		doc.Personas = append(doc.Personas, ExportPersona{
			Name:       p.Name,
			Role:       p.Role,
			Style:      p.SpeakingStyle,
			SFLProfile: p.Profile,
		})
	}
	for _, l := range s.Script {
		doc.Script = append(doc.Script, ExportLine{Speaker: l.SpeakerName, Text: l.Line})
	}
	return doc, ExportFilename(s.Show.Title)
}

// ExportFilename is "<slug>_script.json", with "podcast" standing in for a blank title.
func ExportFilename(title string) string {
	slug := util.Slugify(title)
	if slug == "" {
		slug = constants.SessionDefaults.ExportFallback
	}
	return slug + constants.SessionDefaults.ExportSuffix
}
