package domain

import "strings"

// Persona is one configured speaker.
type Persona struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Role          string        `json:"role"`
	SpeakingStyle string        `json:"speakingStyle"`
	Sources       []SourceItem  `json:"sources"`
	Profile       *StyleProfile `json:"sflProfile"`
	IsAnalyzing   bool          `json:"isAnalyzing"`
}

// PersonaUpdate carries a partial edit; nil fields are left unchanged.
type PersonaUpdate struct {
	Name          *string `json:"name,omitempty"`
	Role          *string `json:"role,omitempty"`
	SpeakingStyle *string `json:"speakingStyle,omitempty"`
}

func (u PersonaUpdate) Apply(p Persona) Persona {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.SpeakingStyle != nil {
		p.SpeakingStyle = *u.SpeakingStyle
	}
	return p
}

func (p Persona) HasProfile() bool {
	return p.Profile != nil
}

// Clone deep-copies the slices and profile so callers can mutate the copy freely.
func (p Persona) Clone() Persona {
	p.Sources = CloneSources(p.Sources)
	p.Profile = p.Profile.Clone()
	return p
}

// MatchesName compares names case-insensitively after trimming.
func (p Persona) MatchesName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name))
}

// FindPersonaByName resolves a speaker name to a persona, or nil.
func FindPersonaByName(personas []Persona, name string) *Persona {
	for i := range personas {
		if personas[i].MatchesName(name) {
			return &personas[i]
		}
	}
	return nil
}

func FindPersona(personas []Persona, id string) (int, bool) {
	for i := range personas {
		if personas[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// PersonaBrief is the shape embedded into generation prompts and exports.
type PersonaBrief struct {
	Name          string        `json:"name"`
	Role          string        `json:"role"`
	SpeakingStyle string        `json:"speakingStyle"`
	Profile       *StyleProfile `json:"sflProfile"`
}

func Briefs(personas []Persona) []PersonaBrief {
	out := make([]PersonaBrief, 0, len(personas))
	for _, p := range personas {
		out = append(out, PersonaBrief{
			Name:          p.Name,
			Role:          p.Role,
			SpeakingStyle: p.SpeakingStyle,
			Profile:       p.Profile,
		})
	}
	return out
}
