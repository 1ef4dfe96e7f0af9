package domain

import "strings"

// ShowStructure is the episode-level configuration shared by all personas.
// PrimaryHostID is empty when no host is selected.
type ShowStructure struct {
	Title          string       `json:"title"`
	PrimaryHostID  string       `json:"primaryHostId"`
	Intro          string       `json:"intro"`
	Topics         []string     `json:"topics"`
	ContextSources []SourceItem `json:"contextSources"`
}

// ShowUpdate carries a partial edit of the show structure.
type ShowUpdate struct {
	Title         *string   `json:"title,omitempty"`
	PrimaryHostID *string   `json:"primaryHostId,omitempty"`
	Intro         *string   `json:"intro,omitempty"`
	Topics        *[]string `json:"topics,omitempty"`
}

func (u ShowUpdate) Apply(s ShowStructure) ShowStructure {
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.PrimaryHostID != nil {
		s.PrimaryHostID = *u.PrimaryHostID
	}
	if u.Intro != nil {
		s.Intro = *u.Intro
	}
	if u.Topics != nil {
		s.Topics = append([]string{}, (*u.Topics)...)
	}
	return s
}

func (s ShowStructure) Clone() ShowStructure {
	s.Topics = append([]string{}, s.Topics...)
	s.ContextSources = CloneSources(s.ContextSources)
	return s
}

// HostName resolves the primary host against personas, returning "" when unset or dangling.
func (s ShowStructure) HostName(personas []Persona) string {
	if s.PrimaryHostID == "" {
		return ""
	}
	if i, ok := FindPersona(personas, s.PrimaryHostID); ok {
		return personas[i].Name
	}
	return ""
}

// TopicsReady reports whether topics are non-empty and every topic is non-blank.
func (s ShowStructure) TopicsReady() bool {
	if len(s.Topics) == 0 {
		return false
	}
	for _, t := range s.Topics {
		if strings.TrimSpace(t) == "" {
			return false
		}
	}
	return true
}

// SearchQuery joins the current topics with a single space.
func (s ShowStructure) SearchQuery() string {
	return strings.Join(s.Topics, " ")
}
