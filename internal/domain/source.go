package domain

import "strings"

type MediaKind string

const (
	MediaKindText  MediaKind = "text"
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
	MediaKindImage MediaKind = "image"
	MediaKindLink  MediaKind = "link"
)

func (k MediaKind) String() string {
	return string(k)
}

func (k MediaKind) IsValid() bool {
	switch k {
	case MediaKindText, MediaKindAudio, MediaKindVideo, MediaKindImage, MediaKindLink:
		return true
	default:
		return false
	}
}

// IsBinary reports whether payloads of this kind are base64-encoded bytes.
func (k MediaKind) IsBinary() bool {
	switch k {
	case MediaKindAudio, MediaKindVideo, MediaKindImage:
		return true
	default:
		return false
	}
}

// NeedsMediaModel reports whether attaching this kind forces the media-capable model.
func (k MediaKind) NeedsMediaModel() bool {
	return k == MediaKindVideo || k == MediaKindImage
}

// ParseMediaKind accepts the kind names used by the UI, including the legacy "youtube" alias.
func ParseMediaKind(raw string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text", "":
		return MediaKindText, true
	case "audio":
		return MediaKindAudio, true
	case "video":
		return MediaKindVideo, true
	case "image":
		return MediaKindImage, true
	case "link", "youtube", "url":
		return MediaKindLink, true
	default:
		return "", false
	}
}

// SourceItem is one uploaded or linked artifact. Data holds decoded text for text
// and link kinds and base64 without any data-URL prefix for binary kinds.
type SourceItem struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Kind     MediaKind `json:"type"`
	MIMEType string    `json:"mimeType"`
	Data     string    `json:"data"`
}

// NeedsMediaModel reports whether any source is video or image.
func NeedsMediaModel(sources []SourceItem) bool {
	for _, s := range sources {
		if s.Kind.NeedsMediaModel() {
			return true
		}
	}
	return false
}

func CloneSources(sources []SourceItem) []SourceItem {
	if sources == nil {
		return nil
	}
	out := make([]SourceItem, len(sources))
	copy(out, sources)
	return out
}
