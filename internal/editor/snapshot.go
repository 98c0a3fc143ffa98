package editor

import (
	"encoding/json"
	"strings"
	"time"
)

// Snapshot is the full editable state of an article inside one session. It is
// a fixed record: the body stays opaque JSON owned by the rich-text editor,
// everything else is typed.
type Snapshot struct {
	Title              string          `json:"title"`
	Slug               string          `json:"slug"`
	MetaDescription    string          `json:"metaDescription"`
	CoverImage         string          `json:"coverImage"`
	CoverImagePosition string          `json:"coverImagePosition"`
	CoverImageAlt      string          `json:"coverImageAlt"`
	Body               json.RawMessage `json:"body"`
	Tags               []string        `json:"tags"`
	// UploadedAssets is the set of asset URLs known to this article,
	// including uploads not yet referenced by the body.
	UploadedAssets []string `json:"uploadedAssets"`
}

// LocalDraft is the serialized form held by the Local Draft Cache.
type LocalDraft struct {
	Snapshot
	SavedAt time.Time `json:"savedAt"`
}

// HasContent reports whether the snapshot carries anything worth restoring.
func (s Snapshot) HasContent() bool {
	return s.Title != "" ||
		s.Slug != "" ||
		s.MetaDescription != "" ||
		s.CoverImage != "" ||
		len(s.Tags) > 0 ||
		len(s.UploadedAssets) > 0 ||
		!s.bodyEmpty()
}

// worthPushing gates the periodic push: nothing is persisted until there is a
// title, a body, or a cover image.
func (s Snapshot) worthPushing() bool {
	return s.Title != "" || s.CoverImage != "" || !s.bodyEmpty()
}

func (s Snapshot) bodyEmpty() bool {
	trimmed := strings.TrimSpace(string(s.Body))
	switch trimmed {
	case "", "null", `""`, "{}", "[]":
		return true
	}
	return false
}

// ReferencedAssets returns the uploaded URLs the final content actually uses:
// the cover image plus every uploaded URL that occurs inside the body JSON.
func (s Snapshot) ReferencedAssets() []string {
	body := string(s.Body)
	referenced := make([]string, 0, len(s.UploadedAssets))
	for _, url := range s.UploadedAssets {
		if url == "" {
			continue
		}
		if url == s.CoverImage || strings.Contains(body, url) {
			referenced = append(referenced, url)
		}
	}
	return referenced
}

// clone returns a deep enough copy to hand out without sharing slices.
func (s Snapshot) clone() Snapshot {
	copied := s
	if s.Body != nil {
		copied.Body = append(json.RawMessage(nil), s.Body...)
	}
	if s.Tags != nil {
		copied.Tags = append([]string(nil), s.Tags...)
	}
	if s.UploadedAssets != nil {
		copied.UploadedAssets = append([]string(nil), s.UploadedAssets...)
	}
	return copied
}
