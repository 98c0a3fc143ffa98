package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	// LastActiveArticleID is the Resume Pointer: non-nil means this user has
	// an open, not-yet-explicitly-saved editing session on that article.
	LastActiveArticleID *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Article is the canonical server-held record for one article. Writes are
// last-write-wins; AuthorID never changes once assigned.
type Article struct {
	ID                 string
	Title              string
	Slug               string
	MetaDescription    string
	CoverImage         string
	CoverImageAlt      string
	CoverImagePosition string
	Body               json.RawMessage
	Tags               []string
	Status             string // draft | published
	AuthorID           string
	AuthorName         string
	AuthorInitials     string
	UploadedAssets     []string
	// Autosaved marks the last write as a background push rather than an
	// explicit save.
	Autosaved   bool
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Page is a structured content record for one of the site's managed pages
// (home, team, mentorship, resources, beta-reading).
type Page struct {
	Key       string
	Content   json.RawMessage
	UpdatedBy string
	UpdatedAt time.Time
}
