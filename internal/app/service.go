// Package app composes the Inkwell API: authentication, the article editor
// sessions, public article reads, site pages, and the admin surface.
package app

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/authpw"
	"inkwell/api/internal/clock"
	"inkwell/api/internal/config"
	"inkwell/api/internal/editor"
	"inkwell/api/internal/email"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/revisions"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Initials     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	editor.DocumentStore

	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	GetPublishedArticleBySlug(ctx context.Context, slug string) (store.Article, error)
	ListArticlesByAuthor(ctx context.Context, authorID string) ([]store.Article, error)
	ListPublishedArticles(ctx context.Context) ([]store.Article, error)
	ListAllArticles(ctx context.Context) ([]store.Article, error)

	GetPage(ctx context.Context, key string) (store.Page, error)
	UpsertPage(ctx context.Context, page store.Page) error
	ListPages(ctx context.Context) ([]store.Page, error)

	Ping(ctx context.Context) error
}

// editorEntry pins an open editor to the user who opened it, so one user's
// session id cannot drive another user's editor.
type editorEntry struct {
	ed     *editor.Editor
	userID string
	cancel context.CancelFunc
}

type Service struct {
	cfg      config.Config
	store    dataStore
	cache    editor.DraftCache
	clk      clock.Clock
	detector *editor.ConflictDetector

	assets editor.AssetGateway // nil when asset storage is not configured
	authPW *authpw.Service
	email  *email.Service
	search *search.Service
	revs   *revisions.Service

	editorsMu sync.Mutex
	editors   map[string]*editorEntry
}

func New(cfg config.Config, documents dataStore, cache editor.DraftCache, clk clock.Clock) *Service {
	return &Service{
		cfg:      cfg,
		store:    documents,
		cache:    cache,
		clk:      clk,
		detector: editor.NewConflictDetector(documents),
		editors:  make(map[string]*editorEntry),
	}
}

func (s *Service) SetAssets(gateway editor.AssetGateway) { s.assets = gateway }
func (s *Service) SetAuthPassword(svc *authpw.Service)   { s.authPW = svc }
func (s *Service) SetEmail(svc *email.Service)           { s.email = svc }
func (s *Service) SetSearch(svc *search.Service)         { s.search = svc }
func (s *Service) SetRevisions(svc *revisions.Service)   { s.revs = svc }
func (s *Service) AuthPasswordService() *authpw.Service  { return s.authPW }
func (s *Service) Ping(ctx context.Context) error        { return s.store.Ping(ctx) }
func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// CreateSession issues access and refresh tokens for a signed-in user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.store.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	initials := auth.Initials(user.DisplayName)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Name:     user.DisplayName,
		Initials: initials,
		Role:     user.Role,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.store.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Initials:     initials,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Initials:  auth.Initials(user.DisplayName),
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.store.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	// A signed-out editor cannot keep pushing.
	s.closeEditorsForUser(session.UserID)
	return nil
}

// SendVerificationEmail delivers the signup verification mail when SMTP is
// configured; otherwise the caller falls back to the dev token response.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/verify-email?token=" + token
	go func() {
		if err := s.email.SendVerificationEmail(to, userName, url); err != nil {
			log.Printf("app: send verification email to %s: %v", to, err)
		}
	}()
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/reset-password?token=" + token
	go func() {
		if err := s.email.SendPasswordResetEmail(to, userName, url); err != nil {
			log.Printf("app: send password reset email to %s: %v", to, err)
		}
	}()
}

// ListPublishedArticles is the public article feed.
func (s *Service) ListPublishedArticles(ctx context.Context) ([]map[string]any, error) {
	articles, err := s.store.ListPublishedArticles(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		items = append(items, articleSummary(a))
	}
	return items, nil
}

// GetPublishedArticle serves a single published article by slug.
func (s *Service) GetPublishedArticle(ctx context.Context, slug string) (map[string]any, error) {
	article, err := s.store.GetPublishedArticleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return articleDetail(article), nil
}

// ListMyArticles lists the caller's own articles, drafts included.
func (s *Service) ListMyArticles(ctx context.Context, session Session) ([]map[string]any, error) {
	articles, err := s.store.ListArticlesByAuthor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		items = append(items, articleSummary(a))
	}
	return items, nil
}

// ListAllArticles is the admin view across every author.
func (s *Service) ListAllArticles(ctx context.Context, session Session) ([]map[string]any, error) {
	if !s.Can(session.Role, rbac.ActionManage) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	articles, err := s.store.ListAllArticles(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		item := articleSummary(a)
		// Surface active editing sessions so the admin list can warn before
		// an edit is opened.
		holders, err := s.detector.Check(ctx, a.ID, session.UserID)
		if err != nil {
			return nil, err
		}
		item["activeEditors"] = holders
		items = append(items, item)
	}
	return items, nil
}

// CheckConflicts reports who currently holds an open editing session on the
// article. The answer is advisory: callers warn, they do not block. Only
// overseers may ask; active session holders are not visible to regular
// authors.
func (s *Service) CheckConflicts(ctx context.Context, session Session, articleID string) ([]editor.Holder, error) {
	if !s.Can(session.Role, rbac.ActionOversee) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	holders, err := s.detector.Check(ctx, articleID, session.UserID)
	if err != nil {
		return nil, err
	}
	return holders, nil
}

// GetPage returns one of the site's managed pages.
func (s *Service) GetPage(ctx context.Context, key string) (store.Page, error) {
	return s.store.GetPage(ctx, key)
}

func (s *Service) ListPages(ctx context.Context, session Session) ([]store.Page, error) {
	if !s.Can(session.Role, rbac.ActionManage) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.store.ListPages(ctx)
}

// UpdatePage replaces a managed page's content. Admin only.
func (s *Service) UpdatePage(ctx context.Context, session Session, page store.Page) (store.Page, error) {
	if !s.Can(session.Role, rbac.ActionManage) {
		return store.Page{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	page.UpdatedBy = session.UserName
	if err := s.store.UpsertPage(ctx, page); err != nil {
		return store.Page{}, err
	}
	return s.store.GetPage(ctx, page.Key)
}

func articleSummary(a store.Article) map[string]any {
	return map[string]any{
		"id":              a.ID,
		"title":           a.Title,
		"slug":            a.Slug,
		"metaDescription": a.MetaDescription,
		"coverImage":      a.CoverImage,
		"tags":            nonNilStrings(a.Tags),
		"status":          a.Status,
		"authorId":        a.AuthorID,
		"authorName":      a.AuthorName,
		"authorInitials":  a.AuthorInitials,
		"autosaved":       a.Autosaved,
		"updatedAt":       a.UpdatedAt,
		"publishedAt":     a.PublishedAt,
	}
}

func articleDetail(a store.Article) map[string]any {
	item := articleSummary(a)
	item["body"] = a.Body
	item["coverImageAlt"] = a.CoverImageAlt
	item["coverImagePosition"] = a.CoverImagePosition
	return item
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
