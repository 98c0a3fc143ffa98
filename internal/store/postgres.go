package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.getUser(ctx, `WHERE id = $1`, userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `WHERE LOWER(email) = LOWER($1)`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (User, error) {
	query := `
		SELECT id, display_name, email, password_hash, role, is_email_verified, last_active_article_id
		FROM users ` + where
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsEmailVerified,
		&user.LastActiveArticleID,
	)
	if err != nil {
		return User{}, err
	}
	if user.Role == "" {
		user.Role = "reader"
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE password_resets SET used_at=NOW() WHERE token=$1
	`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---- refresh sessions and token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role, u.is_email_verified
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	if user.Role == "" {
		user.Role = "reader"
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// ---- resume pointer ----

func (s *PostgresStore) SetResumePointer(ctx context.Context, userID, articleID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_active_article_id=$2, updated_at=NOW() WHERE id=$1
	`, userID, articleID)
	if err != nil {
		return fmt.Errorf("set resume pointer: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearResumePointer(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_active_article_id=NULL, updated_at=NOW() WHERE id=$1
	`, userID)
	if err != nil {
		return fmt.Errorf("clear resume pointer: %w", err)
	}
	return nil
}

// ListUsersByResumePointer returns every user whose Resume Pointer names the
// given article. Used by the conflict detector before an administrator enters
// a foreign edit session.
func (s *PostgresStore) ListUsersByResumePointer(ctx context.Context, articleID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, email FROM users
		WHERE last_active_article_id = $1
		ORDER BY display_name
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list resume pointer holders: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Email); err != nil {
			return nil, fmt.Errorf("scan resume pointer holder: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ---- articles ----

const articleColumns = `
	id, title, slug, meta_description,
	cover_image, cover_image_alt, cover_image_position,
	body, tags, status,
	author_id, author_name, author_initials,
	uploaded_assets, autosaved, updated_at, published_at
`

func (s *PostgresStore) GetArticle(ctx context.Context, articleID string) (Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, articleID)
	return scanArticle(row)
}

func (s *PostgresStore) GetPublishedArticleBySlug(ctx context.Context, slug string) (Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+articleColumns+` FROM articles WHERE slug=$1 AND status='published'
	`, slug)
	return scanArticle(row)
}

// UpsertArticle is the single write path to the canonical document. Semantics
// are last-write-wins, with two carve-outs enforced here: a non-empty
// author_id is never overwritten, and published_at is set once and kept.
func (s *PostgresStore) UpsertArticle(ctx context.Context, article Article) error {
	tags, err := json.Marshal(nonNilStrings(article.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	assets, err := json.Marshal(nonNilStrings(article.UploadedAssets))
	if err != nil {
		return fmt.Errorf("marshal uploaded assets: %w", err)
	}
	body := article.Body
	if len(body) == 0 {
		body = json.RawMessage(`null`)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO articles (
			id, title, slug, meta_description,
			cover_image, cover_image_alt, cover_image_position,
			body, tags, status,
			author_id, author_name, author_initials,
			uploaded_assets, autosaved, updated_at, published_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			slug=EXCLUDED.slug,
			meta_description=EXCLUDED.meta_description,
			cover_image=EXCLUDED.cover_image,
			cover_image_alt=EXCLUDED.cover_image_alt,
			cover_image_position=EXCLUDED.cover_image_position,
			body=EXCLUDED.body,
			tags=EXCLUDED.tags,
			status=EXCLUDED.status,
			author_id=CASE WHEN articles.author_id='' THEN EXCLUDED.author_id ELSE articles.author_id END,
			author_name=EXCLUDED.author_name,
			author_initials=EXCLUDED.author_initials,
			uploaded_assets=EXCLUDED.uploaded_assets,
			autosaved=EXCLUDED.autosaved,
			updated_at=EXCLUDED.updated_at,
			published_at=COALESCE(articles.published_at, EXCLUDED.published_at)
	`,
		article.ID, article.Title, article.Slug, article.MetaDescription,
		article.CoverImage, article.CoverImageAlt, article.CoverImagePosition,
		[]byte(body), string(tags), article.Status,
		article.AuthorID, article.AuthorName, article.AuthorInitials,
		string(assets), article.Autosaved, article.UpdatedAt, article.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListArticlesByAuthor(ctx context.Context, authorID string) ([]Article, error) {
	return s.listArticles(ctx, `WHERE author_id=$1 ORDER BY updated_at DESC`, authorID)
}

func (s *PostgresStore) ListPublishedArticles(ctx context.Context) ([]Article, error) {
	return s.listArticles(ctx, `WHERE status='published' ORDER BY published_at DESC`)
}

func (s *PostgresStore) ListAllArticles(ctx context.Context) ([]Article, error) {
	return s.listArticles(ctx, `ORDER BY updated_at DESC`)
}

func (s *PostgresStore) listArticles(ctx context.Context, tail string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (Article, error) {
	var article Article
	var body []byte
	var tagsRaw, assetsRaw string
	err := row.Scan(
		&article.ID, &article.Title, &article.Slug, &article.MetaDescription,
		&article.CoverImage, &article.CoverImageAlt, &article.CoverImagePosition,
		&body, &tagsRaw, &article.Status,
		&article.AuthorID, &article.AuthorName, &article.AuthorInitials,
		&assetsRaw, &article.Autosaved, &article.UpdatedAt, &article.PublishedAt,
	)
	if err != nil {
		return Article{}, err
	}
	article.Body = json.RawMessage(body)
	_ = json.Unmarshal([]byte(tagsRaw), &article.Tags)
	_ = json.Unmarshal([]byte(assetsRaw), &article.UploadedAssets)
	return article, nil
}

// ---- site pages ----

var allowedPageKeys = map[string]struct{}{
	"home":         {},
	"team":         {},
	"mentorship":   {},
	"resources":    {},
	"beta-reading": {},
}

var ErrUnknownPage = errors.New("unknown page key")

func (s *PostgresStore) GetPage(ctx context.Context, key string) (Page, error) {
	if _, ok := allowedPageKeys[key]; !ok {
		return Page{}, ErrUnknownPage
	}
	var page Page
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT key, content, updated_by, updated_at FROM pages WHERE key=$1
	`, key).Scan(&page.Key, &content, &page.UpdatedBy, &page.UpdatedAt)
	if err != nil {
		return Page{}, err
	}
	page.Content = json.RawMessage(content)
	return page, nil
}

func (s *PostgresStore) UpsertPage(ctx context.Context, page Page) error {
	if _, ok := allowedPageKeys[page.Key]; !ok {
		return ErrUnknownPage
	}
	content := page.Content
	if len(content) == 0 {
		content = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (key, content, updated_by, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET content=EXCLUDED.content, updated_by=EXCLUDED.updated_by, updated_at=NOW()
	`, page.Key, []byte(content), page.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, content, updated_by, updated_at FROM pages ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var page Page
		var content []byte
		if err := rows.Scan(&page.Key, &content, &page.UpdatedBy, &page.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page.Content = json.RawMessage(content)
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
