package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// ftsExpr must match the expression index on the articles table.
const ftsExpr = "to_tsvector('english', coalesce(title, '') || ' ' || coalesce(meta_description, ''))"

// Search runs plainto_tsquery with ts_rank over published articles and uses
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	where := fmt.Sprintf("status = 'published' AND %s @@ %s", ftsExpr, tsQuery)
	if q.FilterTag != "" {
		where += " AND tags @> to_jsonb(ARRAY[$2::text])"
		args = append(args, q.FilterTag)
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM articles WHERE %s", where)
	dataSQL := fmt.Sprintf(`
		SELECT id, title,
			ts_headline('english', coalesce(meta_description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			slug, author_name
		FROM articles
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC
		LIMIT %d OFFSET %d`,
		tsQuery, where, ftsExpr, tsQuery, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Slug, &r.AuthorName); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all published articles for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ArticleRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, meta_description, slug, author_name, tags
		FROM articles
		WHERE status = 'published'
	`)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	defer rows.Close()

	records := make([]ArticleRecord, 0)
	for rows.Next() {
		var r ArticleRecord
		var tags []byte
		if err := rows.Scan(&r.ID, &r.Title, &r.MetaDescription, &r.Slug, &r.AuthorName, &tags); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		r.Tags = decodeTags(tags)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return records, nil
}

func decodeTags(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}
