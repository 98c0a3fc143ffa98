// Package search indexes published articles and answers reader queries,
// preferring Meilisearch and falling back to Postgres full-text search.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	Slug       string `json:"slug"`
	AuthorName string `json:"authorName"`
}

// Query describes a search request over published articles.
type Query struct {
	Text      string
	FilterTag string
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ArticleRecord is the data we index for a published article.
type ArticleRecord struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	MetaDescription string   `json:"metaDescription"`
	Slug            string   `json:"slug"`
	AuthorName      string   `json:"authorName"`
	Tags            []string `json:"tags"`
}
