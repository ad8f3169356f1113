/*
Package types holds the records passed between pipeline stages.
*/
package types

import (
	"time"
)

// ArticleSummary is one card on a category listing page.
type ArticleSummary struct {
	Category    string
	Title       string
	URL         string
	PublishedAt time.Time
}

// ArticleDetail is the flat record extracted from an article page. It is
// written to disk once and never mutated afterwards.
type ArticleDetail struct {
	Category        string    `json:"category"`
	URL             string    `json:"url"`
	DateExtracted   time.Time `json:"date_extracted"`
	Title           string    `json:"title"`
	Author          *string   `json:"author"`
	PublicationDate *string   `json:"publication_date"`
	Content         string    `json:"content"`
	Tags            []string  `json:"tags"`
	Images          []string  `json:"images"`
}

// AuthorOr returns the author or fallback when the page had none.
func (a ArticleDetail) AuthorOr(fallback string) string {
	if a.Author == nil || *a.Author == "" {
		return fallback
	}
	return *a.Author
}

// InsightRecord is the flat field map returned by the insight model. Values
// are scalars (string, float64, bool), nil, or []any of scalars.
type InsightRecord map[string]any

// CategorySource is one named listing entry point.
type CategorySource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}
