package crawl

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/shanehull/insightpipe/internal/types"
)

const noTitle = "No Title Found"

// ExtractDetail fetches one article page and parses it. A fetch failure is
// returned as an error and the caller decides whether to skip the article.
func (c *Crawler) ExtractDetail(ctx context.Context, category, articleURL string) (*types.ArticleDetail, error) {
	doc, err := c.fetcher.FetchDocument(ctx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article: %w", err)
	}

	detail := ParseDetail(doc, c.sel, c.policy)
	detail.Category = category
	detail.URL = articleURL
	detail.DateExtracted = c.now()

	return detail, nil
}

// ParseDetail reads the article fields out of doc. Category, URL and
// extraction time are left for the caller.
func ParseDetail(doc *goquery.Document, sel Selectors, policy FieldPolicy) *types.ArticleDetail {
	detail := &types.ArticleDetail{
		Title:  noTitle,
		Tags:   []string{},
		Images: []string{},
	}

	if t := doc.Find(sel.Title).First(); t.Length() > 0 {
		if title := selectionText(t); title != "" {
			detail.Title = title
		}
	}

	if a := doc.Find(sel.Author).First(); a.Length() > 0 {
		if author := selectionText(a); author != "" {
			detail.Author = &author
		}
	}

	if d, ok := doc.Find(sel.Date).First().Attr("datetime"); ok {
		d = strings.TrimSpace(d)
		detail.PublicationDate = &d
	}

	var paragraphs []string
	doc.Find(sel.Paragraphs).Each(func(_ int, p *goquery.Selection) {
		if text := selectionText(p); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	detail.Content = strings.Join(paragraphs, "\n")

	if policy.Tags {
		doc.Find(sel.Tags).Each(func(_ int, tag *goquery.Selection) {
			if text := selectionText(tag); text != "" {
				detail.Tags = append(detail.Tags, text)
			}
		})
	}

	if policy.Images {
		doc.Find(sel.Images).Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && strings.TrimSpace(src) != "" {
				detail.Images = append(detail.Images, strings.TrimSpace(src))
			}
		})
	}

	return detail
}

// selectionText concatenates the text of every node in s, collapsing runs of
// whitespace.
func selectionText(s *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range s.Nodes {
		sb.WriteString(extractText(n))
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func extractText(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return ""
		}
	}

	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(extractText(c))
	}
	return sb.String()
}
