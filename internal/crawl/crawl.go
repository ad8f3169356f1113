/*
Package crawl walks category listing pages, stops at the edge of a date
window, and extracts the details of every article inside the window.
*/
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shanehull/insightpipe/internal/checkpoint"
	"github.com/shanehull/insightpipe/internal/config"
	"github.com/shanehull/insightpipe/internal/types"
)

// ErrFirstPage is returned when the first listing page of a category cannot
// be fetched. Nothing was collected for the category.
var ErrFirstPage = errors.New("first listing page unavailable")

// Fetcher returns a parsed HTML document for a URL.
type Fetcher interface {
	FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// StopReason is the terminal state of a category crawl.
type StopReason string

const (
	StopTooOld      StopReason = "too_old"
	StopExhausted   StopReason = "exhausted"
	StopFetchFailed StopReason = "fetch_failed"
	StopNoCards     StopReason = "no_cards"
	StopCancelled   StopReason = "cancelled"
)

// Window is the inclusive range of publication times to collect.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowEnding returns the window of days days ending at end.
func WindowEnding(end time.Time, days int) Window {
	return Window{Start: end.AddDate(0, 0, -days), End: end}
}

type CategoryResult struct {
	Category string
	Articles []types.ArticleDetail
	Pages    int
	Stop     StopReason
}

type Crawler struct {
	fetcher Fetcher
	cfg     config.CrawlConfig
	sel     Selectors
	policy  FieldPolicy
	dataDir string
	log     logrus.FieldLogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Crawler)

func WithSelectors(s Selectors) Option {
	return func(c *Crawler) { c.sel = s }
}

func WithClock(now func() time.Time) Option {
	return func(c *Crawler) { c.now = now }
}

func New(fetcher Fetcher, cfg config.CrawlConfig, dataDir string, log logrus.FieldLogger, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher: fetcher,
		cfg:     cfg,
		sel:     TechCrunchSelectors(),
		policy:  FieldPolicy{Tags: cfg.CollectTags, Images: cfg.CollectImages},
		dataDir: dataDir,
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CrawlCategory pages through a category starting at startURL. It stops at
// the first card older than window.Start, when there is no next page, or when
// a listing page cannot be fetched. Listings are assumed to be newest first.
//
// Only a failure on the very first page is returned as an error; every other
// terminal state returns the articles collected so far.
func (c *Crawler) CrawlCategory(ctx context.Context, category, startURL string, window Window) (CategoryResult, error) {
	res := CategoryResult{Category: category, Articles: []types.ArticleDetail{}}
	seenArticles := make(map[string]bool)
	seenPages := make(map[string]bool)

	pageURL := startURL
	for {
		res.Pages++
		log := c.log.WithFields(logrus.Fields{"category": category, "page": res.Pages})
		log.Info("Scraping listing page")
		seenPages[pageURL] = true

		doc, err := c.fetcher.FetchDocument(ctx, pageURL)
		if err != nil {
			res.Stop = StopFetchFailed
			if res.Pages == 1 {
				return res, fmt.Errorf("%w: %s: %w", ErrFirstPage, category, err)
			}
			log.WithField("url", pageURL).Warnf("Failed to fetch listing page, ending category: %v", err)
			return res, nil
		}

		cards := doc.Find(c.sel.Card)
		if cards.Length() == 0 {
			log.Warn("No articles found on listing page")
			res.Stop = StopNoCards
			return res, nil
		}

		summaries, tooOld := c.scanCards(doc, cards, category, window, seenArticles, log)

		before := len(res.Articles)
		if err := c.fetchDetails(ctx, category, summaries, func(d types.ArticleDetail) {
			res.Articles = append(res.Articles, d)
			if c.cfg.SnapshotEvery > 0 && len(res.Articles)%c.cfg.SnapshotEvery == 0 {
				c.snapshot(category, res.Articles, log)
			}
		}); err != nil {
			res.Stop = StopCancelled
			return res, err
		}
		log.Infof("Extracted %d articles from page", len(res.Articles)-before)

		if tooOld {
			log.WithField("window_start", window.Start.Format(time.DateTime)).Info("Reached articles older than window start")
			res.Stop = StopTooOld
			return res, nil
		}

		next, ok := nextPage(doc, c.sel.NextPage)
		if !ok || seenPages[next] {
			res.Stop = StopExhausted
			return res, nil
		}
		pageURL = next

		if err := c.sleep(ctx, c.cfg.PageDelay); err != nil {
			res.Stop = StopCancelled
			return res, err
		}
	}
}

// scanCards reads the cards of one listing page in document order and returns
// those inside the window. The second result reports that a card older than
// the window was reached, which ends the category.
func (c *Crawler) scanCards(doc *goquery.Document, cards *goquery.Selection, category string, window Window, seen map[string]bool, log logrus.FieldLogger) ([]types.ArticleSummary, bool) {
	var (
		out    []types.ArticleSummary
		tooOld bool
	)

	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		raw, ok := card.Find(c.sel.CardTime).First().Attr("datetime")
		if !ok {
			log.Debug("Skipping card without a date")
			return true
		}
		published, err := parseCardTime(raw, window.Start.Location())
		if err != nil {
			log.Warnf("Skipping card with invalid date %q", raw)
			return true
		}

		if published.Before(window.Start) {
			tooOld = true
			return false
		}
		if published.After(window.End) {
			return true
		}

		link := card.Find(c.sel.CardTitle).First()
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			log.Debug("Skipping card without a link")
			return true
		}
		abs := resolve(doc.Url, href)
		if seen[abs] {
			return true
		}
		seen[abs] = true

		out = append(out, types.ArticleSummary{
			Category:    category,
			Title:       selectionText(link),
			URL:         abs,
			PublishedAt: published,
		})
		return true
	})

	return out, tooOld
}

// fetchDetails extracts every summary and passes the results to add in
// listing order. Articles that fail are logged and skipped.
func (c *Crawler) fetchDetails(ctx context.Context, category string, summaries []types.ArticleSummary, add func(types.ArticleDetail)) error {
	if c.cfg.DetailWorkers > 1 {
		return c.fetchDetailsParallel(ctx, category, summaries, add)
	}

	for i, s := range summaries {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.DetailDelay); err != nil {
				return err
			}
		}

		log := c.log.WithFields(logrus.Fields{"category": category, "url": s.URL})
		log.Info("Fetching article")

		detail, err := c.ExtractDetail(ctx, category, s.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("Skipping article: %v", err)
			continue
		}
		add(*detail)
	}
	return nil
}

func (c *Crawler) fetchDetailsParallel(ctx context.Context, category string, summaries []types.ArticleSummary, add func(types.ArticleDetail)) error {
	results := make([]*types.ArticleDetail, len(summaries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.DetailWorkers)

	for i, s := range summaries {
		g.Go(func() error {
			log := c.log.WithFields(logrus.Fields{"category": category, "url": s.URL})
			log.Info("Fetching article")

			detail, err := c.ExtractDetail(gctx, category, s.URL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warnf("Skipping article: %v", err)
				return nil
			}
			results[i] = detail
			return c.sleep(gctx, c.cfg.DetailDelay)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, d := range results {
		if d != nil {
			add(*d)
		}
	}
	return nil
}

func (c *Crawler) snapshot(category string, articles []types.ArticleDetail, log logrus.FieldLogger) {
	path := filepath.Join(c.dataDir, "intermediate_"+fileKey(category)+".json")
	if err := checkpoint.WriteJSON(path, articles); err != nil {
		log.Warnf("Failed to save intermediate results: %v", err)
		return
	}
	log.WithField("path", path).Infof("Saved %d intermediate results", len(articles))
}

// parseCardTime accepts RFC 3339 or a naive ISO timestamp. The wall clock
// reading is kept and placed in loc; any offset in the input is discarded.
func parseCardTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		var naiveErr error
		t, naiveErr = time.Parse("2006-01-02T15:04:05", raw)
		if naiveErr != nil {
			return time.Time{}, err
		}
	}

	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
}

func nextPage(doc *goquery.Document, selector string) (string, bool) {
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	return resolve(doc.Url, href), true
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// fileKey turns a category name into a file name component.
func fileKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
