package crawl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shanehull/insightpipe/internal/checkpoint"
	"github.com/shanehull/insightpipe/internal/types"
)

// CategoryCrawler crawls one category. *Crawler implements it.
type CategoryCrawler interface {
	CrawlCategory(ctx context.Context, category, startURL string, window Window) (CategoryResult, error)
}

type Orchestrator struct {
	crawler       CategoryCrawler
	categories    []types.CategorySource
	windowDays    int
	categoryDelay time.Duration
	dataDir       string
	log           logrus.FieldLogger

	sleep func(ctx context.Context, d time.Duration) error
}

type RunResult struct {
	Categories   []CategoryResult
	Failed       []string
	Total        int
	CombinedPath string
}

func NewOrchestrator(crawler CategoryCrawler, categories []types.CategorySource, windowDays int, categoryDelay time.Duration, dataDir string, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		crawler:       crawler,
		categories:    categories,
		windowDays:    windowDays,
		categoryDelay: categoryDelay,
		dataDir:       dataDir,
		log:           log,
		sleep:         sleepCtx,
	}
}

// Run crawls every category over the window ending at now, writes one file
// per category and a combined file named after the run date, and returns the
// combined file's path in the result.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) (*RunResult, error) {
	window := WindowEnding(now, o.windowDays)
	o.log.Infof("Scraping articles from %s to %s", window.Start.Format(time.DateTime), window.End.Format(time.DateTime))

	result := &RunResult{}
	all := []types.ArticleDetail{}

	for i, cat := range o.categories {
		log := o.log.WithField("category", cat.Name)
		log.Info("Starting category")

		res, err := o.crawler.CrawlCategory(ctx, cat.Name, cat.URL, window)
		if err != nil {
			if !errors.Is(err, ErrFirstPage) {
				return result, fmt.Errorf("crawl of %s aborted: %w", cat.Name, err)
			}
			log.Errorf("Category skipped: %v", err)
			result.Failed = append(result.Failed, cat.Name)
		}
		log.WithFields(logrus.Fields{"pages": res.Pages, "stop": res.Stop}).Infof("Completed category with %d articles", len(res.Articles))

		articles := res.Articles
		if articles == nil {
			articles = []types.ArticleDetail{}
		}
		path := filepath.Join(o.dataDir, fileKey(cat.Name)+"_articles.json")
		if err := checkpoint.WriteJSON(path, articles); err != nil {
			return result, fmt.Errorf("failed to save %s articles: %w", cat.Name, err)
		}
		log.WithField("path", path).Info("Saved category articles")

		result.Categories = append(result.Categories, res)
		all = append(all, articles...)

		if i < len(o.categories)-1 {
			if err := o.sleep(ctx, o.categoryDelay); err != nil {
				return result, err
			}
		}
	}

	result.Total = len(all)
	result.CombinedPath = filepath.Join(o.dataDir, "all_articles_"+now.Format("20060102")+".json")
	if err := checkpoint.WriteJSON(result.CombinedPath, all); err != nil {
		return result, fmt.Errorf("failed to save combined articles: %w", err)
	}
	o.log.WithField("path", result.CombinedPath).Infof("Scraped a total of %d articles from all categories", result.Total)

	return result, nil
}
