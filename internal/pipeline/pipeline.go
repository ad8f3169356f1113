/*
Package pipeline runs the crawl, extract, flatten, normalize and publish steps
in order, handing each step's output file to the next.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shanehull/insightpipe/internal/ai"
	"github.com/shanehull/insightpipe/internal/config"
	"github.com/shanehull/insightpipe/internal/crawl"
	"github.com/shanehull/insightpipe/internal/notify"
	"github.com/shanehull/insightpipe/internal/publish"
	"github.com/shanehull/insightpipe/internal/table"
	"github.com/shanehull/insightpipe/internal/types"
)

var ErrStepFailed = errors.New("pipeline step failed")

const (
	StepCrawl     = "crawl"
	StepExtract   = "extract"
	StepFlatten   = "flatten"
	StepNormalize = "normalize"
	StepPublish   = "publish"
)

// InsightsFile is the extract step's output under the data directory.
const InsightsFile = "extracted_insights.json"

type Crawler interface {
	Run(ctx context.Context, now time.Time) (*crawl.RunResult, error)
}

type Extractor interface {
	Run(ctx context.Context, articles []types.ArticleDetail) (*ai.BatchResult, error)
}

type Exporter interface {
	Export(ctx context.Context, wide *table.Table, narrow *table.NormalizeResult) error
}

type Publisher interface {
	Publish(ctx context.Context, targets []publish.Target) []publish.Outcome
}

// Reporter receives the run report once the run ends, successful or not.
type Reporter interface {
	Report(report *notify.RunReport)
}

type Pipeline struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	crawler   Crawler
	extractor Extractor
	exporter  Exporter
	publisher Publisher
	reporters []Reporter
	now       func() time.Time
	newID     func() string
}

type Option func(*Pipeline)

func WithCrawler(c Crawler) Option { return func(p *Pipeline) { p.crawler = c } }

func WithExtractor(e Extractor) Option { return func(p *Pipeline) { p.extractor = e } }

// WithExporter adds a relational copy of the tables, written by the
// normalize step.
func WithExporter(e Exporter) Option { return func(p *Pipeline) { p.exporter = e } }

func WithPublisher(pub Publisher) Option { return func(p *Pipeline) { p.publisher = pub } }

func WithReporter(r Reporter) Option {
	return func(p *Pipeline) { p.reporters = append(p.reporters, r) }
}

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

func WithRunID(newID func() string) Option { return func(p *Pipeline) { p.newID = newID } }

func New(cfg *config.Config, log logrus.FieldLogger, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes every step in order. The first failing step stops the run and
// is returned wrapped in ErrStepFailed. Reporters always receive the report.
func (p *Pipeline) Run(ctx context.Context) error {
	report := &notify.RunReport{RunID: p.newID(), Started: p.now()}
	log := p.log.WithField("run_id", report.RunID)
	log.Info("Pipeline started")

	defer func() {
		report.Finished = p.now()
		for _, r := range p.reporters {
			r.Report(report)
		}
	}()

	var (
		articlesPath string
		insightsPath string
		widePath     string
	)

	steps := []struct {
		name string
		fn   func(ctx context.Context) (int, string, error)
	}{
		{StepCrawl, func(ctx context.Context) (int, string, error) {
			res, err := p.Crawl(ctx)
			if err != nil {
				return 0, "", err
			}
			articlesPath = res.CombinedPath
			return res.Total, crawlNote(res), nil
		}},
		{StepExtract, func(ctx context.Context) (int, string, error) {
			res, err := p.Extract(ctx, articlesPath)
			if err != nil {
				return 0, "", err
			}
			insightsPath = res.OutputPath
			return len(res.Records), extractNote(res), nil
		}},
		{StepFlatten, func(ctx context.Context) (int, string, error) {
			wide, path, err := p.Flatten(insightsPath)
			if err != nil {
				return 0, "", err
			}
			widePath = path
			return len(wide.Rows), fmt.Sprintf("%d columns", len(wide.Columns)), nil
		}},
		{StepNormalize, func(ctx context.Context) (int, string, error) {
			res, err := p.Normalize(ctx, widePath)
			if err != nil {
				return 0, "", err
			}
			note := ""
			if len(res.Missing) > 0 {
				note = fmt.Sprintf("missing columns: %v", res.Missing)
			}
			return len(res.Columns), note, nil
		}},
		{StepPublish, func(ctx context.Context) (int, string, error) {
			outcomes, err := p.Publish(ctx)
			if err != nil {
				return 0, "", err
			}
			report.Outcomes = outcomes
			return countPublished(outcomes), publishNote(outcomes), nil
		}},
	}

	for _, s := range steps {
		if err := p.runStep(ctx, log, report, s.name, s.fn); err != nil {
			return err
		}
	}

	log.WithField("duration", p.now().Sub(report.Started).Round(time.Second)).Info("Pipeline completed")
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, log logrus.FieldLogger, report *notify.RunReport, name string, fn func(context.Context) (int, string, error)) error {
	log = log.WithField("step", name)
	log.Info("Step started")

	start := p.now()
	count, note, err := fn(ctx)
	result := notify.StepResult{Name: name, Count: count, Duration: p.now().Sub(start), Note: note, Err: err}
	report.Steps = append(report.Steps, result)

	if err != nil {
		log.Errorf("Step failed: %v", err)
		return fmt.Errorf("%w: %s: %w", ErrStepFailed, name, err)
	}
	log.WithField("count", count).Info("Step completed")
	return nil
}

// Crawl runs the crawl orchestrator over the window ending now.
func (p *Pipeline) Crawl(ctx context.Context) (*crawl.RunResult, error) {
	if p.crawler == nil {
		return nil, errors.New("no crawler configured")
	}
	return p.crawler.Run(ctx, p.now())
}

// Extract runs the insight batch over the articles stored at articlesPath.
func (p *Pipeline) Extract(ctx context.Context, articlesPath string) (*ai.BatchResult, error) {
	if p.extractor == nil {
		return nil, errors.New("no extractor configured")
	}
	articles, err := ai.LoadArticles(articlesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load articles: %w", err)
	}
	p.log.WithField("path", articlesPath).Infof("Loaded %d articles", len(articles))
	return p.extractor.Run(ctx, articles)
}

// Flatten writes the wide table built from the records at insightsPath and
// returns it with the path it was written to.
func (p *Pipeline) Flatten(insightsPath string) (*table.Table, string, error) {
	records, err := ai.LoadRecords(insightsPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load insights: %w", err)
	}

	wide := table.Flatten(records)
	path := table.WidePath(p.cfg.DataDir)
	if err := table.WriteCSV(path, wide, false); err != nil {
		return nil, "", err
	}
	p.log.WithField("path", path).Infof("Wrote wide table with %d rows and %d columns", len(wide.Rows), len(wide.Columns))
	return wide, path, nil
}

// Normalize writes one narrow table per configured multi-valued column found
// in the wide table at widePath. Missing columns are logged and skipped, and
// any narrow table an earlier run left for them is removed.
func (p *Pipeline) Normalize(ctx context.Context, widePath string) (*table.NormalizeResult, error) {
	wide, err := table.ReadCSV(widePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load wide table: %w", err)
	}

	res, err := table.Normalize(wide, p.cfg.Tables.MultiValueColumns)
	if err != nil {
		return nil, err
	}
	for _, col := range res.Missing {
		p.log.WithField("column", col).Warn("Column not found in wide table, skipping")
		path := table.NarrowPath(p.cfg.DataDir, col)
		if err := os.Remove(path); err == nil {
			p.log.WithField("path", path).Info("Removed narrow table from an earlier run")
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove stale narrow table: %w", err)
		}
	}

	for _, col := range res.Columns {
		path := table.NarrowPath(p.cfg.DataDir, col)
		if err := table.WriteCSV(path, res.Tables[col], true); err != nil {
			return nil, err
		}
		p.log.WithField("path", path).Infof("Wrote %d rows for %s", len(res.Tables[col].Rows), col)
	}

	if p.exporter != nil {
		if err := p.exporter.Export(ctx, wide, res); err != nil {
			return nil, fmt.Errorf("failed to export tables: %w", err)
		}
		p.log.WithField("path", p.cfg.Store.Path).Info("Exported tables to database")
	}

	return res, nil
}

// Publish uploads the local tables. With publishing disabled it does nothing.
// Individual sheet failures are reported in the outcomes, not as an error.
func (p *Pipeline) Publish(ctx context.Context) ([]publish.Outcome, error) {
	if !p.cfg.Publish.Enabled {
		p.log.Info("Publishing disabled, skipping")
		return nil, nil
	}
	if p.publisher == nil {
		return nil, errors.New("no publisher configured")
	}

	targets := publish.Targets(p.cfg.DataDir, p.cfg.Publish.MainSheet, p.cfg.Publish.Sheets, p.cfg.Tables.MultiValueColumns)
	outcomes := p.publisher.Publish(ctx, targets)
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// InsightsPath is where the extract step writes its records.
func InsightsPath(dataDir string) string {
	return filepath.Join(dataDir, InsightsFile)
}

// ErrNoArticles means the data directory holds no crawl output yet.
var ErrNoArticles = errors.New("no crawl output found")

// LatestArticlesPath returns the most recent combined crawl file in dataDir.
// The files carry their run date as YYYYMMDD, so the last name in order is
// the newest.
func LatestArticlesPath(dataDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, "all_articles_[0-9]*.json"))
	if err != nil {
		return "", fmt.Errorf("failed to list crawl output: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoArticles, dataDir)
	}
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}

// JournalPath is where the extract step journals records while it runs.
func JournalPath(dataDir string) string {
	return filepath.Join(dataDir, "extracted_insights.jsonl")
}

func crawlNote(res *crawl.RunResult) string {
	if len(res.Failed) == 0 {
		return ""
	}
	return fmt.Sprintf("failed categories: %v", res.Failed)
}

func extractNote(res *ai.BatchResult) string {
	return fmt.Sprintf("%d new, %d resumed, %d skipped, %d failed", res.Extracted, res.Resumed, len(res.Skipped), len(res.Failed))
}

func countPublished(outcomes []publish.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == publish.StatusPublished {
			n++
		}
	}
	return n
}

func publishNote(outcomes []publish.Outcome) string {
	failed := publish.Failed(outcomes)
	if len(failed) == 0 {
		return ""
	}
	names := make([]string, len(failed))
	for i, o := range failed {
		names[i] = o.Target.Sheet
	}
	return fmt.Sprintf("failed sheets: %v", names)
}
