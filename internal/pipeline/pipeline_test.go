package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanehull/insightpipe/internal/ai"
	"github.com/shanehull/insightpipe/internal/checkpoint"
	"github.com/shanehull/insightpipe/internal/config"
	"github.com/shanehull/insightpipe/internal/crawl"
	"github.com/shanehull/insightpipe/internal/notify"
	"github.com/shanehull/insightpipe/internal/publish"
	"github.com/shanehull/insightpipe/internal/table"
	"github.com/shanehull/insightpipe/internal/types"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeCrawler struct {
	dir      string
	articles []types.ArticleDetail
	err      error
	calledAt time.Time
}

func (f *fakeCrawler) Run(_ context.Context, now time.Time) (*crawl.RunResult, error) {
	f.calledAt = now
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, "all_articles_"+now.Format("20060102")+".json")
	if err := checkpoint.WriteJSON(path, f.articles); err != nil {
		return nil, err
	}
	return &crawl.RunResult{Total: len(f.articles), CombinedPath: path, Failed: []string{"Apps"}}, nil
}

type fakeExtractor struct {
	dir   string
	err   error
	seen  []string
	calls int
}

func (f *fakeExtractor) Run(_ context.Context, articles []types.ArticleDetail) (*ai.BatchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	res := &ai.BatchResult{OutputPath: InsightsPath(f.dir)}
	for _, a := range articles {
		f.seen = append(f.seen, a.URL)
		res.Records = append(res.Records, types.InsightRecord{
			"article_id":      ai.ArticleID(a.URL),
			"title":           a.Title,
			"keywords":        []any{"AI", "Robotics"},
			"investors":       "Sequoia, a16z",
			"sentiment_score": 0.5,
		})
		res.Extracted++
	}
	if err := checkpoint.WriteJSON(res.OutputPath, res.Records); err != nil {
		return nil, err
	}
	return res, nil
}

type fakeExporter struct {
	wide   *table.Table
	narrow *table.NormalizeResult
}

func (f *fakeExporter) Export(_ context.Context, wide *table.Table, narrow *table.NormalizeResult) error {
	f.wide, f.narrow = wide, narrow
	return nil
}

type fakePublisher struct {
	targets []publish.Target
}

func (f *fakePublisher) Publish(_ context.Context, targets []publish.Target) []publish.Outcome {
	f.targets = targets
	out := make([]publish.Outcome, len(targets))
	for i, t := range targets {
		status := publish.StatusPublished
		if _, err := os.Stat(t.Path); err != nil {
			status = publish.StatusMissing
		}
		out[i] = publish.Outcome{Target: t, Status: status}
	}
	return out
}

type captureReporter struct {
	reports []*notify.RunReport
}

func (c *captureReporter) Report(r *notify.RunReport) {
	c.reports = append(c.reports, r)
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Tables.MultiValueColumns = []string{"keywords", "investors", "people"}
	cfg.Publish.Sheets = map[string]string{"keywords": "Keywords", "investors": "Investors", "people": "People"}
	return cfg
}

func testArticles() []types.ArticleDetail {
	return []types.ArticleDetail{
		{URL: "https://techcrunch.com/2024/03/14/robots-raise/", Title: "Robots raise", Content: "x"},
		{URL: "https://techcrunch.com/2024/03/13/ai-lab/", Title: "AI lab", Content: "y"},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, opts ...Option) *Pipeline {
	t.Helper()
	log, _ := test.NewNullLogger()
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithRunID(func() string { return "run-1" }),
	}
	return New(cfg, log, append(base, opts...)...)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	crawler := &fakeCrawler{dir: dir, articles: testArticles()}
	extractor := &fakeExtractor{dir: dir}
	exporter := &fakeExporter{}
	publisher := &fakePublisher{}
	reporter := &captureReporter{}

	p := newTestPipeline(t, cfg,
		WithCrawler(crawler),
		WithExtractor(extractor),
		WithExporter(exporter),
		WithPublisher(publisher),
		WithReporter(reporter),
	)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, testNow, crawler.calledAt)
	assert.Equal(t, []string{testArticles()[0].URL, testArticles()[1].URL}, extractor.seen)

	wide, err := table.ReadCSV(table.WidePath(dir))
	require.NoError(t, err)
	assert.Len(t, wide.Rows, 2)
	assert.Equal(t, "robots-raise", wide.Rows[0][wide.Index("article_id")])

	kw, err := table.ReadCSV(table.NarrowPath(dir, "keywords"))
	require.NoError(t, err)
	assert.Len(t, kw.Rows, 4)
	inv, err := table.ReadCSV(table.NarrowPath(dir, "investors"))
	require.NoError(t, err)
	assert.Equal(t, []string{"robots-raise", "Sequoia"}, inv.Rows[0])

	require.NotNil(t, exporter.narrow)
	assert.Equal(t, []string{"keywords", "investors"}, exporter.narrow.Columns)

	require.Len(t, publisher.targets, 4)
	assert.Equal(t, "Main", publisher.targets[0].Sheet)

	require.Len(t, reporter.reports, 1)
	report := reporter.reports[0]
	assert.Equal(t, "run-1", report.RunID)
	assert.False(t, report.Failed())
	require.Len(t, report.Steps, 5)
	names := make([]string, len(report.Steps))
	for i, s := range report.Steps {
		names[i] = s.Name
	}
	assert.Equal(t, []string{StepCrawl, StepExtract, StepFlatten, StepNormalize, StepPublish}, names)
	assert.Equal(t, 2, report.Steps[0].Count)
	assert.Equal(t, "failed categories: [Apps]", report.Steps[0].Note)
	assert.Equal(t, "missing columns: [people]", report.Steps[3].Note)
	assert.Equal(t, 3, report.Steps[4].Count, "people sheet is missing locally")
	assert.Len(t, report.Outcomes, 4)
}

func TestRunStopsAtFirstFailedStep(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	extractor := &fakeExtractor{dir: dir}
	publisher := &fakePublisher{}
	reporter := &captureReporter{}

	p := newTestPipeline(t, cfg,
		WithCrawler(&fakeCrawler{err: errors.New("disk full")}),
		WithExtractor(extractor),
		WithPublisher(publisher),
		WithReporter(reporter),
	)
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStepFailed)
	assert.Contains(t, err.Error(), "crawl")
	assert.Zero(t, extractor.calls)
	assert.Nil(t, publisher.targets)

	require.Len(t, reporter.reports, 1)
	assert.True(t, reporter.reports[0].Failed())
	assert.Len(t, reporter.reports[0].Steps, 1)
}

func TestRunFailsOnMissingKeyColumn(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.Publish.Enabled = false

	p := newTestPipeline(t, cfg,
		WithCrawler(&fakeCrawler{dir: dir, articles: testArticles()}),
		WithExtractor(extractorFunc(func(dir string) *ai.BatchResult {
			recs := []types.InsightRecord{{"title": "no id", "keywords": "a, b"}}
			require.NoError(t, checkpoint.WriteJSON(InsightsPath(dir), recs))
			return &ai.BatchResult{Records: recs, OutputPath: InsightsPath(dir)}
		}, dir)),
	)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrMissingKeyColumn)
	assert.ErrorIs(t, err, ErrStepFailed)
}

type funcExtractor struct {
	fn  func(string) *ai.BatchResult
	dir string
}

func extractorFunc(fn func(string) *ai.BatchResult, dir string) *funcExtractor {
	return &funcExtractor{fn: fn, dir: dir}
}

func (f *funcExtractor) Run(context.Context, []types.ArticleDetail) (*ai.BatchResult, error) {
	return f.fn(f.dir), nil
}

func TestPublishDisabled(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Publish.Enabled = false

	publisher := &fakePublisher{}
	p := newTestPipeline(t, cfg, WithPublisher(publisher))

	outcomes, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.Nil(t, outcomes)
	assert.Nil(t, publisher.targets)
}

func TestPublishWithoutPublisher(t *testing.T) {
	p := newTestPipeline(t, testConfig(t.TempDir()))
	_, err := p.Publish(context.Background())
	assert.Error(t, err)
}

func TestFlattenEmptyInsights(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, checkpoint.WriteJSON(InsightsPath(dir), []types.InsightRecord{}))

	p := newTestPipeline(t, testConfig(dir))
	wide, path, err := p.Flatten(InsightsPath(dir))
	require.NoError(t, err)
	assert.Equal(t, table.WidePath(dir), path)
	assert.Empty(t, wide.Rows)

	res, err := p.Normalize(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, res.Columns)
}

func TestExtractMissingInput(t *testing.T) {
	p := newTestPipeline(t, testConfig(t.TempDir()), WithExtractor(&fakeExtractor{}))
	_, err := p.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestNormalizeRemovesStaleNarrowTables(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	p := newTestPipeline(t, cfg)

	first := &table.Table{
		Columns: []string{"article_id", "people", "keywords"},
		Rows:    [][]string{{"a1", "Old Person", "AI"}},
	}
	require.NoError(t, table.WriteCSV(table.WidePath(dir), first, false))
	_, err := p.Normalize(context.Background(), table.WidePath(dir))
	require.NoError(t, err)
	require.FileExists(t, table.NarrowPath(dir, "people"))

	second := &table.Table{
		Columns: []string{"article_id", "keywords"},
		Rows:    [][]string{{"b1", "Robotics"}},
	}
	require.NoError(t, table.WriteCSV(table.WidePath(dir), second, false))
	res, err := p.Normalize(context.Background(), table.WidePath(dir))
	require.NoError(t, err)
	assert.Contains(t, res.Missing, "people")
	assert.NoFileExists(t, table.NarrowPath(dir, "people"))

	log, _ := test.NewNullLogger()
	targets := []publish.Target{{Path: table.NarrowPath(dir, "people"), Sheet: "People"}}
	outcomes := publish.NewPublisher(&discardWriter{}, log).Publish(context.Background(), targets)
	require.Len(t, outcomes, 1)
	assert.Equal(t, publish.StatusMissing, outcomes[0].Status)
}

type discardWriter struct{}

func (discardWriter) Replace(context.Context, string, [][]any) error { return nil }

func TestLatestArticlesPath(t *testing.T) {
	dir := t.TempDir()

	_, err := LatestArticlesPath(dir)
	assert.ErrorIs(t, err, ErrNoArticles)

	for _, name := range []string{"all_articles_20240314.json", "all_articles_20240315.json", "ai_articles.json"} {
		require.NoError(t, checkpoint.WriteJSON(filepath.Join(dir, name), []types.ArticleDetail{}))
	}

	path, err := LatestArticlesPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "all_articles_20240315.json"), path)
}
