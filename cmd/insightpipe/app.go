package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/shanehull/insightpipe/internal/ai"
	"github.com/shanehull/insightpipe/internal/checkpoint"
	"github.com/shanehull/insightpipe/internal/config"
	"github.com/shanehull/insightpipe/internal/crawl"
	"github.com/shanehull/insightpipe/internal/fetch"
	"github.com/shanehull/insightpipe/internal/logging"
	"github.com/shanehull/insightpipe/internal/pipeline"
	"github.com/shanehull/insightpipe/internal/publish"
	"github.com/shanehull/insightpipe/internal/store"
)

// app holds the loaded settings and builds each step's dependencies on
// demand, so a single step only needs the credentials it uses.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	closers []io.Closer
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, closers: []io.Closer{closer}}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warnf("Failed to close resource: %v", err)
		}
	}
}

func (a *app) crawler() *crawl.Orchestrator {
	client := fetch.New(a.cfg.Fetch, fetch.WithLogger(a.log))
	c := crawl.New(client, a.cfg.Crawl, a.cfg.DataDir, a.log)
	return crawl.NewOrchestrator(c, a.cfg.Crawl.Categories, a.cfg.Crawl.WindowDays, a.cfg.Crawl.CategoryDelay, a.cfg.DataDir, a.log)
}

func (a *app) extractor(ctx context.Context) (*ai.BatchRunner, error) {
	if err := a.cfg.ValidateInsights(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	gen, err := ai.NewGeminiGenerator(ctx, a.cfg.Insights.APIKey, a.cfg.Insights.Model)
	if err != nil {
		return nil, err
	}

	journal := checkpoint.NewJournal(pipeline.JournalPath(a.cfg.DataDir), a.log)
	return ai.NewBatchRunner(
		ai.NewExtractor(gen, a.cfg.Insights, a.log),
		journal,
		pipeline.InsightsPath(a.cfg.DataDir),
		a.log,
	), nil
}

// publisher returns nil when publishing is disabled.
func (a *app) publisher(ctx context.Context) (*publish.Publisher, error) {
	if !a.cfg.Publish.Enabled {
		return nil, nil
	}
	if err := a.cfg.ValidatePublish(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	w, err := publish.NewSheetsWriter(ctx, a.cfg.Publish.CredentialsFile, a.cfg.Publish.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	return publish.NewPublisher(w, a.log), nil
}

// exporter returns nil when no database path is configured.
func (a *app) exporter() (*store.SQLiteStore, error) {
	if a.cfg.Store.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(a.cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s)
	return s, nil
}
