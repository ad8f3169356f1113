package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shanehull/insightpipe/internal/checkpoint"
	"github.com/shanehull/insightpipe/internal/types"
)

// ArticleExtractor extracts one record. *Extractor implements it.
type ArticleExtractor interface {
	Extract(ctx context.Context, article types.ArticleDetail) Result
}

type BatchRunner struct {
	extractor  ArticleExtractor
	journal    *checkpoint.Journal
	outputPath string
	log        logrus.FieldLogger
}

type BatchResult struct {
	Records    []types.InsightRecord
	Extracted  int
	Resumed    int
	Skipped    []Result
	Failed     []Result
	OutputPath string
}

func NewBatchRunner(extractor ArticleExtractor, journal *checkpoint.Journal, outputPath string, log logrus.FieldLogger) *BatchRunner {
	return &BatchRunner{
		extractor:  extractor,
		journal:    journal,
		outputPath: outputPath,
		log:        log,
	}
}

// Run extracts every article in order. Each success is journaled as soon as
// it is produced; articles already in the journal are not sent to the model
// again. When the batch completes the records are written to the output file
// and the journal is removed. On cancellation the journal is kept and the
// partial result is returned with the context error.
func (b *BatchRunner) Run(ctx context.Context, articles []types.ArticleDetail) (*BatchResult, error) {
	done, err := b.loadJournal()
	if err != nil {
		return nil, err
	}
	if len(done) > 0 {
		b.log.WithField("journal", b.journal.Path()).Infof("Resuming batch with %d journaled records", len(done))
	}

	res := &BatchResult{Records: []types.InsightRecord{}, OutputPath: b.outputPath}

	for i, article := range articles {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		log := b.log.WithField("url", article.URL)

		if rec, ok := done[article.URL]; ok {
			res.Records = append(res.Records, rec)
			res.Resumed++
			continue
		}

		log.Infof("Processing article %d/%d", i+1, len(articles))
		r := b.extractor.Extract(ctx, article)

		switch r.Status {
		case StatusOK:
			if err := b.journal.Append(article.URL, r.Record); err != nil {
				return res, fmt.Errorf("failed to journal record: %w", err)
			}
			res.Records = append(res.Records, r.Record)
			res.Extracted++
		case StatusSkipped:
			res.Skipped = append(res.Skipped, r)
		default:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed = append(res.Failed, r)
		}
	}

	if err := checkpoint.WriteJSON(b.outputPath, res.Records); err != nil {
		return res, fmt.Errorf("failed to save insights: %w", err)
	}
	if err := b.journal.Remove(); err != nil {
		b.log.Warnf("Failed to remove journal: %v", err)
	}

	b.log.WithFields(logrus.Fields{
		"extracted": res.Extracted,
		"resumed":   res.Resumed,
		"skipped":   len(res.Skipped),
		"failed":    len(res.Failed),
		"path":      b.outputPath,
	}).Info("Extraction complete")

	return res, nil
}

func (b *BatchRunner) loadJournal() (map[string]types.InsightRecord, error) {
	entries, err := b.journal.Load()
	if err != nil {
		return nil, err
	}

	done := make(map[string]types.InsightRecord, len(entries))
	for _, e := range entries {
		var rec types.InsightRecord
		if err := json.Unmarshal(e.Data, &rec); err != nil || len(rec) == 0 {
			continue
		}
		done[e.Key] = rec
	}
	return done, nil
}

// LoadArticles reads a crawl output file.
func LoadArticles(path string) ([]types.ArticleDetail, error) {
	var articles []types.ArticleDetail
	if err := checkpoint.ReadJSON(path, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}

// LoadRecords reads an extraction output file.
func LoadRecords(path string) ([]types.InsightRecord, error) {
	var records []types.InsightRecord
	if err := checkpoint.ReadJSON(path, &records); err != nil {
		return nil, err
	}
	return records, nil
}
