/*
Package ai turns crawled articles into flat insight records using the Gemini
API, one article at a time.
*/
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/shanehull/insightpipe/internal/config"
	"github.com/shanehull/insightpipe/internal/types"
)

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrNotObject     = errors.New("model response is not a JSON object")
)

// Generator returns a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	return resp.Text(), nil
}

type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result is the outcome of one extraction. Record is set only when Status is
// StatusOK; Err explains a skip or a failure.
type Result struct {
	URL    string
	Status Status
	Record types.InsightRecord
	Err    error
}

type Extractor struct {
	gen   Generator
	cfg   config.InsightsConfig
	log   logrus.FieldLogger
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExtractor(gen Generator, cfg config.InsightsConfig, log logrus.FieldLogger) *Extractor {
	return &Extractor{gen: gen, cfg: cfg, log: log, sleep: sleepCtx}
}

// Extract asks the model for the insight record of one article. It never
// returns an error directly: every problem is reported in the Result so a
// batch can keep going.
func (e *Extractor) Extract(ctx context.Context, article types.ArticleDetail) Result {
	res := Result{URL: article.URL}
	log := e.log.WithField("url", article.URL)

	if strings.TrimSpace(article.Content) == "" {
		log.Warn("Skipping empty article")
		res.Status = StatusSkipped
		res.Err = errors.New("article has no content")
		return res
	}

	prompt, err := buildPrompt(article, e.cfg.MaxContentChars)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	if err := e.sleep(ctx, e.cfg.CallDelay); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		log.Warnf("Insight extraction failed: %v", err)
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	record, err := ParseRecord(text)
	if err != nil {
		log.Warnf("Insight response could not be parsed: %v", err)
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	res.Status = StatusOK
	res.Record = record
	return res
}

// ParseRecord decodes a model response into a record, unwrapping a markdown
// code fence first.
func ParseRecord(text string) (types.InsightRecord, error) {
	cleaned := cleanJSONResponse(text)
	if cleaned == "" {
		return nil, ErrEmptyResponse
	}

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON response: %w", err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	if len(obj) == 0 {
		return nil, ErrEmptyResponse
	}

	return types.InsightRecord(obj), nil
}

func cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	switch {
	case strings.HasPrefix(cleaned, "```json"):
		cleaned = strings.TrimPrefix(cleaned, "```json")
	case strings.HasPrefix(cleaned, "```"):
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")

	return strings.TrimSpace(cleaned)
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
