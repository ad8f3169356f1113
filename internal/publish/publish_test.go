package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/shanehull/insightpipe/internal/table"
)

type memoryWriter struct {
	mu     sync.Mutex
	sheets map[string][][]any
	fail   map[string]error
	calls  []string
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{sheets: map[string][][]any{}, fail: map[string]error{}}
}

func (m *memoryWriter) Replace(_ context.Context, sheet string, values [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sheet)
	if err := m.fail[sheet]; err != nil {
		return err
	}
	m.sheets[sheet] = values
	return nil
}

func writeTables(t *testing.T, dir string) {
	t.Helper()
	wide := &table.Table{
		Columns: []string{"article_id", "sentiment_score", "keywords"},
		Rows: [][]string{
			{"a1", "0.7", "Generative AI, Series A"},
			{"a2", "0", "Robotics"},
		},
	}
	require.NoError(t, table.WriteCSV(table.WidePath(dir), wide, false))

	narrow, err := table.Normalize(wide, []string{"keywords"})
	require.NoError(t, err)
	require.NoError(t, table.WriteCSV(table.NarrowPath(dir, "keywords"), narrow.Tables["keywords"], true))
}

func TestTargets(t *testing.T) {
	sheets := map[string]string{
		"keywords":       "Keywords",
		"funding_rounds": "Funding Rounds",
		"market_gaps":    "Market Gaps",
	}
	targets := Targets("data", "Main", sheets, []string{"keywords", "people", "funding_rounds"})

	require.Len(t, targets, 4)
	assert.Equal(t, Target{Path: filepath.Join("data", "main.csv"), Sheet: "Main"}, targets[0])
	assert.Equal(t, "Keywords", targets[1].Sheet)
	assert.Equal(t, "Funding Rounds", targets[2].Sheet)
	assert.Equal(t, Target{Path: filepath.Join("data", "separated", "market_gaps.csv"), Sheet: "Market Gaps"}, targets[3])
}

func TestPublish(t *testing.T) {
	dir := t.TempDir()
	writeTables(t, dir)

	log, _ := test.NewNullLogger()
	w := newMemoryWriter()
	w.fail["Investors"] = errors.New("permission denied")

	targets := []Target{
		{Path: table.WidePath(dir), Sheet: "Main"},
		{Path: table.NarrowPath(dir, "people"), Sheet: "People"},
		{Path: table.NarrowPath(dir, "keywords"), Sheet: "Investors"},
		{Path: table.NarrowPath(dir, "keywords"), Sheet: "Keywords"},
	}

	outcomes := NewPublisher(w, log).Publish(context.Background(), targets)
	require.Len(t, outcomes, 4)

	assert.Equal(t, StatusPublished, outcomes[0].Status)
	assert.Equal(t, 2, outcomes[0].Rows)
	assert.Equal(t, StatusMissing, outcomes[1].Status)
	assert.Equal(t, StatusFailed, outcomes[2].Status)
	assert.Equal(t, StatusPublished, outcomes[3].Status, "a failed sheet does not block the next")
	assert.Len(t, Failed(outcomes), 1)

	assert.Equal(t, [][]any{
		{"article_id", "sentiment_score", "keywords"},
		{"a1", 0.7, "Generative AI, Series A"},
		{"a2", 0.0, "Robotics"},
	}, w.sheets["Main"])

	assert.Equal(t, [][]any{
		{"article_id", "keywords"},
		{"a1", "Generative AI"},
		{"a1", "Series A"},
		{"a2", "Robotics"},
	}, w.sheets["Keywords"], "byte-order mark is not sent")
}

func TestPublishIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeTables(t, dir)

	log, _ := test.NewNullLogger()
	w := newMemoryWriter()
	p := NewPublisher(w, log)
	targets := []Target{{Path: table.WidePath(dir), Sheet: "Main"}}

	p.Publish(context.Background(), targets)
	first := w.sheets["Main"]
	p.Publish(context.Background(), targets)

	assert.Equal(t, first, w.sheets["Main"])
}

func TestCellValue(t *testing.T) {
	assert.Equal(t, 85.0, cellValue("85"))
	assert.Equal(t, -0.25, cellValue("-0.25"))
	assert.Equal(t, "N/A", cellValue("N/A"))
	assert.Equal(t, "NaN", cellValue("NaN"))
	assert.Equal(t, "1e5", cellValue("1e5"))
	assert.Equal(t, "2024-03-14", cellValue("2024-03-14"))
}

func TestSheetRange(t *testing.T) {
	assert.Equal(t, "'Funding Rounds'", sheetRange("Funding Rounds"))
	assert.Equal(t, "'Bob''s'", sheetRange("Bob's"))
}

func TestSheetsWriterClearsThenUpdates(t *testing.T) {
	type call struct {
		method string
		path   string
		body   map[string]any
	}
	var (
		mu    sync.Mutex
		calls []call
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		calls = append(calls, call{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	w, err := newSheetsWriter(context.Background(), "sheet-id",
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	err = w.Replace(context.Background(), "Sub Sectors", [][]any{{"article_id", "sub_sectors"}, {"a1", "RegTech"}})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/v4/spreadsheets/sheet-id/values/'Sub Sectors':clear", calls[0].path)
	assert.Equal(t, http.MethodPut, calls[1].method)
	assert.Equal(t, "/v4/spreadsheets/sheet-id/values/'Sub Sectors'!A1", calls[1].path)
	assert.Equal(t, []any{
		[]any{"article_id", "sub_sectors"},
		[]any{"a1", "RegTech"},
	}, calls[1].body["values"])
}
