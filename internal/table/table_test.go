package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shanehull/insightpipe/internal/ai"
	"github.com/shanehull/insightpipe/internal/types"
)

func column(t *testing.T, tbl *Table, row int, col string) string {
	t.Helper()
	idx := tbl.Index(col)
	require.GreaterOrEqual(t, idx, 0, "column %s", col)
	return tbl.Rows[row][idx]
}

func TestFlattenJoinsListsAndDefaultsNulls(t *testing.T) {
	records := []types.InsightRecord{{
		"article_id":      "a1",
		"keywords":        []any{"Generative AI", "Series A"},
		"people":          nil,
		"sentiment_score": nil,
		"relevance_score": 8.5,
		"Business":        "B2B",
		"Custom Field":    true,
	}}

	tbl := Flatten(records)
	require.Len(t, tbl.Rows, 1)

	assert.Equal(t, "Generative AI, Series A", column(t, tbl, 0, "keywords"))
	assert.Equal(t, "N/A", column(t, tbl, 0, "people"))
	assert.Equal(t, "0", column(t, tbl, 0, "sentiment_score"))
	assert.Equal(t, "8.5", column(t, tbl, 0, "relevance_score"))
	assert.Equal(t, "B2B", column(t, tbl, 0, "business"))
	assert.Equal(t, "true", column(t, tbl, 0, "custom_field"))

	assert.Equal(t, []string{"article_id", "keywords", "sentiment_score", "people", "business", "relevance_score", "custom_field"}, tbl.Columns)
}

func TestFlattenCollidingKeys(t *testing.T) {
	rec := types.InsightRecord{
		"article_id":     "a1",
		"Business":       "B2C",
		"business":       "B2B",
		"Funding Rounds": "Series A",
		"funding_rounds": nil,
		"Market Gaps":    "Payroll",
		"market gaps":    "Compliance",
	}

	for range 20 {
		tbl := Flatten([]types.InsightRecord{rec})
		assert.Equal(t, "B2B", column(t, tbl, 0, "business"), "normalized key wins")
		assert.Equal(t, "Series A", column(t, tbl, 0, "funding_rounds"), "value wins over nil")
		assert.Equal(t, "Payroll", column(t, tbl, 0, "market_gaps"), "first key in sorted order wins")
	}
}

func TestFlattenAbsentKeysAreDefaulted(t *testing.T) {
	records := []types.InsightRecord{
		{"article_id": "a1", "severity_score": 7.0, "summary": "s"},
		{"article_id": "a2"},
	}

	tbl := Flatten(records)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "7", column(t, tbl, 0, "severity_score"))
	assert.Equal(t, "0", column(t, tbl, 1, "severity_score"))
	assert.Equal(t, "N/A", column(t, tbl, 1, "summary"))
}

func TestFlattenEmpty(t *testing.T) {
	tbl := Flatten(nil)
	assert.Empty(t, tbl.Columns)
	assert.Empty(t, tbl.Rows)
}

func TestNormalize(t *testing.T) {
	tbl := Flatten([]types.InsightRecord{
		{"article_id": "a1", "keywords": []any{"Generative AI", "Series A"}, "people": nil},
		{"article_id": "a2", "keywords": "Robotics, , Edge AI ,", "people": "Sam Altman"},
	})

	res, err := Normalize(tbl, []string{"keywords", "people", "investors"})
	require.NoError(t, err)

	assert.Equal(t, []string{"keywords", "people"}, res.Columns)
	assert.Equal(t, []string{"investors"}, res.Missing)

	kw := res.Tables["keywords"]
	assert.Equal(t, []string{"article_id", "keywords"}, kw.Columns)
	assert.Equal(t, [][]string{
		{"a1", "Generative AI"},
		{"a1", "Series A"},
		{"a2", "Robotics"},
		{"a2", "Edge AI"},
	}, kw.Rows)

	assert.Equal(t, [][]string{{"a2", "Sam Altman"}}, res.Tables["people"].Rows)
}

func TestNormalizeDropsPlaceholders(t *testing.T) {
	tbl := Flatten([]types.InsightRecord{
		{"article_id": "a1", "people": "None", "investors": nil},
		{"article_id": "a2", "people": []any{"null", "Jane Doe", "N/A"}, "investors": "NA, Sequoia"},
	})

	res, err := Normalize(tbl, []string{"people", "investors"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a2", "Jane Doe"}}, res.Tables["people"].Rows)
	assert.Equal(t, [][]string{{"a2", "Sequoia"}}, res.Tables["investors"].Rows)

	only := Flatten([]types.InsightRecord{{"article_id": "a1", "people": "None", "investors": nil}})
	res, err = Normalize(only, []string{"people", "investors"})
	require.NoError(t, err)
	assert.Empty(t, res.Tables["people"].Rows)
	assert.Empty(t, res.Tables["investors"].Rows)
}

func TestNormalizeRoundTripsLists(t *testing.T) {
	lists := [][]any{
		{"Generative AI", "Series A"},
		{"OpenAI"},
		{},
		{" spaced ", "x"},
	}

	for _, list := range lists {
		tbl := Flatten([]types.InsightRecord{{"article_id": "id", "trends": list}})
		res, err := Normalize(tbl, []string{"trends"})
		require.NoError(t, err)

		var want []string
		for _, v := range list {
			want = append(want, SplitValues(v.(string))...)
		}
		var got []string
		for _, row := range res.Tables["trends"].Rows {
			got = append(got, row[1])
		}
		assert.Equal(t, want, got)
	}
}

func TestNormalizeRequiresKeyColumn(t *testing.T) {
	tbl := &Table{Columns: []string{"keywords"}, Rows: [][]string{{"a, b"}}}
	_, err := Normalize(tbl, []string{"keywords"})
	assert.ErrorIs(t, err, ErrMissingKeyColumn)

	res, err := Normalize(&Table{}, []string{"keywords"})
	require.NoError(t, err)
	assert.Equal(t, []string{"keywords"}, res.Missing)
}

func TestSplitValues(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitValues(" a ,b,, "))
	assert.Nil(t, SplitValues(""))
	assert.Nil(t, SplitValues("None"))
	assert.Nil(t, SplitValues("N/A, null ,NaN"))
	assert.Equal(t, []string{"none of the above", "NONE"}, SplitValues("none of the above, NONE"))
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tbl := &Table{
		Columns: []string{"article_id", "summary"},
		Rows:    [][]string{{"a1", "Contains, a comma"}, {"a2", "Line\nbreak"}},
	}

	wide := WidePath(dir)
	require.NoError(t, WriteCSV(wide, tbl, false))
	got, err := ReadCSV(wide)
	require.NoError(t, err)
	assert.Equal(t, tbl, got)

	narrow := NarrowPath(dir, "summary")
	require.NoError(t, WriteCSV(narrow, tbl, true))

	raw, err := os.ReadFile(narrow)
	require.NoError(t, err)
	assert.Equal(t, utf8BOM, raw[:3])

	got, err = ReadCSV(narrow)
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, got.Columns)
	assert.Equal(t, filepath.Join(dir, "separated", "summary.csv"), narrow)
}

func TestReadCSVEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Empty(t, got.Columns)
	assert.Empty(t, got.Rows)
}

func TestFlattenParsedModelResponse(t *testing.T) {
	rec, err := ai.ParseRecord("```json\n{\"article_id\": \"x\", \"keywords\": [\"Generative AI\", \"Series A\"], \"people\": null}\n```")
	require.NoError(t, err)

	tbl := Flatten([]types.InsightRecord{rec})
	assert.Equal(t, "Generative AI, Series A", column(t, tbl, 0, "keywords"))
	assert.Equal(t, "N/A", column(t, tbl, 0, "people"))
}
