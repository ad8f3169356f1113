/*
Package table flattens insight records into the wide table and derives one
narrow table per multi-valued column from it.
*/
package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/shanehull/insightpipe/internal/types"
)

const KeyColumn = "article_id"

// ErrMissingKeyColumn means the wide table has rows but no article_id column
// to join narrow tables on.
var ErrMissingKeyColumn = errors.New("wide table has no article_id column")

// FieldOrder is the column order of the insight schema. Columns outside it
// follow in alphabetical order.
var FieldOrder = []string{
	"article_id", "title", "link", "author", "publication_date", "source",
	"summary", "keywords", "sentiment_score", "sentiment_percentage",
	"sentiment_analysis", "topics", "people", "organizations", "locations",
	"products", "events", "business", "funding_rounds", "investors",
	"financial_metrics", "sectors", "sub_sectors", "innovations", "trends",
	"market_gaps", "competitor_analysis", "customer_insights",
	"relevance_score", "severity_score",
}

// NumericColumns default to 0 instead of "N/A" when a value is missing.
var NumericColumns = map[string]bool{
	"sentiment_score":      true,
	"sentiment_percentage": true,
	"financial_metrics":    true,
	"relevance_score":      true,
	"severity_score":       true,
}

const (
	listSeparator = ", "
	missingText   = "N/A"
	missingNumber = "0"
)

type Table struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int {
	return slices.Index(t.Columns, column)
}

// NormalizeKey lower-cases a field name and replaces spaces with underscores.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(key)), " ", "_")
}

// Flatten builds the wide table: one row per record, list values joined with
// ", ", and null or absent values replaced by 0 for numeric columns and "N/A"
// for the rest.
func Flatten(records []types.InsightRecord) *Table {
	normalized := make([]map[string]any, len(records))
	seen := make(map[string]bool)
	for i, rec := range records {
		m := make(map[string]any, len(rec))
		exact := make(map[string]bool, len(rec))
		for _, k := range slices.Sorted(maps.Keys(rec)) {
			v := rec[k]
			nk := NormalizeKey(k)
			seen[nk] = true
			if existing, ok := m[nk]; ok {
				// A non-nil value wins over nil; between two values the key
				// already in normalized form wins, then the first in key order.
				if v == nil || (existing != nil && (exact[nk] || k != nk)) {
					continue
				}
			}
			m[nk] = v
			exact[nk] = k == nk
		}
		normalized[i] = m
	}

	t := &Table{Columns: columnOrder(seen), Rows: make([][]string, 0, len(records))}
	for _, m := range normalized {
		row := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			row[j] = cell(col, m[col])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func columnOrder(seen map[string]bool) []string {
	cols := make([]string, 0, len(seen))
	for _, f := range FieldOrder {
		if seen[f] {
			cols = append(cols, f)
		}
	}

	var extra []string
	for k := range seen {
		if !slices.Contains(FieldOrder, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	return append(cols, extra...)
}

func cell(column string, v any) string {
	if v == nil {
		if NumericColumns[column] {
			return missingNumber
		}
		return missingText
	}

	if list, ok := v.([]any); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			parts = append(parts, scalar(item))
		}
		return strings.Join(parts, listSeparator)
	}

	return scalar(v)
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

type NormalizeResult struct {
	// Tables holds one narrow table per column found, keyed by column name.
	Tables map[string]*Table
	// Columns lists the narrow tables in the requested order.
	Columns []string
	// Missing lists requested columns the wide table does not have.
	Missing []string
}

// Normalize splits each requested column of wide on commas and emits one
// (article_id, value) row per non-empty trimmed token.
func Normalize(wide *Table, columns []string) (*NormalizeResult, error) {
	res := &NormalizeResult{Tables: make(map[string]*Table)}

	key := wide.Index(KeyColumn)
	if key < 0 && len(wide.Rows) > 0 {
		return nil, ErrMissingKeyColumn
	}

	for _, col := range columns {
		idx := wide.Index(col)
		if idx < 0 || key < 0 {
			res.Missing = append(res.Missing, col)
			continue
		}

		narrow := &Table{Columns: []string{KeyColumn, col}, Rows: [][]string{}}
		for _, row := range wide.Rows {
			if idx >= len(row) || key >= len(row) {
				continue
			}
			for _, token := range SplitValues(row[idx]) {
				narrow.Rows = append(narrow.Rows, []string{row[key], token})
			}
		}

		res.Tables[col] = narrow
		res.Columns = append(res.Columns, col)
	}

	return res, nil
}

// missingTokens are the placeholders that mean "no value": the model's
// "None" fallback, the "N/A" Flatten writes, and the other spellings
// spreadsheet tools read as missing. Matching is case-sensitive.
var missingTokens = map[string]bool{
	"#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true, "-1.#QNAN": true,
	"-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true, "<NA>": true,
	"N/A": true, "NA": true, "NULL": true, "NaN": true, "None": true,
	"n/a": true, "nan": true, "null": true,
}

// IsMissing reports whether a trimmed token is empty or a placeholder.
func IsMissing(token string) bool {
	return token == "" || missingTokens[token]
}

// SplitValues splits a joined cell on commas, trims each token and drops
// empty and placeholder ones.
func SplitValues(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); !IsMissing(p) {
			out = append(out, p)
		}
	}
	return out
}
