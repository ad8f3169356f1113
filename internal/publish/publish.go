/*
Package publish uploads the local tables to worksheets of a Google
spreadsheet, replacing whatever each worksheet held before.
*/
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/shanehull/insightpipe/internal/table"
)

// SheetWriter overwrites the full contents of one named worksheet.
type SheetWriter interface {
	Replace(ctx context.Context, sheet string, values [][]any) error
}

// Target pairs a local CSV file with its destination worksheet.
type Target struct {
	Path  string
	Sheet string
}

type Status string

const (
	StatusPublished Status = "published"
	StatusMissing   Status = "missing"
	StatusFailed    Status = "failed"
)

type Outcome struct {
	Target Target
	Status Status
	Rows   int
	Err    error
}

var numericCell = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Targets lists the wide table first, then one target per mapped column.
// Columns follow the given order; mapped columns not in it follow sorted.
func Targets(dataDir, mainSheet string, sheets map[string]string, columns []string) []Target {
	targets := []Target{{Path: table.WidePath(dataDir), Sheet: mainSheet}}

	var rest []string
	for col := range sheets {
		if !slices.Contains(columns, col) {
			rest = append(rest, col)
		}
	}
	sort.Strings(rest)

	for _, col := range append(slices.Clone(columns), rest...) {
		sheet, ok := sheets[col]
		if !ok {
			continue
		}
		targets = append(targets, Target{Path: table.NarrowPath(dataDir, col), Sheet: sheet})
	}
	return targets
}

type Publisher struct {
	writer SheetWriter
	log    logrus.FieldLogger
}

func NewPublisher(writer SheetWriter, log logrus.FieldLogger) *Publisher {
	return &Publisher{writer: writer, log: log}
}

// Publish uploads every target independently. A missing file or a failed
// upload is logged and reported in its Outcome; the remaining targets still
// run.
func (p *Publisher) Publish(ctx context.Context, targets []Target) []Outcome {
	outcomes := make([]Outcome, 0, len(targets))

	for _, target := range targets {
		log := p.log.WithFields(logrus.Fields{"sheet": target.Sheet, "path": target.Path})
		out := Outcome{Target: target}

		t, err := table.ReadCSV(target.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Warn("Local table not found, skipping")
				out.Status = StatusMissing
			} else {
				log.Errorf("Failed to read local table: %v", err)
				out.Status = StatusFailed
				out.Err = err
			}
			outcomes = append(outcomes, out)
			continue
		}

		if err := p.writer.Replace(ctx, target.Sheet, Values(t)); err != nil {
			log.Errorf("Failed to update sheet: %v", err)
			out.Status = StatusFailed
			out.Err = err
			outcomes = append(outcomes, out)
			continue
		}

		out.Status = StatusPublished
		out.Rows = len(t.Rows)
		log.Infof("Updated sheet with %d rows", out.Rows)
		outcomes = append(outcomes, out)
	}

	return outcomes
}

// Values converts a table to the header row plus data rows. Cells that look
// like plain decimal numbers are sent as numbers.
func Values(t *table.Table) [][]any {
	values := make([][]any, 0, len(t.Rows)+1)

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	values = append(values, header)

	for _, row := range t.Rows {
		out := make([]any, len(row))
		for i, cell := range row {
			out[i] = cellValue(cell)
		}
		values = append(values, out)
	}
	return values
}

func cellValue(cell string) any {
	if numericCell.MatchString(cell) {
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			return f
		}
	}
	return cell
}

// Failed returns the outcomes that did not publish, missing files excluded.
func Failed(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", o.Target.Sheet, o.Status, o.Err)
	}
	return fmt.Sprintf("%s: %s", o.Target.Sheet, o.Status)
}
