/*
Package notify reports the outcome of a pipeline run via console output and
email.
*/
package notify

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/shanehull/insightpipe/internal/publish"
)

// StepResult is what a single pipeline step produced.
type StepResult struct {
	Name     string
	Count    int
	Duration time.Duration
	Note     string
	Err      error
}

func (s StepResult) Status() string {
	if s.Err != nil {
		return "failed"
	}
	return "ok"
}

type RunReport struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Steps    []StepResult
	Outcomes []publish.Outcome
}

// Failed reports whether any step failed. Failed publish destinations do not
// fail the run.
func (r *RunReport) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

func (r *RunReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// ShortID is the first block of the run id, enough to tell runs apart in
// subjects and banners.
func (r *RunReport) ShortID() string {
	id, _, _ := strings.Cut(r.RunID, "-")
	return id
}

func (r *RunReport) Subject() string {
	status := "completed"
	if r.Failed() {
		status = "FAILED"
	}
	return fmt.Sprintf("Insight pipeline %s: run %s", status, r.ShortID())
}

const maxNoteWidth = 60

// RenderConsole writes the run summary as an aligned table.
func RenderConsole(w io.Writer, r *RunReport) {
	fmt.Fprintln(w, "\n===========================================")
	if r.Failed() {
		fmt.Fprintf(w, "❌ RUN %s FAILED\n", r.ShortID())
	} else {
		fmt.Fprintf(w, "✅ RUN %s COMPLETED\n", r.ShortID())
	}
	fmt.Fprintln(w, "===========================================")

	rows := [][]string{{"STEP", "STATUS", "COUNT", "TIME", "NOTE"}}
	for _, s := range r.Steps {
		note := s.Note
		if s.Err != nil {
			note = s.Err.Error()
		}
		rows = append(rows, []string{
			s.Name,
			s.Status(),
			fmt.Sprintf("%d", s.Count),
			s.Duration.Round(time.Millisecond).String(),
			runewidth.Truncate(note, maxNoteWidth, "…"),
		})
	}
	writeTable(w, rows)

	if len(r.Outcomes) > 0 {
		fmt.Fprintln(w, "\n--- PUBLISHED SHEETS ---")
		rows = [][]string{{"SHEET", "STATUS", "ROWS"}}
		for _, o := range r.Outcomes {
			rows = append(rows, []string{o.Target.Sheet, string(o.Status), fmt.Sprintf("%d", o.Rows)})
		}
		writeTable(w, rows)
	}

	fmt.Fprintln(w, "\n===========================================")
	fmt.Fprintf(w, "Finished in %s.\n", r.Duration().Round(time.Second))
	fmt.Fprintln(w, "===========================================")
}

func writeTable(w io.Writer, rows [][]string) {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 {
				cells[i] = cell
				continue
			}
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

// ConsoleReporter prints the run summary to W.
type ConsoleReporter struct {
	W io.Writer
}

func (c ConsoleReporter) Report(r *RunReport) {
	RenderConsole(c.W, r)
}
