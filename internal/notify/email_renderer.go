package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// RenderedMessage is a subject plus plain text and HTML bodies.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

// HTMLEmailRenderer renders run reports as HTML emails with a plain text fallback.
type HTMLEmailRenderer struct {
	tmpl *template.Template
}

func NewHTMLEmailRenderer() *HTMLEmailRenderer {
	t := template.Must(template.New("email").Funcs(template.FuncMap{
		"round": func(d time.Duration) string { return d.Round(time.Millisecond).String() },
	}).Parse(emailHTMLTemplate))
	return &HTMLEmailRenderer{tmpl: t}
}

func (r *HTMLEmailRenderer) Render(report *RunReport) (*RenderedMessage, error) {
	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, report); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &RenderedMessage{
		Subject: report.Subject(),
		Text:    renderPlainText(report),
		HTML:    htmlBuf.String(),
	}, nil
}

// renderPlainText produces a readable plain text version for email clients that don't support HTML.
func renderPlainText(r *RunReport) string {
	var sb strings.Builder

	sb.WriteString(r.Subject() + "\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString(fmt.Sprintf("Run ID:   %s\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Started:  %s\n", r.Started.Format("02 Jan 2006 3:04 PM")))
	sb.WriteString(fmt.Sprintf("Duration: %s\n\n", r.Duration().Round(time.Second)))

	sb.WriteString("STEPS\n")
	sb.WriteString(strings.Repeat("-", 20) + "\n")
	for _, s := range r.Steps {
		sb.WriteString(fmt.Sprintf("• %s: %s, %d items, %s", s.Name, s.Status(), s.Count, s.Duration.Round(time.Millisecond)))
		switch {
		case s.Err != nil:
			sb.WriteString(fmt.Sprintf(" (%v)", s.Err))
		case s.Note != "":
			sb.WriteString(fmt.Sprintf(" (%s)", s.Note))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(r.Outcomes) > 0 {
		sb.WriteString("SHEETS\n")
		sb.WriteString(strings.Repeat("-", 20) + "\n")
		for _, o := range r.Outcomes {
			sb.WriteString(fmt.Sprintf("• %s (%d rows)\n", o, o.Rows))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
