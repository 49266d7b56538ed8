package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ChristianSBP/sbp-services/internal/plan"
)

// Renderer turns a structured plan into a printable document.
type Renderer interface {
	Render(p plan.Plan) ([]byte, error)
}

// RenderError marks failures producing the document itself.
type RenderError struct {
	Plan string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Plan, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// TextRenderer is the shipped renderer: a plain-text duty table, one line per
// day, duty-free days marked. Good enough for print and the converter.
type TextRenderer struct{}

func (TextRenderer) Render(p plan.Plan) ([]byte, error) {
	if len(p.Rows) == 0 {
		return nil, &RenderError{Plan: p.Title, Err: fmt.Errorf("no days in range %s..%s", p.Start, p.End)}
	}
	var buf bytes.Buffer
	fmt.Fprintln(&buf, p.Title)
	if p.Subtitle != "" {
		fmt.Fprintln(&buf, p.Subtitle)
	}
	fmt.Fprintf(&buf, "%s to %s\n\n", p.Start, p.End)
	for _, row := range p.Rows {
		day := fmt.Sprintf("%s %s", row.Weekday.String()[:3], row.Date)
		if row.Free {
			fmt.Fprintf(&buf, "%s  free\n", day)
			continue
		}
		for i, d := range row.Duties {
			label := day
			if i > 0 {
				label = strings.Repeat(" ", len(day))
			}
			line := fmt.Sprintf("%s  %s", label, d.Type)
			if d.StartTime != nil {
				line += " " + *d.StartTime
				if d.EndTime != nil {
					line += "-" + *d.EndTime
				}
			}
			if d.Formation != "" && d.Formation != "tutti" {
				line += fmt.Sprintf(" [%s]", d.Formation)
			}
			if d.Program != "" {
				line += "  " + d.Program
			}
			if d.Venue != "" {
				line += "  @ " + d.Venue
			}
			if d.Status == "possible" {
				line += "  (tentative)"
			}
			fmt.Fprintln(&buf, line)
		}
	}
	if len(p.Violations) > 0 {
		fmt.Fprintf(&buf, "\nOpen findings: %d\n", len(p.Violations))
		for _, v := range p.Violations {
			fmt.Fprintf(&buf, "- [%s] %s\n", v.Severity, v.Message)
		}
	}
	return buf.Bytes(), nil
}
