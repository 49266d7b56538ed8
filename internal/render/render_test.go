package render_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/plan"
	"github.com/ChristianSBP/sbp-services/internal/render"
)

func TestTextRenderer(t *testing.T) {
	start := "19:30"
	end := "22:00"
	p := plan.Plan{
		Title:    "Duty plan January",
		Subtitle: "Staatsbad Philharmonie",
		Start:    "2026-01-05",
		End:      "2026-01-06",
		Rows: []plan.Row{
			{
				Date: "2026-01-05", Weekday: time.Monday,
				Duties: []domain.Duty{{
					Type: domain.TypeConcert, Formation: domain.FormationWindQuintet,
					Status: domain.StatusPossible, StartTime: &start, EndTime: &end,
					Program: "Mozart Gran Partita", Venue: "Kurhaus",
				}},
				Weight: 0.5,
			},
			{Date: "2026-01-06", Weekday: time.Tuesday, Free: true},
		},
		Violations: []domain.Violation{{
			Severity: domain.SeverityWarning, Message: "week of 2026-01-05 is tight",
		}},
	}
	out, err := render.TextRenderer{}.Render(p)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	text := string(out)
	for _, want := range []string{
		"Duty plan January",
		"Mon 2026-01-05",
		"19:30-22:00",
		"[wind_quintet]",
		"Mozart Gran Partita",
		"@ Kurhaus",
		"(tentative)",
		"Tue 2026-01-06  free",
		"Open findings: 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestTextRendererRejectsEmptyPlan(t *testing.T) {
	_, err := render.TextRenderer{}.Render(plan.Plan{Title: "empty"})
	if err == nil {
		t.Fatal("expected error for a plan without days")
	}
	var rerr *render.RenderError
	if !errors.As(err, &rerr) || rerr.Plan != "empty" {
		t.Errorf("error should name the plan: %v", err)
	}
}
