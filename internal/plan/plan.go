package plan

import (
	"fmt"
	"time"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/schedule"
)

// Plan is the structured duty plan handed to a renderer. One Row per
// calendar day of the covered range.
type Plan struct {
	Title      string
	Subtitle   string
	Start      string
	End        string
	Rows       []Row
	Violations []domain.Violation
}

// Row is one day of the plan.
type Row struct {
	Date    string
	Weekday time.Weekday
	Duties  []domain.Duty
	Free    bool
	Weight  float64
}

// Collective builds the orchestra-wide plan over [from,to]: every day of the
// range, duty-free days marked free.
func Collective(cfg *config.Config, title string, duties []domain.Duty, from, to string) (Plan, error) {
	rows, err := buildRows(cfg, duties, from, to)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Title:    title,
		Subtitle: cfg.Orchestra.Name,
		Start:    from,
		End:      to,
		Rows:     rows,
	}, nil
}

// Individual builds one member's plan: only duties the member participates in
// are kept, and day loads are recomputed over that subset so a day that is
// free for this member shows as free even when the orchestra plays.
func Individual(cfg *config.Config, m domain.Musician, duties []domain.Duty, from, to string) (Plan, error) {
	var mine []domain.Duty
	for _, d := range duties {
		if ParticipatesIn(m, d.Formation) {
			mine = append(mine, d)
		}
	}
	rows, err := buildRows(cfg, mine, from, to)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Title:    "Duty plan " + m.DisplayName(),
		Subtitle: cfg.Orchestra.Name,
		Start:    from,
		End:      to,
		Rows:     rows,
	}, nil
}

func buildRows(cfg *config.Config, duties []domain.Duty, from, to string) ([]Row, error) {
	start, err := schedule.ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := schedule.ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("plan end %s before start %s", to, from)
	}
	byDate := map[string][]domain.Duty{}
	for _, d := range duties {
		byDate[d.Date] = append(byDate[d.Date], d)
	}
	var rows []Row
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := schedule.FormatDate(day)
		load := schedule.ComputeDayLoad(cfg, date, byDate[date])
		rows = append(rows, Row{
			Date:    date,
			Weekday: day.Weekday(),
			Duties:  load.Duties,
			Free:    load.Free || len(load.Duties) == 0,
			Weight:  load.Weight,
		})
	}
	return rows, nil
}

// ParticipatesIn resolves roster membership per formation: tutti and unknown
// formations involve everyone, section formations go by register group or
// register, chamber ensembles by explicit membership, committee duties by
// nobody's individual plan.
func ParticipatesIn(m domain.Musician, f domain.Formation) bool {
	switch {
	case f == domain.FormationTutti, f == domain.FormationUnknown, f == "":
		return true
	case f == domain.FormationCommittee:
		return false
	case f == domain.FormationBrass, f == domain.FormationBrassEnsemble:
		return m.Group == "brass"
	case f == domain.FormationWoodwind:
		return m.Group == "wood"
	case f == domain.FormationPercussion:
		return m.Register == "percussion"
	case f == domain.FormationDoubleBass:
		return m.Register == "double_bass"
	case f.Chamber():
		for _, e := range m.Ensembles {
			if e == string(f) {
				return true
			}
		}
		return false
	}
	return true
}
