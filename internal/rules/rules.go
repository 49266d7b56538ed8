package rules

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/schedule"
)

// ErrInvalidInput marks validation calls that cannot be evaluated at all
// (malformed dates, unknown status). Distinct from rule violations, which are
// results, not errors.
var ErrInvalidInput = errors.New("invalid input")

// Engine evaluates the rule catalogue over weekly windows. It is pure: no
// clock, no storage, same inputs always give the same result.
type Engine struct {
	Config *config.Config
	Rules  []Rule
}

// Rule is one catalogue entry. Eval inspects the evaluation window and
// returns zero or more violations; it never short-circuits the others.
type Rule struct {
	ID     string
	Name   string
	Clause string
	Eval   func(ev *Evaluation) []domain.Violation
}

// Evaluation is the window a rule sees: all weeks touched by the request plus
// their day loads in date order.
type Evaluation struct {
	Cfg    *config.Config
	Duties []domain.Duty
	Weeks  []schedule.Week
	Days   []schedule.DayLoad
}

// New returns an engine with the full catalogue over the given limit table.
func New(cfg *config.Config) Engine {
	return Engine{Config: cfg, Rules: Catalog()}
}

// Validate checks a candidate duty against its week and the adjacent weeks.
// The candidate replaces any stored duty with the same ID, so edits are
// evaluated as if already applied. Only violations touching the candidate's
// week are reported.
func (e Engine) Validate(candidate domain.Duty, existing []domain.Duty) (domain.ValidationResult, error) {
	if err := checkDuty(candidate); err != nil {
		return domain.ValidationResult{}, err
	}
	day, err := schedule.ParseDate(candidate.Date)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	merged := make([]domain.Duty, 0, len(existing)+1)
	for _, d := range existing {
		if d.ID != "" && d.ID == candidate.ID {
			continue
		}
		merged = append(merged, d)
	}
	merged = append(merged, candidate)

	weekStart := schedule.WeekStart(day)
	from := weekStart.AddDate(0, 0, -7)
	to := weekStart.AddDate(0, 0, 13)
	ev := e.buildEvaluation(merged, from, to)

	violations := e.run(ev)
	violations = filterToWindow(violations, schedule.FormatDate(weekStart), schedule.FormatDate(weekStart.AddDate(0, 0, 6)))
	sortViolations(violations)

	week := weekOf(ev.Weeks, schedule.FormatDate(weekStart))
	result := domain.ValidationResult{
		Status:        overallStatus(violations),
		WeekStart:     week.Start,
		WeekEnd:       week.End,
		TotalWeighted: week.Total(),
		Limit:         e.Config.WeeklyLimit(string(candidate.Formation)),
		Provisional:   week.Provisional(),
		Violations:    violations,
		Summary:       summarize(violations, week),
	}
	return result, nil
}

// ValidateRange evaluates every week overlapping [from,to], e.g. a full
// season. Used by plan generation to embed the current compliance state.
func (e Engine) ValidateRange(duties []domain.Duty, from, to string) ([]domain.Violation, error) {
	start, err := schedule.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	end, err := schedule.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: range end %s before start %s", ErrInvalidInput, to, from)
	}
	for _, d := range duties {
		if err := checkDuty(d); err != nil {
			return nil, err
		}
	}
	ev := e.buildEvaluation(duties, start, end)
	violations := e.run(ev)
	sortViolations(violations)
	return violations, nil
}

func (e Engine) buildEvaluation(duties []domain.Duty, from, to time.Time) *Evaluation {
	weeks := schedule.BuildWeeks(e.Config, duties, from, to)
	var days []schedule.DayLoad
	for _, w := range weeks {
		days = append(days, w.Days...)
	}
	return &Evaluation{Cfg: e.Config, Duties: duties, Weeks: weeks, Days: days}
}

func (e Engine) run(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	for _, rule := range e.Rules {
		for _, v := range rule.Eval(ev) {
			v.RuleID = rule.ID
			v.RuleName = rule.Name
			v.Clause = rule.Clause
			out = append(out, v)
		}
	}
	return out
}

func checkDuty(d domain.Duty) error {
	if _, err := schedule.ParseDate(d.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, d.Status)
	}
	for _, t := range []*string{d.StartTime, d.EndTime} {
		if t == nil {
			continue
		}
		if _, err := time.Parse("15:04", *t); err != nil {
			return fmt.Errorf("%w: invalid time %q", ErrInvalidInput, *t)
		}
	}
	if d.StartTime == nil && d.EndTime != nil {
		return fmt.Errorf("%w: end time without start time", ErrInvalidInput)
	}
	return nil
}

func filterToWindow(violations []domain.Violation, weekStart, weekEnd string) []domain.Violation {
	var out []domain.Violation
	for _, v := range violations {
		keep := len(v.AffectedDates) == 0
		for _, d := range v.AffectedDates {
			if d >= weekStart && d <= weekEnd {
				keep = true
				break
			}
		}
		if keep {
			out = append(out, v)
		}
	}
	return out
}

func sortViolations(violations []domain.Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Severity.Rank() != violations[j].Severity.Rank() {
			return violations[i].Severity.Rank() > violations[j].Severity.Rank()
		}
		di, dj := firstDate(violations[i]), firstDate(violations[j])
		if di != dj {
			return di < dj
		}
		return violations[i].RuleID < violations[j].RuleID
	})
}

func firstDate(v domain.Violation) string {
	if len(v.AffectedDates) == 0 {
		return ""
	}
	return v.AffectedDates[0]
}

// overallStatus aggregates violation severities. Infos never degrade the
// status below ok.
func overallStatus(violations []domain.Violation) string {
	status := "ok"
	for _, v := range violations {
		switch v.Severity {
		case domain.SeverityError:
			return "error"
		case domain.SeverityWarning:
			status = "warning"
		}
	}
	return status
}

func summarize(violations []domain.Violation, week schedule.Week) domain.ValidationSummary {
	s := domain.ValidationSummary{Total: len(violations), ByType: week.ByType()}
	for _, v := range violations {
		switch v.Severity {
		case domain.SeverityError:
			s.Errors++
		case domain.SeverityWarning:
			s.Warnings++
		case domain.SeverityInfo:
			s.Infos++
		}
	}
	return s
}

func weekOf(weeks []schedule.Week, start string) schedule.Week {
	for _, w := range weeks {
		if w.Start == start {
			return w
		}
	}
	return schedule.Week{Start: start, End: start}
}
