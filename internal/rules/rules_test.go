package rules_test

import (
	"errors"
	"testing"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/rules"
)

// Week under test: Monday 2026-01-05 through Sunday 2026-01-11.

func newEngine() rules.Engine {
	return rules.New(config.Default())
}

func duty(id, date string, f domain.Formation, s domain.DutyStatus) domain.Duty {
	return domain.Duty{ID: id, Date: date, Type: domain.TypeRehearsal, Formation: f, Status: s}
}

func timedDuty(date, start, end string, s domain.DutyStatus) domain.Duty {
	return domain.Duty{
		ID: "t-" + date + start, Date: date, Type: domain.TypeRehearsal,
		Formation: domain.FormationTutti, Status: s,
		StartTime: &start, EndTime: &end,
	}
}

func hasRule(violations []domain.Violation, ruleID string, severity domain.Severity) bool {
	for _, v := range violations {
		if v.RuleID == ruleID && v.Severity == severity {
			return true
		}
	}
	return false
}

func TestValidateCleanWeek(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{
		duty("d1", "2026-01-05", domain.FormationTutti, domain.StatusFixed),
		duty("d2", "2026-01-06", domain.FormationTutti, domain.StatusFixed),
	}
	res, err := e.Validate(duty("", "2026-01-07", domain.FormationTutti, domain.StatusPossible), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %s, want ok (violations: %+v)", res.Status, res.Violations)
	}
	if res.WeekStart != "2026-01-05" || res.WeekEnd != "2026-01-11" {
		t.Errorf("week window %s..%s", res.WeekStart, res.WeekEnd)
	}
	if res.TotalWeighted != 2.5 {
		t.Errorf("total = %v, want 2.5", res.TotalWeighted)
	}
	if !res.Provisional {
		t.Error("expected provisional week")
	}
}

func TestChamberCeilingCommittedOverrun(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{
		duty("d1", "2026-01-05", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d2", "2026-01-06", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d3", "2026-01-07", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d4", "2026-01-08", domain.FormationWindQuintet, domain.StatusFixed),
	}
	res, err := e.Validate(duty("", "2026-01-09", domain.FormationWindQuintet, domain.StatusFixed), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != "error" {
		t.Fatalf("status = %s, want error", res.Status)
	}
	if !hasRule(res.Violations, "weekly_ceiling", domain.SeverityError) {
		t.Errorf("expected weekly_ceiling error, got %+v", res.Violations)
	}
	if res.Limit != 4 {
		t.Errorf("limit = %v, want the chamber ceiling 4", res.Limit)
	}
}

func TestChamberCeilingTentativeOverrunWarns(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{
		duty("d1", "2026-01-05", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d2", "2026-01-06", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d3", "2026-01-07", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d4", "2026-01-08", domain.FormationWindQuintet, domain.StatusFixed),
	}
	res, err := e.Validate(duty("", "2026-01-09", domain.FormationWindQuintet, domain.StatusPossible), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != "warning" {
		t.Fatalf("status = %s, want warning (overrun carried only by a tentative duty)", res.Status)
	}
	if !hasRule(res.Violations, "weekly_ceiling", domain.SeverityWarning) {
		t.Errorf("expected weekly_ceiling warning, got %+v", res.Violations)
	}
}

func TestAtLimitWithProvisionalWarns(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{
		duty("d1", "2026-01-05", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d2", "2026-01-06", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d3", "2026-01-07", domain.FormationWindQuintet, domain.StatusFixed),
	}
	res, err := e.Validate(duty("", "2026-01-08", domain.FormationWindQuintet, domain.StatusPlanned), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != "warning" {
		t.Fatalf("status = %s, want warning at the limit with provisional duties", res.Status)
	}
}

func TestEditReplacesStoredDuty(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{
		duty("d1", "2026-01-05", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d2", "2026-01-06", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d3", "2026-01-07", domain.FormationWindQuintet, domain.StatusFixed),
		duty("d4", "2026-01-08", domain.FormationWindQuintet, domain.StatusFixed),
	}
	// Downgrading d4 to possible must evaluate as if the edit were applied.
	res, err := e.Validate(duty("d4", "2026-01-08", domain.FormationWindQuintet, domain.StatusPossible), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %s, want ok after the edit is applied (violations: %+v)", res.Status, res.Violations)
	}
	if res.TotalWeighted != 3.5 {
		t.Errorf("total = %v, want 3.5", res.TotalWeighted)
	}
}

func TestDailyRest(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{timedDuty("2026-01-05", "20:00", "23:00", domain.StatusFixed)}
	res, err := e.Validate(timedDuty("2026-01-06", "09:30", "12:30", domain.StatusFixed), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !hasRule(res.Violations, "daily_rest", domain.SeverityError) {
		t.Fatalf("expected daily_rest error, got %+v", res.Violations)
	}
	// A tentative duty on either side softens the finding to a warning.
	res, err = e.Validate(timedDuty("2026-01-06", "09:30", "12:30", domain.StatusPossible), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !hasRule(res.Violations, "daily_rest", domain.SeverityWarning) {
		t.Fatalf("expected daily_rest warning, got %+v", res.Violations)
	}
}

func TestDailyCap(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{
		timedDuty("2026-01-05", "10:00", "12:00", domain.StatusFixed),
		timedDuty("2026-01-05", "15:00", "17:00", domain.StatusFixed),
	}
	res, err := e.Validate(timedDuty("2026-01-05", "19:30", "21:00", domain.StatusFixed), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !hasRule(res.Violations, "daily_cap", domain.SeverityError) {
		t.Fatalf("expected daily_cap error, got %+v", res.Violations)
	}
}

func TestSameDayBreak(t *testing.T) {
	e := newEngine()
	existing := []domain.Duty{timedDuty("2026-01-05", "10:00", "12:00", domain.StatusFixed)}
	res, err := e.Validate(timedDuty("2026-01-05", "13:00", "15:00", domain.StatusFixed), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !hasRule(res.Violations, "same_day_break", domain.SeverityWarning) {
		t.Fatalf("expected same_day_break warning, got %+v", res.Violations)
	}
}

func TestRehearsalWindow(t *testing.T) {
	e := newEngine()
	res, err := e.Validate(timedDuty("2026-01-05", "08:00", "10:00", domain.StatusFixed), nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !hasRule(res.Violations, "rehearsal_window", domain.SeverityWarning) {
		t.Fatalf("expected rehearsal_window warning, got %+v", res.Violations)
	}
}

func TestConsecutiveConcertDays(t *testing.T) {
	e := newEngine()
	var existing []domain.Duty
	for _, date := range []string{"2026-01-05", "2026-01-06", "2026-01-07", "2026-01-08", "2026-01-09", "2026-01-10"} {
		d := duty("c-"+date, date, domain.FormationTutti, domain.StatusFixed)
		d.Type = domain.TypeConcert
		existing = append(existing, d)
	}
	candidate := duty("", "2026-01-11", domain.FormationTutti, domain.StatusFixed)
	candidate.Type = domain.TypeConcert
	res, err := e.Validate(candidate, existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !hasRule(res.Violations, "consecutive_concerts", domain.SeverityError) {
		t.Fatalf("expected consecutive_concerts error, got %+v", res.Violations)
	}
}

func TestFreeDayAndSunday(t *testing.T) {
	e := newEngine()
	var existing []domain.Duty
	for _, date := range []string{"2026-01-05", "2026-01-06", "2026-01-07", "2026-01-08", "2026-01-09", "2026-01-10"} {
		existing = append(existing, duty("r-"+date, date, domain.FormationTutti, domain.StatusFixed))
	}
	res, err := e.Validate(duty("", "2026-01-11", domain.FormationTutti, domain.StatusFixed), existing)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !hasRule(res.Violations, "free_day", domain.SeverityError) {
		t.Fatalf("expected free_day error, got %+v", res.Violations)
	}
	if !hasRule(res.Violations, "sunday_duty", domain.SeverityInfo) {
		t.Fatalf("expected sunday_duty info, got %+v", res.Violations)
	}
	// Errors sort before warnings and infos.
	if res.Violations[0].Severity != domain.SeverityError {
		t.Errorf("first violation severity = %s, want error", res.Violations[0].Severity)
	}
	if res.Status != "error" {
		t.Errorf("status = %s, want error", res.Status)
	}
}

func TestSundayInfoAloneKeepsStatusOK(t *testing.T) {
	e := newEngine()
	res, err := e.Validate(duty("", "2026-01-11", domain.FormationTutti, domain.StatusFixed), nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %s, want ok; infos never degrade the status", res.Status)
	}
	if !hasRule(res.Violations, "sunday_duty", domain.SeverityInfo) {
		t.Fatalf("expected sunday_duty info, got %+v", res.Violations)
	}
}

func TestValidateRejectsInvalidInput(t *testing.T) {
	e := newEngine()
	cases := []domain.Duty{
		{Date: "2026-13-40", Type: domain.TypeRehearsal, Status: domain.StatusFixed},
		{Date: "2026-01-05", Type: domain.TypeRehearsal, Status: "maybe"},
		func() domain.Duty {
			end := "12:00"
			return domain.Duty{Date: "2026-01-05", Type: domain.TypeRehearsal, Status: domain.StatusFixed, EndTime: &end}
		}(),
		func() domain.Duty {
			start := "25:99"
			return domain.Duty{Date: "2026-01-05", Type: domain.TypeRehearsal, Status: domain.StatusFixed, StartTime: &start}
		}(),
	}
	for i, c := range cases {
		if _, err := e.Validate(c, nil); !errors.Is(err, rules.ErrInvalidInput) {
			t.Errorf("case %d: err = %v, want ErrInvalidInput", i, err)
		}
	}
}

func TestValidateRange(t *testing.T) {
	e := newEngine()
	duties := []domain.Duty{
		timedDuty("2026-01-05", "20:00", "23:00", domain.StatusFixed),
		timedDuty("2026-01-06", "09:30", "12:30", domain.StatusFixed),
	}
	violations, err := e.ValidateRange(duties, "2026-01-05", "2026-01-11")
	if err != nil {
		t.Fatalf("validate range: %v", err)
	}
	if !hasRule(violations, "daily_rest", domain.SeverityError) {
		t.Fatalf("expected daily_rest error, got %+v", violations)
	}

	if _, err := e.ValidateRange(nil, "2026-01-11", "2026-01-05"); !errors.Is(err, rules.ErrInvalidInput) {
		t.Fatalf("reversed range: err = %v, want ErrInvalidInput", err)
	}
}
