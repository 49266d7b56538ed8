package rules

import (
	"fmt"
	"time"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/domain"
	"github.com/ChristianSBP/sbp-services/internal/schedule"
)

// Catalog returns the rule catalogue in evaluation order. Every rule is data
// over the limit table in config; adding a rule means appending an entry
// here, not touching the engine.
func Catalog() []Rule {
	return []Rule{
		{
			ID:     "weekly_ceiling",
			Name:   "Maximum duties per week",
			Clause: "§ 15 (2)",
			Eval:   evalWeeklyCeiling,
		},
		{
			ID:     "weekly_ceiling_approach",
			Name:   "Approaching weekly ceiling",
			Clause: "§ 15 (2)",
			Eval:   evalWeeklyApproach,
		},
		{
			ID:     "daily_rest",
			Name:   "Minimum rest between days",
			Clause: "ArbZG § 5",
			Eval:   evalDailyRest,
		},
		{
			ID:     "daily_cap",
			Name:   "Maximum duties per day",
			Clause: "§ 15 (3)",
			Eval:   evalDailyCap,
		},
		{
			ID:     "same_day_break",
			Name:   "Minimum break between same-day duties",
			Clause: "§ 15 (4)",
			Eval:   evalSameDayBreak,
		},
		{
			ID:     "rehearsal_window",
			Name:   "Rehearsal time window",
			Clause: "§ 15 (5)",
			Eval:   evalRehearsalWindow,
		},
		{
			ID:     "consecutive_concerts",
			Name:   "Consecutive concert days",
			Clause: "§ 15 (6)",
			Eval:   evalConsecutiveConcerts,
		},
		{
			ID:     "free_day",
			Name:   "Free day per week",
			Clause: "§ 16 (1)",
			Eval:   evalFreeDay,
		},
		{
			ID:     "sunday_duty",
			Name:   "Sunday duty",
			Clause: "§ 16 (2)",
			Eval:   evalSundayDuty,
		},
	}
}

// evalWeeklyCeiling checks weighted week totals against the limit table: the
// default ceiling over all duties plus dedicated ceilings per chamber
// formation. Overruns carried only by possible duties stay warnings; a
// committed overrun is an error.
func evalWeeklyCeiling(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	for _, week := range ev.Weeks {
		out = append(out, ceilingViolations(ev.Cfg, week, "", ev.Cfg.Limits.DefaultMaxPerWeek)...)
		for _, formation := range chamberFormations(week) {
			scoped := scopedWeek(ev.Cfg, week, formation)
			out = append(out, ceilingViolations(ev.Cfg, scoped, formation, ev.Cfg.WeeklyLimit(string(formation)))...)
		}
	}
	return out
}

func ceilingViolations(cfg *config.Config, week schedule.Week, formation domain.Formation, limit float64) []domain.Violation {
	total := week.Total()
	binding := bindingTotal(cfg, week)
	scope := "week"
	if formation != "" {
		scope = fmt.Sprintf("%s week", formation)
	}
	switch {
	case binding > limit:
		return []domain.Violation{{
			Severity:      domain.SeverityError,
			Message:       fmt.Sprintf("%.1f committed duties in %s of %s exceed the limit of %.0f", binding, scope, week.Start, limit),
			AffectedDates: dutyDates(week),
			AffectedWeek:  week.Number,
			CurrentValue:  f64(total),
			LimitValue:    f64(limit),
			Suggestion:    "move or release a duty in this week",
		}}
	case total > limit:
		return []domain.Violation{{
			Severity:      domain.SeverityWarning,
			Message:       fmt.Sprintf("%.1f duties in %s of %s exceed the limit of %.0f only if tentative duties are confirmed", total, scope, week.Start, limit),
			AffectedDates: dutyDates(week),
			AffectedWeek:  week.Number,
			CurrentValue:  f64(total),
			LimitValue:    f64(limit),
			Suggestion:    "keep at least one tentative duty unconfirmed",
		}}
	case total == limit && week.Provisional():
		return []domain.Violation{{
			Severity:      domain.SeverityWarning,
			Message:       fmt.Sprintf("week of %s is at the limit of %.0f with provisional duties", week.Start, limit),
			AffectedDates: dutyDates(week),
			AffectedWeek:  week.Number,
			CurrentValue:  f64(total),
			LimitValue:    f64(limit),
		}}
	}
	return nil
}

// evalWeeklyApproach warns one duty short of the ceiling when the week still
// carries provisional duties, so planners see the squeeze before it happens.
func evalWeeklyApproach(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	limit := ev.Cfg.Limits.DefaultMaxPerWeek
	for _, week := range ev.Weeks {
		total := week.Total()
		if total >= limit-1 && total < limit && week.Provisional() {
			out = append(out, domain.Violation{
				Severity:      domain.SeverityWarning,
				Message:       fmt.Sprintf("week of %s is within one duty of the limit of %.0f", week.Start, limit),
				AffectedDates: dutyDates(week),
				AffectedWeek:  week.Number,
				CurrentValue:  f64(total),
				LimitValue:    f64(limit),
			})
		}
	}
	return out
}

// evalDailyRest checks the rest interval between the latest end of one day
// and the earliest start of the next. Untimed duties assume the configured
// default duration.
func evalDailyRest(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	minRest := time.Duration(ev.Cfg.Rest.DailyRestHours * float64(time.Hour))
	for i := 0; i+1 < len(ev.Days); i++ {
		day, next := ev.Days[i], ev.Days[i+1]
		if !consecutiveDates(day.Date, next.Date) {
			continue
		}
		end, okEnd := latestEnd(ev.Cfg, day)
		start, okStart := earliestStart(next)
		if !okEnd || !okStart {
			continue
		}
		rest := start.Sub(end)
		if rest >= minRest {
			continue
		}
		severity := domain.SeverityError
		if possibleOnly(day) || possibleOnly(next) {
			severity = domain.SeverityWarning
		}
		out = append(out, domain.Violation{
			Severity:      severity,
			Message:       fmt.Sprintf("only %.1f hours rest between %s and %s, %.0f required", rest.Hours(), day.Date, next.Date, minRest.Hours()),
			AffectedDates: []string{day.Date, next.Date},
			CurrentValue:  f64(rest.Hours()),
			LimitValue:    f64(minRest.Hours()),
			Suggestion:    "start the later duty later or end the earlier one sooner",
		})
	}
	return out
}

func evalDailyCap(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	maxPerDay := ev.Cfg.Limits.MaxPerDay
	for _, day := range ev.Days {
		counted, binding := 0, 0
		for _, d := range day.Duties {
			if d.Type.IsFree() {
				continue
			}
			counted++
			if d.Status.Binding() {
				binding++
			}
		}
		if counted <= maxPerDay {
			continue
		}
		severity := domain.SeverityWarning
		if binding > maxPerDay {
			severity = domain.SeverityError
		}
		out = append(out, domain.Violation{
			Severity:      severity,
			Message:       fmt.Sprintf("%d duties on %s exceed the daily maximum of %d", counted, day.Date, maxPerDay),
			AffectedDates: []string{day.Date},
			CurrentValue:  f64(float64(counted)),
			LimitValue:    f64(float64(maxPerDay)),
		})
	}
	return out
}

func evalSameDayBreak(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	minBreak := time.Duration(ev.Cfg.Rest.SameDayBreakMinutes) * time.Minute
	for _, day := range ev.Days {
		timed := timedDuties(day)
		for i := 0; i+1 < len(timed); i++ {
			end, ok := endTime(ev.Cfg, timed[i])
			if !ok {
				continue
			}
			start, ok := parseClock(timed[i+1].StartTime)
			if !ok {
				continue
			}
			gap := start.Sub(end)
			if gap >= minBreak {
				continue
			}
			out = append(out, domain.Violation{
				Severity:      domain.SeverityWarning,
				Message:       fmt.Sprintf("only %.0f minutes break between duties on %s, %.0f required", gap.Minutes(), day.Date, minBreak.Minutes()),
				AffectedDates: []string{day.Date},
				CurrentValue:  f64(gap.Minutes()),
				LimitValue:    f64(minBreak.Minutes()),
			})
		}
	}
	return out
}

func evalRehearsalWindow(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	earliest, okE := parseClock(&ev.Cfg.Timing.EarliestRehearsalStart)
	latest, okL := parseClock(&ev.Cfg.Timing.LatestRehearsalEnd)
	if !okE || !okL {
		return nil
	}
	for _, d := range ev.Duties {
		if !d.Type.IsRehearsal() {
			continue
		}
		start, okS := parseClock(d.StartTime)
		if okS && start.Before(earliest) {
			out = append(out, domain.Violation{
				Severity:      domain.SeverityWarning,
				Message:       fmt.Sprintf("rehearsal on %s starts at %s, before %s", d.Date, *d.StartTime, ev.Cfg.Timing.EarliestRehearsalStart),
				AffectedDates: []string{d.Date},
			})
		}
		end, okEnd := parseClock(d.EndTime)
		if okEnd && end.After(latest) {
			out = append(out, domain.Violation{
				Severity:      domain.SeverityWarning,
				Message:       fmt.Sprintf("rehearsal on %s ends at %s, after %s", d.Date, *d.EndTime, ev.Cfg.Timing.LatestRehearsalEnd),
				AffectedDates: []string{d.Date},
			})
		}
	}
	return out
}

func evalConsecutiveConcerts(ev *Evaluation) []domain.Violation {
	maxDays := ev.Cfg.Limits.MaxConcertDays
	if maxDays <= 0 {
		return nil
	}
	var out []domain.Violation
	var run []string
	binding := false
	flush := func() {
		if len(run) > maxDays {
			severity := domain.SeverityWarning
			if binding {
				severity = domain.SeverityError
			}
			dates := make([]string, len(run))
			copy(dates, run)
			out = append(out, domain.Violation{
				Severity:      severity,
				Message:       fmt.Sprintf("%d consecutive concert days from %s exceed the maximum of %d", len(run), run[0], maxDays),
				AffectedDates: dates,
				CurrentValue:  f64(float64(len(run))),
				LimitValue:    f64(float64(maxDays)),
			})
		}
		run = nil
		binding = false
	}
	for _, day := range ev.Days {
		concert, dayBinding := concertDay(day)
		if !concert {
			flush()
			continue
		}
		if len(run) > 0 && !consecutiveDates(run[len(run)-1], day.Date) {
			flush()
		}
		run = append(run, day.Date)
		binding = binding || dayBinding
	}
	flush()
	return out
}

// evalFreeDay requires at least one day without counted duties in every full
// week. A week whose only relief is a tentative day warns instead of erring.
func evalFreeDay(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	for _, week := range ev.Weeks {
		if len(week.Days) < 7 {
			continue
		}
		free, tentativeRelief := false, false
		for _, day := range week.Days {
			if day.Free || len(day.Duties) == 0 {
				free = true
				break
			}
			if possibleOnly(day) {
				tentativeRelief = true
			}
		}
		if free {
			continue
		}
		severity := domain.SeverityError
		suggestion := "clear one day of this week"
		if tentativeRelief {
			severity = domain.SeverityWarning
			suggestion = "keep the tentative day unconfirmed or clear another day"
		}
		out = append(out, domain.Violation{
			Severity:      severity,
			Message:       fmt.Sprintf("week of %s has no free day", week.Start),
			AffectedDates: dutyDates(week),
			AffectedWeek:  week.Number,
			Suggestion:    suggestion,
		})
	}
	return out
}

func evalSundayDuty(ev *Evaluation) []domain.Violation {
	var out []domain.Violation
	for _, day := range ev.Days {
		if len(day.Duties) == 0 || day.Free {
			continue
		}
		t, err := schedule.ParseDate(day.Date)
		if err != nil || t.Weekday() != time.Sunday {
			continue
		}
		out = append(out, domain.Violation{
			Severity:      domain.SeverityInfo,
			Message:       fmt.Sprintf("duty on Sunday %s", day.Date),
			AffectedDates: []string{day.Date},
		})
	}
	return out
}

func bindingTotal(cfg *config.Config, week schedule.Week) float64 {
	var total float64
	for _, day := range week.Days {
		var binding []domain.Duty
		for _, d := range day.Duties {
			if d.Status.Binding() {
				binding = append(binding, d)
			}
		}
		total += schedule.ComputeDayLoad(cfg, day.Date, binding).Weight
	}
	return total
}

func chamberFormations(week schedule.Week) []domain.Formation {
	seen := map[domain.Formation]bool{}
	var res []domain.Formation
	for _, day := range week.Days {
		for _, d := range day.Duties {
			if d.Formation.Chamber() && !seen[d.Formation] {
				seen[d.Formation] = true
				res = append(res, d.Formation)
			}
		}
	}
	return res
}

func scopedWeek(cfg *config.Config, week schedule.Week, formation domain.Formation) schedule.Week {
	scoped := schedule.Week{Number: week.Number, Start: week.Start, End: week.End}
	for _, day := range week.Days {
		var duties []domain.Duty
		for _, d := range day.Duties {
			if d.Formation == formation {
				duties = append(duties, d)
			}
		}
		scoped.Days = append(scoped.Days, schedule.ComputeDayLoad(cfg, day.Date, duties))
	}
	return scoped
}

func dutyDates(week schedule.Week) []string {
	var dates []string
	for _, day := range week.Days {
		if len(day.Duties) > 0 && !day.Free {
			dates = append(dates, day.Date)
		}
	}
	return dates
}

func possibleOnly(day schedule.DayLoad) bool {
	any := false
	for _, d := range day.Duties {
		if d.Type.IsFree() {
			continue
		}
		any = true
		if d.Status != domain.StatusPossible {
			return false
		}
	}
	return any
}

func concertDay(day schedule.DayLoad) (concert, binding bool) {
	for _, d := range day.Duties {
		if d.Type.IsConcert() {
			concert = true
			if d.Status.Binding() {
				binding = true
			}
		}
	}
	return concert, binding
}

func timedDuties(day schedule.DayLoad) []domain.Duty {
	var res []domain.Duty
	for _, d := range day.Duties {
		if d.StartTime != nil && !d.Type.IsFree() {
			res = append(res, d)
		}
	}
	return res
}

func latestEnd(cfg *config.Config, day schedule.DayLoad) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, d := range day.Duties {
		if d.Type.IsFree() {
			continue
		}
		end, ok := endTime(cfg, d)
		if !ok {
			continue
		}
		if !found || end.After(latest) {
			latest = end
			found = true
		}
	}
	return latest, found
}

func earliestStart(day schedule.DayLoad) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, d := range day.Duties {
		if d.Type.IsFree() {
			continue
		}
		start, ok := parseClock(d.StartTime)
		if !ok {
			continue
		}
		// Shift to the next day so rest spans midnight correctly.
		start = start.AddDate(0, 0, 1)
		if !found || start.Before(earliest) {
			earliest = start
			found = true
		}
	}
	return earliest, found
}

func endTime(cfg *config.Config, d domain.Duty) (time.Time, bool) {
	if end, ok := parseClock(d.EndTime); ok {
		return end, true
	}
	start, ok := parseClock(d.StartTime)
	if !ok {
		return time.Time{}, false
	}
	return start.Add(time.Duration(cfg.Timing.DefaultDurationMinutes) * time.Minute), true
}

func consecutiveDates(a, b string) bool {
	ta, errA := schedule.ParseDate(a)
	tb, errB := schedule.ParseDate(b)
	if errA != nil || errB != nil {
		return false
	}
	return ta.AddDate(0, 0, 1).Equal(tb)
}

func parseClock(s *string) (time.Time, bool) {
	if s == nil || *s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", *s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func f64(v float64) *float64 {
	return &v
}
