package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/domain"
)

const dateLayout = "2006-01-02"

// ParseDate parses the storage date format.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a day in the storage date format.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// WeekStart normalizes a day to the Monday that opens its week. Weeks always
// run Monday through Sunday regardless of locale.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// DayLoad is the weighted duty load of one calendar day.
type DayLoad struct {
	Date        string
	Duties      []domain.Duty
	Weight      float64
	Provisional bool
	Free        bool
}

// Week is a Monday-through-Sunday window of day loads.
type Week struct {
	Number int
	Start  string
	End    string
	Days   []DayLoad
}

// Total sums the weighted loads of all days in the week.
func (w Week) Total() float64 {
	var total float64
	for _, d := range w.Days {
		total += d.Weight
	}
	return total
}

// Provisional reports whether any counted duty in the week is provisional
// (planned or possible).
func (w Week) Provisional() bool {
	for _, d := range w.Days {
		if d.Provisional {
			return true
		}
	}
	return false
}

// HasFreeDay reports whether at least one day of the week carries no counted
// duty or is explicitly marked free.
func (w Week) HasFreeDay() bool {
	for _, d := range w.Days {
		if d.Free || (len(d.Duties) == 0 && d.Weight == 0) {
			return true
		}
	}
	return len(w.Days) < 7
}

// ByType breaks the week's weighted load down per duty type.
func (w Week) ByType() map[domain.DutyType]float64 {
	res := map[domain.DutyType]float64{}
	for _, day := range w.Days {
		if len(day.Duties) == 0 || day.Weight == 0 {
			continue
		}
		share := day.Weight / float64(len(day.Duties))
		for _, d := range day.Duties {
			res[d.Type] += share
		}
	}
	return res
}

// BuildWeeks groups duties into Monday-start weeks covering [from,to]. Duties
// outside the range are ignored. Days without duties inside the range appear
// as empty DayLoads so free-day rules can see them.
func BuildWeeks(cfg *config.Config, duties []domain.Duty, from, to time.Time) []Week {
	byDate := map[string][]domain.Duty{}
	for _, d := range duties {
		t, err := ParseDate(d.Date)
		if err != nil || t.Before(from) || t.After(to) {
			continue
		}
		byDate[d.Date] = append(byDate[d.Date], d)
	}

	var weeks []Week
	for ws := WeekStart(from); !ws.After(to); ws = ws.AddDate(0, 0, 7) {
		_, num := ws.ISOWeek()
		week := Week{
			Number: num,
			Start:  FormatDate(ws),
			End:    FormatDate(ws.AddDate(0, 0, 6)),
		}
		for i := 0; i < 7; i++ {
			day := ws.AddDate(0, 0, i)
			if day.Before(from) || day.After(to) {
				continue
			}
			date := FormatDate(day)
			week.Days = append(week.Days, ComputeDayLoad(cfg, date, byDate[date]))
		}
		weeks = append(weeks, week)
	}
	return weeks
}

// ComputeDayLoad derives the weighted load of one day from its duties.
//
// Free, vacation and travel-compensation days count zero. A day consisting
// only of travel counts the configured travel value. A warm-up followed by a
// concert is one combined service. Otherwise each duty contributes its base
// value (long sessions count double, a lone warm-up counts half) scaled by
// its status weight. Duties are considered in start-time order, not in the
// order they arrive.
func ComputeDayLoad(cfg *config.Config, date string, duties []domain.Duty) DayLoad {
	if len(duties) > 1 {
		duties = append([]domain.Duty(nil), duties...)
		sort.SliceStable(duties, func(i, j int) bool {
			return startSortKey(duties[i]) < startSortKey(duties[j])
		})
	}
	load := DayLoad{Date: date, Duties: duties}
	if len(duties) == 0 {
		return load
	}

	allFree := true
	allTravel := true
	for _, d := range duties {
		if !d.Type.IsFree() {
			allFree = false
		}
		if d.Type != domain.TypeTravel {
			allTravel = false
		}
		if d.Status != domain.StatusFixed && !d.Type.IsFree() {
			load.Provisional = true
		}
	}
	if allFree {
		load.Free = true
		return load
	}
	if allTravel {
		load.Weight = cfg.Weights.TravelDay * maxStatusWeight(cfg, duties)
		return load
	}

	if len(duties) == 2 && duties[0].Type == domain.TypeWarmup && duties[1].Type.IsConcert() {
		load.Weight = cfg.Weights.WarmupConcert * maxStatusWeight(cfg, duties)
		return load
	}

	for _, d := range duties {
		if d.Type.IsFree() {
			continue
		}
		load.Weight += dutyBaseValue(cfg, d) * cfg.StatusWeight(string(d.Status))
	}
	return load
}

func dutyBaseValue(cfg *config.Config, d domain.Duty) float64 {
	if d.Type == domain.TypeWarmup {
		return cfg.Weights.WarmupAlone
	}
	if minutes, ok := durationMinutes(d); ok && minutes > cfg.Weights.LongSessionMinutes {
		return cfg.Weights.LongSession
	}
	return 1
}

// Untimed duties sort last, matching the storage order.
func startSortKey(d domain.Duty) string {
	if d.StartTime == nil {
		return "99:99"
	}
	return *d.StartTime
}

func maxStatusWeight(cfg *config.Config, duties []domain.Duty) float64 {
	var w float64
	for _, d := range duties {
		if sw := cfg.StatusWeight(string(d.Status)); sw > w {
			w = sw
		}
	}
	return w
}

func durationMinutes(d domain.Duty) (int, bool) {
	if d.StartTime == nil || d.EndTime == nil {
		return 0, false
	}
	start, err := time.Parse("15:04", *d.StartTime)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse("15:04", *d.EndTime)
	if err != nil {
		return 0, false
	}
	minutes := int(end.Sub(start).Minutes())
	if minutes <= 0 {
		return 0, false
	}
	return minutes, true
}
