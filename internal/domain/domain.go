package domain

// DutyStatus is the commitment level of a duty. Only fixed duties are
// binding under the collective agreement; planned duties are provisional
// and possible duties are tentative.
type DutyStatus string

const (
	StatusFixed    DutyStatus = "fixed"
	StatusPlanned  DutyStatus = "planned"
	StatusPossible DutyStatus = "possible"
)

func (s DutyStatus) Valid() bool {
	switch s {
	case StatusFixed, StatusPlanned, StatusPossible:
		return true
	}
	return false
}

// Binding reports whether the duty counts as committed (fixed or planned).
func (s DutyStatus) Binding() bool {
	return s == StatusFixed || s == StatusPlanned
}

// DutyType classifies a duty.
type DutyType string

const (
	TypeRehearsal      DutyType = "rehearsal"
	TypeDressRehearsal DutyType = "dress_rehearsal"
	TypeStageRehearsal DutyType = "stage_rehearsal"
	TypeWarmup         DutyType = "warmup"
	TypeConcert        DutyType = "concert"
	TypeSubscription   DutyType = "subscription_concert"
	TypeSchoolConcert  DutyType = "school_concert"
	TypeGuestConcert   DutyType = "guest_performance"
	TypeRecording      DutyType = "recording"
	TypeMeeting        DutyType = "meeting"
	TypeAudition       DutyType = "audition"
	TypeTravel         DutyType = "travel"
	TypeTravelOffset   DutyType = "travel_compensation"
	TypeFree           DutyType = "free"
	TypeVacation       DutyType = "vacation"
	TypeOther          DutyType = "other"
)

// IsRehearsal reports whether the type is one of the rehearsal variants.
func (t DutyType) IsRehearsal() bool {
	switch t {
	case TypeRehearsal, TypeDressRehearsal, TypeStageRehearsal, TypeWarmup:
		return true
	}
	return false
}

// IsConcert reports whether the type is a performance in front of an audience.
func (t DutyType) IsConcert() bool {
	switch t {
	case TypeConcert, TypeSubscription, TypeSchoolConcert, TypeGuestConcert:
		return true
	}
	return false
}

// IsFree reports whether the type releases the day from duty counting.
func (t DutyType) IsFree() bool {
	switch t {
	case TypeFree, TypeVacation, TypeTravelOffset:
		return true
	}
	return false
}

// Formation is the sub-ensemble a duty applies to.
type Formation string

const (
	FormationTutti           Formation = "tutti"
	FormationBrassEnsemble   Formation = "brass_ensemble"
	FormationWindQuintet     Formation = "wind_quintet"
	FormationClarinetQuartet Formation = "clarinet_quartet"
	FormationBrassQuartet    Formation = "brass_quartet"
	FormationSerenade        Formation = "serenade"
	FormationWoodwind        Formation = "woodwind"
	FormationBrass           Formation = "brass"
	FormationPercussion      Formation = "percussion"
	FormationDoubleBass      Formation = "double_bass"
	FormationCommittee       Formation = "committee"
	FormationUnknown         Formation = "unknown"
)

// Chamber reports whether the formation is a membership-based chamber group.
func (f Formation) Chamber() bool {
	switch f {
	case FormationWindQuintet, FormationClarinetQuartet, FormationBrassQuartet, FormationSerenade:
		return true
	}
	return false
}

// Duty is a single scheduled commitment on a date, optionally timed.
// Dates are "2006-01-02", times "15:04".
type Duty struct {
	ID        string     `json:"id"`
	SeasonID  string     `json:"season_id"`
	Date      string     `json:"date" format:"date"`
	StartTime *string    `json:"start_time,omitempty"`
	EndTime   *string    `json:"end_time,omitempty"`
	Type      DutyType   `json:"type"`
	Formation Formation  `json:"formation"`
	Status    DutyStatus `json:"status" enum:"fixed,planned,possible"`
	Program   string     `json:"program,omitempty"`
	Venue     string     `json:"venue,omitempty"`
	Conductor string     `json:"conductor,omitempty"`
	DressCode string     `json:"dress_code,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt string     `json:"created_at" format:"date-time"`
	UpdatedAt string     `json:"updated_at" format:"date-time"`
}

// Season defines the validity window for week computation and generation.
type Season struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	IsActive  bool   `json:"is_active"`
	DutyCount int    `json:"duty_count"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Musician is one roster slot, possibly vacant.
type Musician struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Position  string   `json:"position"`
	Register  string   `json:"register"`
	Group     string   `json:"group" enum:"wood,brass"`
	Share     int      `json:"share"`
	Extra     string   `json:"extra,omitempty"`
	IsVacant  bool     `json:"is_vacant"`
	SortOrder int      `json:"sort_order"`
	Ensembles []string `json:"ensembles,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// DisplayName renders vacant slots by position.
func (m Musician) DisplayName() string {
	if m.IsVacant {
		return "vacant (" + m.Position + ")"
	}
	return m.Name
}

// Severity grades a rule violation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Rank orders severities for aggregation (higher is worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 0
	}
	return -1
}

// Violation is one rule outcome. Produced fresh per validation, never stored.
type Violation struct {
	RuleID        string   `json:"rule_id"`
	RuleName      string   `json:"rule_name"`
	Severity      Severity `json:"severity" enum:"info,warning,error"`
	Message       string   `json:"message"`
	Clause        string   `json:"clause,omitempty"`
	AffectedDates []string `json:"affected_dates,omitempty"`
	AffectedWeek  int      `json:"affected_week,omitempty"`
	CurrentValue  *float64 `json:"current_value,omitempty"`
	LimitValue    *float64 `json:"limit_value,omitempty"`
	Suggestion    string   `json:"suggestion,omitempty"`
}

// ValidationSummary counts violations by severity and weighted duties by type.
type ValidationSummary struct {
	Total    int                  `json:"total"`
	Errors   int                  `json:"errors"`
	Warnings int                  `json:"warnings"`
	Infos    int                  `json:"infos"`
	ByType   map[DutyType]float64 `json:"by_type,omitempty"`
}

// ValidationResult is the transient outcome of one validation call.
type ValidationResult struct {
	Status        string            `json:"status" enum:"ok,warning,error"`
	WeekStart     string            `json:"week_start" format:"date"`
	WeekEnd       string            `json:"week_end" format:"date"`
	TotalWeighted float64           `json:"total_weighted"`
	Limit         float64           `json:"limit"`
	Provisional   bool              `json:"provisional"`
	Violations    []Violation       `json:"violations"`
	Summary       ValidationSummary `json:"summary"`
}

// Event is one append-only audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SeasonID   string `json:"season_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
}

// PlanStatus is the generation lifecycle state.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanGenerating PlanStatus = "generating"
	PlanReady      PlanStatus = "ready"
	PlanError      PlanStatus = "error"
)

// GeneratedPlan is one generation run with its artifacts.
type GeneratedPlan struct {
	ID               string                  `json:"id"`
	SeasonID         *string                 `json:"season_id,omitempty"`
	PlanStart        string                  `json:"plan_start" format:"date"`
	PlanEnd          string                  `json:"plan_end" format:"date"`
	Status           PlanStatus              `json:"status" enum:"pending,generating,ready,error"`
	ErrorCause       string                  `json:"error_cause,omitempty"`
	HasCollectiveDoc bool                    `json:"has_collective_doc"`
	HasCollectivePDF bool                    `json:"has_collective_pdf"`
	IndividualCount  int                     `json:"individual_count"`
	CreatedAt        string                  `json:"created_at" format:"date-time"`
	Individuals      []IndividualPlanSummary `json:"individuals,omitempty"`
}

// IndividualPlanSummary is one member's slice of a GeneratedPlan.
// Artifact failures are recorded here and never escalate to the parent.
type IndividualPlanSummary struct {
	ID           string  `json:"id"`
	PlanID       string  `json:"plan_id"`
	MusicianID   *string `json:"musician_id,omitempty"`
	DisplayName  string  `json:"display_name"`
	IsVacant     bool    `json:"is_vacant"`
	HasDoc       bool    `json:"has_doc"`
	HasPDF       bool    `json:"has_pdf"`
	FailureCause string  `json:"failure_cause,omitempty"`
}

// SortKey orders individual plans by last name, vacancies last.
func (p IndividualPlanSummary) SortKey() string {
	if p.IsVacant {
		return "zzz_" + p.DisplayName
	}
	return lastNameFirst(p.DisplayName)
}

func lastNameFirst(name string) string {
	last := ""
	first := ""
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == ' ' {
			if start < i {
				if last != "" {
					first = last
				}
				last = name[start:i]
			}
			start = i + 1
		}
	}
	if last == "" {
		return name
	}
	return last + "_" + first
}
