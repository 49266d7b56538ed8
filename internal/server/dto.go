package server

import (
	"github.com/ChristianSBP/sbp-services/internal/domain"
)

type seasonBody struct {
	Name      string `json:"name" minLength:"1"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	IsActive  bool   `json:"is_active,omitempty"`
}

type dutyBody struct {
	SeasonID  string  `json:"season_id,omitempty"`
	Date      string  `json:"date" format:"date"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Type      string  `json:"type" minLength:"1"`
	Formation string  `json:"formation,omitempty"`
	Status    string  `json:"status" enum:"fixed,planned,possible"`
	Program   string  `json:"program,omitempty"`
	Venue     string  `json:"venue,omitempty"`
	Conductor string  `json:"conductor,omitempty"`
	DressCode string  `json:"dress_code,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

func (b dutyBody) toDuty() domain.Duty {
	formation := b.Formation
	if formation == "" {
		formation = string(domain.FormationTutti)
	}
	return domain.Duty{
		SeasonID:  b.SeasonID,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Type:      domain.DutyType(b.Type),
		Formation: domain.Formation(formation),
		Status:    domain.DutyStatus(b.Status),
		Program:   b.Program,
		Venue:     b.Venue,
		Conductor: b.Conductor,
		DressCode: b.DressCode,
		Notes:     b.Notes,
	}
}

// validateBody repeats the duty fields inline; huma does not see fields of
// embedded unexported structs, so sharing dutyBody by embedding would drop
// them from the schema.
type validateBody struct {
	ID        string  `json:"id,omitempty"`
	SeasonID  string  `json:"season_id,omitempty"`
	Date      string  `json:"date" format:"date"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Type      string  `json:"type" minLength:"1"`
	Formation string  `json:"formation,omitempty"`
	Status    string  `json:"status" enum:"fixed,planned,possible"`
	Program   string  `json:"program,omitempty"`
	Venue     string  `json:"venue,omitempty"`
	Conductor string  `json:"conductor,omitempty"`
	DressCode string  `json:"dress_code,omitempty"`
	Notes     string  `json:"notes,omitempty"`
}

func (b validateBody) toDuty() domain.Duty {
	d := dutyBody{
		SeasonID:  b.SeasonID,
		Date:      b.Date,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Type:      b.Type,
		Formation: b.Formation,
		Status:    b.Status,
		Program:   b.Program,
		Venue:     b.Venue,
		Conductor: b.Conductor,
		DressCode: b.DressCode,
		Notes:     b.Notes,
	}.toDuty()
	d.ID = b.ID
	return d
}

type musicianBody struct {
	Name      string   `json:"name,omitempty"`
	Position  string   `json:"position,omitempty"`
	Register  string   `json:"register,omitempty"`
	Group     string   `json:"group,omitempty" enum:",wood,brass"`
	Share     int      `json:"share,omitempty" minimum:"0" maximum:"100"`
	Extra     string   `json:"extra,omitempty"`
	IsVacant  bool     `json:"is_vacant,omitempty"`
	SortOrder int      `json:"sort_order,omitempty"`
	Ensembles []string `json:"ensembles,omitempty"`
}

func (b musicianBody) toMusician() domain.Musician {
	share := b.Share
	if share == 0 {
		share = 100
	}
	return domain.Musician{
		Name:      b.Name,
		Position:  b.Position,
		Register:  b.Register,
		Group:     b.Group,
		Share:     share,
		Extra:     b.Extra,
		IsVacant:  b.IsVacant,
		SortOrder: b.SortOrder,
		Ensembles: b.Ensembles,
	}
}

type generateBody struct {
	SeasonID string `json:"season_id,omitempty"`
	From     string `json:"from,omitempty" format:"date"`
	To       string `json:"to,omitempty" format:"date"`
}
