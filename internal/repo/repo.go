package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ChristianSBP/sbp-services/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertSeason(ctx context.Context, s domain.Season) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO seasons(id,name,start_date,end_date,is_active,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.Name, s.StartDate, s.EndDate, boolInt(s.IsActive), s.CreatedAt)
	return err
}

func (r Repo) GetSeason(ctx context.Context, id string) (domain.Season, error) {
	var s domain.Season
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT s.id,s.name,s.start_date,s.end_date,s.is_active,s.created_at,
(SELECT COUNT(*) FROM duties d WHERE d.season_id=s.id) FROM seasons s WHERE s.id=?`, id).
		Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &active, &s.CreatedAt, &s.DutyCount)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.IsActive = active != 0
	return s, err
}

func (r Repo) ActiveSeason(ctx context.Context) (domain.Season, error) {
	var s domain.Season
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT s.id,s.name,s.start_date,s.end_date,s.is_active,s.created_at,
(SELECT COUNT(*) FROM duties d WHERE d.season_id=s.id) FROM seasons s WHERE s.is_active=1 ORDER BY s.start_date DESC LIMIT 1`).
		Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &active, &s.CreatedAt, &s.DutyCount)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.IsActive = active != 0
	return s, err
}

func (r Repo) ListSeasons(ctx context.Context) ([]domain.Season, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT s.id,s.name,s.start_date,s.end_date,s.is_active,s.created_at,
(SELECT COUNT(*) FROM duties d WHERE d.season_id=s.id) FROM seasons s ORDER BY s.start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Season
	for rows.Next() {
		var s domain.Season
		var active int
		if err := rows.Scan(&s.ID, &s.Name, &s.StartDate, &s.EndDate, &active, &s.CreatedAt, &s.DutyCount); err != nil {
			return nil, err
		}
		s.IsActive = active != 0
		res = append(res, s)
	}
	return res, rows.Err()
}

// SetActiveSeason flips the active flag to exactly one season.
func (r Repo) SetActiveSeason(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE seasons SET is_active=0 WHERE is_active=1`); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE seasons SET is_active=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (r Repo) DeleteSeason(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM seasons WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertDuty(ctx context.Context, tx *sql.Tx, d domain.Duty) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO duties(id,season_id,date,start_time,end_time,type,formation,status,program,venue,conductor,dress_code,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.SeasonID, d.Date, nullableStringPtr(d.StartTime), nullableStringPtr(d.EndTime),
		string(d.Type), string(d.Formation), string(d.Status),
		d.Program, d.Venue, d.Conductor, d.DressCode, d.Notes, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) UpdateDuty(ctx context.Context, tx *sql.Tx, d domain.Duty) error {
	res, err := tx.ExecContext(ctx, `UPDATE duties SET date=?, start_time=?, end_time=?, type=?, formation=?, status=?, program=?, venue=?, conductor=?, dress_code=?, notes=?, updated_at=? WHERE id=?`,
		d.Date, nullableStringPtr(d.StartTime), nullableStringPtr(d.EndTime),
		string(d.Type), string(d.Formation), string(d.Status),
		d.Program, d.Venue, d.Conductor, d.DressCode, d.Notes, d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteDuty(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM duties WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const dutyColumns = `id,season_id,date,start_time,end_time,type,formation,status,program,venue,conductor,dress_code,notes,created_at,updated_at`

func scanDuty(scan func(dest ...any) error) (domain.Duty, error) {
	var d domain.Duty
	var start, end sql.NullString
	err := scan(&d.ID, &d.SeasonID, &d.Date, &start, &end, &d.Type, &d.Formation, &d.Status,
		&d.Program, &d.Venue, &d.Conductor, &d.DressCode, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if start.Valid {
		d.StartTime = &start.String
	}
	if end.Valid {
		d.EndTime = &end.String
	}
	return d, nil
}

func (r Repo) GetDuty(ctx context.Context, id string) (domain.Duty, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dutyColumns+` FROM duties WHERE id=?`, id)
	d, err := scanDuty(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

type DutyFilters struct {
	SeasonID  string
	DateFrom  string
	DateTo    string
	Status    string
	Formation string
}

// ListDuties returns duties ordered by date then start time, which is the
// order every consumer (validation windows, plan rows) relies on.
func (r Repo) ListDuties(ctx context.Context, f DutyFilters) ([]domain.Duty, error) {
	var clauses []string
	var args []any
	if f.SeasonID != "" {
		clauses = append(clauses, "season_id=?")
		args = append(args, f.SeasonID)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, "date>=?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "date<=?")
		args = append(args, f.DateTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Formation != "" {
		clauses = append(clauses, "formation=?")
		args = append(args, f.Formation)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + dutyColumns + ` FROM duties ` + where + ` ORDER BY date ASC, COALESCE(start_time,'99:99') ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Duty
	for rows.Next() {
		d, err := scanDuty(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) InsertMusician(ctx context.Context, m domain.Musician) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO musicians(id,name,position,register,grp,share,extra,is_vacant,sort_order,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Name, m.Position, m.Register, m.Group, m.Share, m.Extra, boolInt(m.IsVacant), m.SortOrder, m.CreatedAt); err != nil {
		return err
	}
	for _, e := range m.Ensembles {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO musician_ensembles(musician_id,ensemble) VALUES (?,?)`, m.ID, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r Repo) UpdateMusician(ctx context.Context, m domain.Musician) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE musicians SET name=?, position=?, register=?, grp=?, share=?, extra=?, is_vacant=?, sort_order=? WHERE id=?`,
		m.Name, m.Position, m.Register, m.Group, m.Share, m.Extra, boolInt(m.IsVacant), m.SortOrder, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM musician_ensembles WHERE musician_id=?`, m.ID); err != nil {
		return err
	}
	for _, e := range m.Ensembles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO musician_ensembles(musician_id,ensemble) VALUES (?,?)`, m.ID, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r Repo) DeleteMusician(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM musicians WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetMusician(ctx context.Context, id string) (domain.Musician, error) {
	var m domain.Musician
	var vacant int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,position,register,grp,share,extra,is_vacant,sort_order,created_at FROM musicians WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.Position, &m.Register, &m.Group, &m.Share, &m.Extra, &vacant, &m.SortOrder, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.IsVacant = vacant != 0
	m.Ensembles, err = r.listEnsembles(ctx, m.ID)
	return m, err
}

// ListMusicians returns the full roster, vacant slots included, in seating
// order. This is the membership source for individual plan generation.
func (r Repo) ListMusicians(ctx context.Context) ([]domain.Musician, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,position,register,grp,share,extra,is_vacant,sort_order,created_at FROM musicians ORDER BY sort_order ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Musician
	for rows.Next() {
		var m domain.Musician
		var vacant int
		if err := rows.Scan(&m.ID, &m.Name, &m.Position, &m.Register, &m.Group, &m.Share, &m.Extra, &vacant, &m.SortOrder, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.IsVacant = vacant != 0
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		ens, err := r.listEnsembles(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Ensembles = ens
	}
	return res, nil
}

func (r Repo) listEnsembles(ctx context.Context, musicianID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ensemble FROM musician_ensembles WHERE musician_id=? ORDER BY ensemble`, musicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertPlan(ctx context.Context, tx *sql.Tx, p domain.GeneratedPlan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO generated_plans(id,season_id,plan_start,plan_end,status,error_cause,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, nullableStringPtr(p.SeasonID), p.PlanStart, p.PlanEnd, string(p.Status), p.ErrorCause, p.CreatedAt)
	return err
}

func (r Repo) UpdatePlanStatus(ctx context.Context, tx *sql.Tx, id string, status domain.PlanStatus, errorCause string) error {
	res, err := tx.ExecContext(ctx, `UPDATE generated_plans SET status=?, error_cause=? WHERE id=?`, string(status), errorCause, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SaveCollectiveArtifacts(ctx context.Context, tx *sql.Tx, id string, doc, pdf []byte, violationsJSON string) error {
	res, err := tx.ExecContext(ctx, `UPDATE generated_plans SET collective_doc=?, collective_pdf=?, violations_json=? WHERE id=?`,
		doc, pdf, violationsJSON, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertIndividual(ctx context.Context, tx *sql.Tx, p domain.IndividualPlanSummary, doc, pdf []byte) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO individual_plans(id,plan_id,musician_id,display_name,is_vacant,doc_data,pdf_data,failure_cause) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.PlanID, nullableStringPtr(p.MusicianID), p.DisplayName, boolInt(p.IsVacant), doc, pdf, p.FailureCause)
	return err
}

func scanPlan(scan func(dest ...any) error) (domain.GeneratedPlan, error) {
	var p domain.GeneratedPlan
	var seasonID sql.NullString
	var hasDoc, hasPDF int
	err := scan(&p.ID, &seasonID, &p.PlanStart, &p.PlanEnd, &p.Status, &p.ErrorCause, &hasDoc, &hasPDF, &p.IndividualCount, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if seasonID.Valid {
		p.SeasonID = &seasonID.String
	}
	p.HasCollectiveDoc = hasDoc != 0
	p.HasCollectivePDF = hasPDF != 0
	return p, nil
}

const planColumns = `p.id,p.season_id,p.plan_start,p.plan_end,p.status,p.error_cause,
p.collective_doc IS NOT NULL, p.collective_pdf IS NOT NULL,
(SELECT COUNT(*) FROM individual_plans i WHERE i.plan_id=p.id), p.created_at`

func (r Repo) GetPlan(ctx context.Context, id string) (domain.GeneratedPlan, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM generated_plans p WHERE p.id=?`, id)
	p, err := scanPlan(row.Scan)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Individuals, err = r.ListIndividuals(ctx, id)
	return p, err
}

func (r Repo) ListPlans(ctx context.Context, limit int) ([]domain.GeneratedPlan, error) {
	query := `SELECT ` + planColumns + ` FROM generated_plans p ORDER BY p.created_at DESC, p.id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GeneratedPlan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListIndividuals(ctx context.Context, planID string) ([]domain.IndividualPlanSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,plan_id,musician_id,display_name,is_vacant,doc_data IS NOT NULL,pdf_data IS NOT NULL,failure_cause
FROM individual_plans WHERE plan_id=? ORDER BY is_vacant ASC, display_name ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IndividualPlanSummary
	for rows.Next() {
		var p domain.IndividualPlanSummary
		var musicianID sql.NullString
		var vacant, hasDoc, hasPDF int
		if err := rows.Scan(&p.ID, &p.PlanID, &musicianID, &p.DisplayName, &vacant, &hasDoc, &hasPDF, &p.FailureCause); err != nil {
			return nil, err
		}
		if musicianID.Valid {
			p.MusicianID = &musicianID.String
		}
		p.IsVacant = vacant != 0
		p.HasDoc = hasDoc != 0
		p.HasPDF = hasPDF != 0
		res = append(res, p)
	}
	return res, rows.Err()
}

// CollectiveArtifact returns a stored collective document or pdf by kind.
func (r Repo) CollectiveArtifact(ctx context.Context, planID, kind string) ([]byte, error) {
	var column string
	switch kind {
	case "doc":
		column = "collective_doc"
	case "pdf":
		column = "collective_pdf"
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
	var data []byte
	err := r.DB.QueryRowContext(ctx, `SELECT `+column+` FROM generated_plans WHERE id=?`, planID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}

// IndividualArtifact returns a stored per-member document or pdf by kind.
func (r Repo) IndividualArtifact(ctx context.Context, individualID, kind string) ([]byte, error) {
	var column string
	switch kind {
	case "doc":
		column = "doc_data"
	case "pdf":
		column = "pdf_data"
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
	var data []byte
	err := r.DB.QueryRowContext(ctx, `SELECT `+column+` FROM individual_plans WHERE id=?`, individualID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}
	return data, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, seasonID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if seasonID != "" {
		clauses = append(clauses, "season_id=?")
		args = append(args, seasonID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 100
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(season_id,''),entity_kind,entity_id,actor_id,payload FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SeasonID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
