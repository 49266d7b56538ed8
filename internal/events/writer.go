package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the engine and the generation pipeline.
const (
	DutyCreated    = "duty.created"
	DutyUpdated    = "duty.updated"
	DutyDeleted    = "duty.deleted"
	PlanCreated    = "plan.created"
	PlanGenerating = "plan.generating"
	PlanReady      = "plan.ready"
	PlanFailed     = "plan.error"
	Validated      = "schedule.validated"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, seasonID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,season_id,entity_kind,entity_id,actor_id,payload) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(seasonID), entityKind, entityID, actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
