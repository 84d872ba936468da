// Package audit records who did what to which entity. Recording is
// best-effort: services log and swallow failures rather than aborting the
// business operation.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one audit trail entry.
type Event struct {
	ID        uuid.UUID
	ActorID   uuid.UUID
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	CreatedAt time.Time
}

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// PGRecorder writes events to the audit_logs table.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder constructs a PostgreSQL backed recorder.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// Record inserts one event.
func (r *PGRecorder) Record(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	meta, err := json.Marshal(event.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (id, actor_id, action, entity, entity_id, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, nullUUID(event.ActorID), event.Action, event.Entity, event.EntityID, meta, event.CreatedAt)
	return err
}

// History returns the trail for one entity, oldest first.
func (r *PGRecorder) History(ctx context.Context, entity, entityID string) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, actor_id, action, entity, entity_id, meta, created_at
FROM audit_logs WHERE entity = $1 AND entity_id = $2 ORDER BY created_at`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event Event
			actor *uuid.UUID
			meta  []byte
		)
		if err := rows.Scan(&event.ID, &actor, &event.Action, &event.Entity, &event.EntityID, &meta, &event.CreatedAt); err != nil {
			return nil, err
		}
		if actor != nil {
			event.ActorID = *actor
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &event.Meta)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Emit records best-effort: failures are logged, never propagated.
func Emit(ctx context.Context, rec Recorder, logger *slog.Logger, event Event) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, event); err != nil && logger != nil {
		logger.Warn("audit record failed", "action", event.Action, "entity", event.Entity, "error", err)
	}
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
