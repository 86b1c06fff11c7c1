package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) event.Repository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(e.Data)
	if err != nil {
		return errors.DatabaseError("Failed to encode event data", err)
	}
	extra, err := json.Marshal(e.Extra)
	if err != nil {
		return errors.DatabaseError("Failed to encode event extra payload", err)
	}

	query := `
		INSERT INTO events (id, source, source_id, monitor_id, name, data, extra, pending, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		e.ID, e.Source, e.SourceID, e.MonitorID, e.Name, data, extra, e.Pending, e.CreatedAt,
	)
	if err != nil {
		return errors.DatabaseError("Failed to create event", err)
	}
	return nil
}

func (r *EventRepository) ListPending(ctx context.Context, limit int) ([]*event.Event, error) {
	query := `
		SELECT id, source, source_id, monitor_id, name, data, extra, pending, created_at
		FROM events WHERE pending ORDER BY created_at LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list pending events", err)
	}
	defer rows.Close()

	events := make([]*event.Event, 0, limit)
	for rows.Next() {
		var e event.Event
		var data, extra []byte
		err := rows.Scan(
			&e.ID, &e.Source, &e.SourceID, &e.MonitorID, &e.Name,
			&data, &extra, &e.Pending, &e.CreatedAt,
		)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan event", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, errors.DatabaseError("Failed to decode event data", err)
			}
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &e.Extra); err != nil {
				return nil, errors.DatabaseError("Failed to decode event extra payload", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (r *EventRepository) MarkPublished(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE events SET pending = FALSE WHERE id = $1`, id)
	if err != nil {
		return errors.DatabaseError("Failed to mark event published", err)
	}
	return requireAffected(result, "Event")
}
