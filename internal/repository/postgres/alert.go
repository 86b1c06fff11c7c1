package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) alert.Repository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, monitor_id, status, priority, locked, acknowledged, acknowledge_priority, created_at, solved_at`

func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = alert.StatusActive
	}

	query := `
		INSERT INTO alerts (monitor_id, status, priority, locked, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		a.MonitorID, a.Status, int(a.Priority), a.Locked, a.Acknowledged, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.DatabaseError("Failed to create alert", err)
	}

	a.ID = id
	return id, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*alert.Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (r *AlertRepository) GetOpen(ctx context.Context, monitorID int64) (*alert.Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE monitor_id = $1 AND status = $2 AND NOT locked
		 ORDER BY id LIMIT 1`,
		monitorID, alert.StatusActive,
	)
	found, err := scanAlert(row)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, nil
	}
	return found, err
}

func (r *AlertRepository) ListActive(ctx context.Context, monitorID int64) ([]*alert.Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE monitor_id = $1 AND status = $2 ORDER BY id`,
		monitorID, alert.StatusActive,
	)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list active alerts", err)
	}
	defer rows.Close()

	alerts := make([]*alert.Alert, 0, 10)
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *AlertRepository) SetPriority(ctx context.Context, id int64, priority alert.Priority) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET priority = $1 WHERE id = $2 AND status = $3`,
		int(priority), id, alert.StatusActive,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update alert priority", err)
	}
	return requireAffected(result, "Alert")
}

func (r *AlertRepository) SetAcknowledged(ctx context.Context, id int64, acknowledged bool, atPriority *alert.Priority) error {
	var ackPriority interface{}
	if atPriority != nil {
		ackPriority = int(*atPriority)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET acknowledged = $1, acknowledge_priority = $2 WHERE id = $3 AND status = $4`,
		acknowledged, ackPriority, id, alert.StatusActive,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update alert acknowledgement", err)
	}
	return requireAffected(result, "Alert")
}

func (r *AlertRepository) SetLocked(ctx context.Context, id int64, locked bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET locked = $1 WHERE id = $2 AND status = $3`,
		locked, id, alert.StatusActive,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update alert locked flag", err)
	}
	return requireAffected(result, "Alert")
}

func (r *AlertRepository) Solve(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = $1, solved_at = $2 WHERE id = $3 AND status = $4`,
		alert.StatusSolved, at, id, alert.StatusActive,
	)
	if err != nil {
		return errors.DatabaseError("Failed to solve alert", err)
	}
	return requireAffected(result, "Alert")
}

func scanAlert(row *sql.Row) (*alert.Alert, error) {
	var a alert.Alert
	var priority int
	var ackPriority sql.NullInt64
	err := row.Scan(
		&a.ID, &a.MonitorID, &a.Status, &priority, &a.Locked,
		&a.Acknowledged, &ackPriority, &a.CreatedAt, &a.SolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Alert")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get alert", err)
	}
	applyAlertPriorities(&a, priority, ackPriority)
	return &a, nil
}

func scanAlertRow(rows *sql.Rows) (*alert.Alert, error) {
	var a alert.Alert
	var priority int
	var ackPriority sql.NullInt64
	err := rows.Scan(
		&a.ID, &a.MonitorID, &a.Status, &priority, &a.Locked,
		&a.Acknowledged, &ackPriority, &a.CreatedAt, &a.SolvedAt,
	)
	if err != nil {
		return nil, errors.DatabaseError("Failed to scan alert", err)
	}
	applyAlertPriorities(&a, priority, ackPriority)
	return &a, nil
}

func applyAlertPriorities(a *alert.Alert, priority int, ackPriority sql.NullInt64) {
	a.Priority = alert.Priority(priority)
	if ackPriority.Valid {
		p := alert.Priority(ackPriority.Int64)
		a.AcknowledgePriority = &p
	}
}
