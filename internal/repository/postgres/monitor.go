package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

type MonitorRepository struct {
	db *sql.DB
}

func NewMonitorRepository(db *sql.DB) monitor.Repository {
	return &MonitorRepository{db: db}
}

const monitorColumns = `
	id, name, enabled, code, additional_files, hash,
	queued, running, queued_at, running_at,
	search_executed_at, update_executed_at, last_heartbeat,
	last_successful_execution, created_at, updated_at
`

func (r *MonitorRepository) Create(ctx context.Context, m *monitor.Monitor) (int64, error) {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	files, err := json.Marshal(m.AdditionalFiles)
	if err != nil {
		return 0, errors.DatabaseError("Failed to encode monitor files", err)
	}

	query := `
		INSERT INTO monitors (name, enabled, code, additional_files, hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		m.Name, m.Enabled, m.Code, files, m.Hash, m.CreatedAt, m.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.DatabaseError("Failed to create monitor", err)
	}

	m.ID = id
	return id, nil
}

func (r *MonitorRepository) GetByID(ctx context.Context, id int64) (*monitor.Monitor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	return scanMonitor(row)
}

func (r *MonitorRepository) GetByName(ctx context.Context, name string) (*monitor.Monitor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE name = $1`, name)
	return scanMonitor(row)
}

func (r *MonitorRepository) List(ctx context.Context, onlyEnabled bool) ([]*monitor.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors`
	if onlyEnabled {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list monitors", err)
	}
	defer rows.Close()

	return scanMonitors(rows)
}

func (r *MonitorRepository) Update(ctx context.Context, m *monitor.Monitor) error {
	m.UpdatedAt = time.Now().UTC()

	files, err := json.Marshal(m.AdditionalFiles)
	if err != nil {
		return errors.DatabaseError("Failed to encode monitor files", err)
	}

	query := `
		UPDATE monitors
		SET enabled = $1, code = $2, additional_files = $3, hash = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		m.Enabled, m.Code, files, m.Hash, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update monitor", err)
	}
	return requireAffected(result, "Monitor")
}

func (r *MonitorRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE monitors SET enabled = $1, updated_at = NOW() WHERE id = $2`,
		enabled, id,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update monitor enabled flag", err)
	}
	return requireAffected(result, "Monitor")
}

// SetQueued claims a monitor for scheduling. The claim only succeeds when the
// monitor is not already queued; releasing is unconditional
func (r *MonitorRepository) SetQueued(ctx context.Context, id int64, queued bool, at time.Time) (bool, error) {
	var result sql.Result
	var err error
	if queued {
		result, err = r.db.ExecContext(ctx,
			`UPDATE monitors SET queued = TRUE, queued_at = $1, updated_at = NOW()
			 WHERE id = $2 AND NOT queued AND enabled`,
			at, id,
		)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE monitors SET queued = FALSE, running = FALSE, updated_at = NOW() WHERE id = $1`,
			id,
		)
	}
	if err != nil {
		return false, errors.DatabaseError("Failed to update monitor queued flag", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.DatabaseError("Failed to get affected rows", err)
	}
	return rows > 0, nil
}

// SetRunning marks a queued monitor as running. The transition requires the
// monitor to be queued and not yet running
func (r *MonitorRepository) SetRunning(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE monitors
		 SET running = TRUE, running_at = $1, last_heartbeat = $1, updated_at = NOW()
		 WHERE id = $2 AND queued AND NOT running`,
		at, id,
	)
	if err != nil {
		return false, errors.DatabaseError("Failed to update monitor running flag", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.DatabaseError("Failed to get affected rows", err)
	}
	return rows > 0, nil
}

func (r *MonitorRepository) Heartbeat(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE monitors SET last_heartbeat = $1 WHERE id = $2 AND running`,
		at, id,
	)
	if err != nil {
		return errors.DatabaseError("Failed to record monitor heartbeat", err)
	}
	return requireAffected(result, "Monitor")
}

func (r *MonitorRepository) ClearRun(ctx context.Context, id int64, kinds []string, success bool, at time.Time) error {
	query := `UPDATE monitors SET queued = FALSE, running = FALSE, updated_at = NOW()`
	for _, kind := range kinds {
		switch kind {
		case monitor.RunKindSearch:
			query += `, search_executed_at = $1`
		case monitor.RunKindUpdate:
			query += `, update_executed_at = $1`
		}
	}
	if success {
		query += `, last_successful_execution = $1`
	}
	query += ` WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return errors.DatabaseError("Failed to clear monitor run", err)
	}
	return requireAffected(result, "Monitor")
}

func (r *MonitorRepository) ListStuck(ctx context.Context, tolerance time.Duration, now time.Time) ([]*monitor.Monitor, error) {
	query := `
		SELECT ` + monitorColumns + `
		FROM monitors
		WHERE queued
		  AND COALESCE(last_heartbeat, running_at, queued_at) < $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, now.Add(-tolerance))
	if err != nil {
		return nil, errors.DatabaseError("Failed to list stuck monitors", err)
	}
	defer rows.Close()

	return scanMonitors(rows)
}

func scanMonitor(row *sql.Row) (*monitor.Monitor, error) {
	var m monitor.Monitor
	var files []byte
	err := row.Scan(
		&m.ID, &m.Name, &m.Enabled, &m.Code, &files, &m.Hash,
		&m.Queued, &m.Running, &m.QueuedAt, &m.RunningAt,
		&m.SearchExecutedAt, &m.UpdateExecutedAt, &m.LastHeartbeat,
		&m.LastSuccessfulExecution, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Monitor")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get monitor", err)
	}
	if err := decodeFiles(files, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMonitors(rows *sql.Rows) ([]*monitor.Monitor, error) {
	monitors := make([]*monitor.Monitor, 0, 50)
	for rows.Next() {
		var m monitor.Monitor
		var files []byte
		err := rows.Scan(
			&m.ID, &m.Name, &m.Enabled, &m.Code, &files, &m.Hash,
			&m.Queued, &m.Running, &m.QueuedAt, &m.RunningAt,
			&m.SearchExecutedAt, &m.UpdateExecutedAt, &m.LastHeartbeat,
			&m.LastSuccessfulExecution, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan monitor", err)
		}
		if err := decodeFiles(files, &m); err != nil {
			return nil, err
		}
		monitors = append(monitors, &m)
	}
	return monitors, rows.Err()
}

func decodeFiles(raw []byte, m *monitor.Monitor) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &m.AdditionalFiles); err != nil {
		return errors.DatabaseError("Failed to decode monitor files", err)
	}
	return nil
}

func requireAffected(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.DatabaseError("Failed to get affected rows", err)
	}
	if rows == 0 {
		return errors.NotFound(resource)
	}
	return nil
}
