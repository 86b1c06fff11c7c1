package postgres

import (
	"context"
	"database/sql"

	"github.com/sentinela-io/sentinela/internal/domain/execution"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) execution.Repository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Create(ctx context.Context, e *execution.MonitorExecution) (int64, error) {
	query := `
		INSERT INTO monitor_executions (monitor_id, status, error_type, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var errorType interface{}
	if e.ErrorType != "" {
		errorType = e.ErrorType
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		e.MonitorID, e.Status, errorType, e.StartedAt, e.FinishedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.DatabaseError("Failed to create monitor execution", err)
	}

	e.ID = id
	return id, nil
}

func (r *ExecutionRepository) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*execution.MonitorExecution, error) {
	query := `
		SELECT id, monitor_id, status, error_type, started_at, finished_at
		FROM monitor_executions WHERE monitor_id = $1 ORDER BY id DESC LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, monitorID, limit)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list monitor executions", err)
	}
	defer rows.Close()

	executions := make([]*execution.MonitorExecution, 0, limit)
	for rows.Next() {
		var e execution.MonitorExecution
		var errorType sql.NullString
		err := rows.Scan(&e.ID, &e.MonitorID, &e.Status, &errorType, &e.StartedAt, &e.FinishedAt)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan monitor execution", err)
		}
		e.ErrorType = errorType.String
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}
