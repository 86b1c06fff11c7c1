package postgres

import (
	"context"
	"database/sql"

	"github.com/sentinela-io/sentinela/internal/domain/variable"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

type VariableRepository struct {
	db *sql.DB
}

func NewVariableRepository(db *sql.DB) variable.Repository {
	return &VariableRepository{db: db}
}

func (r *VariableRepository) Get(ctx context.Context, monitorID int64, name string) (*variable.Variable, error) {
	var v variable.Variable
	err := r.db.QueryRowContext(ctx,
		`SELECT monitor_id, name, value, updated_at FROM variables WHERE monitor_id = $1 AND name = $2`,
		monitorID, name,
	).Scan(&v.MonitorID, &v.Name, &v.Value, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get variable", err)
	}
	return &v, nil
}

func (r *VariableRepository) Set(ctx context.Context, monitorID int64, name, value string) error {
	query := `
		INSERT INTO variables (monitor_id, name, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (monitor_id, name)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, monitorID, name, value); err != nil {
		return errors.DatabaseError("Failed to set variable", err)
	}
	return nil
}
