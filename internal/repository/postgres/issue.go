package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) issue.Repository {
	return &IssueRepository{db: db}
}

const issueColumns = `id, monitor_id, alert_id, model_id, status, data, created_at, solved_at, dropped_at`

func (r *IssueRepository) Create(ctx context.Context, i *issue.Issue) (int64, error) {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	if i.Status == "" {
		i.Status = issue.StatusActive
	}

	data, err := json.Marshal(i.Data)
	if err != nil {
		return 0, errors.DatabaseError("Failed to encode issue data", err)
	}

	query := `
		INSERT INTO issues (monitor_id, alert_id, model_id, status, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		i.MonitorID, i.AlertID, i.ModelID, i.Status, data, i.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.DatabaseError("Failed to create issue", err)
	}

	i.ID = id
	return id, nil
}

func (r *IssueRepository) GetByID(ctx context.Context, id int64) (*issue.Issue, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	return scanIssue(row)
}

func (r *IssueRepository) ListActive(ctx context.Context, monitorID int64) ([]*issue.Issue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE monitor_id = $1 AND status = $2 ORDER BY id`,
		monitorID, issue.StatusActive,
	)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list active issues", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

func (r *IssueRepository) ListActiveByAlert(ctx context.Context, alertID int64) ([]*issue.Issue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE alert_id = $1 AND status = $2 ORDER BY id`,
		alertID, issue.StatusActive,
	)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list alert issues", err)
	}
	defer rows.Close()

	return scanIssues(rows)
}

func (r *IssueRepository) CountActiveByAlert(ctx context.Context, alertID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE alert_id = $1 AND status = $2`,
		alertID, issue.StatusActive,
	).Scan(&count)
	if err != nil {
		return 0, errors.DatabaseError("Failed to count alert issues", err)
	}
	return count, nil
}

func (r *IssueRepository) ExistsWithModelID(ctx context.Context, monitorID int64, modelID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM issues WHERE monitor_id = $1 AND model_id = $2)`,
		monitorID, modelID,
	).Scan(&exists)
	if err != nil {
		return false, errors.DatabaseError("Failed to check issue model id", err)
	}
	return exists, nil
}

func (r *IssueRepository) GetActiveByModelID(ctx context.Context, monitorID int64, modelID string) (*issue.Issue, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE monitor_id = $1 AND model_id = $2 AND status = $3`,
		monitorID, modelID, issue.StatusActive,
	)
	found, err := scanIssue(row)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, nil
	}
	return found, err
}

func (r *IssueRepository) UpdateData(ctx context.Context, id int64, data map[string]interface{}) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return errors.DatabaseError("Failed to encode issue data", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE issues SET data = $1 WHERE id = $2 AND status = $3`,
		encoded, id, issue.StatusActive,
	)
	if err != nil {
		return errors.DatabaseError("Failed to update issue data", err)
	}
	return requireAffected(result, "Issue")
}

func (r *IssueRepository) LinkToAlert(ctx context.Context, id int64, alertID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE issues SET alert_id = $1 WHERE id = $2 AND alert_id IS NULL AND status = $3`,
		alertID, id, issue.StatusActive,
	)
	if err != nil {
		return errors.DatabaseError("Failed to link issue to alert", err)
	}
	return requireAffected(result, "Issue")
}

func (r *IssueRepository) SetStatus(ctx context.Context, id int64, status string, at time.Time) error {
	var query string
	switch status {
	case issue.StatusSolved:
		query = `UPDATE issues SET status = $1, solved_at = $2 WHERE id = $3 AND status = $4`
	case issue.StatusDropped:
		query = `UPDATE issues SET status = $1, dropped_at = $2 WHERE id = $3 AND status = $4`
	default:
		return errors.BadRequest("issues only transition to solved or dropped")
	}

	result, err := r.db.ExecContext(ctx, query, status, at, id, issue.StatusActive)
	if err != nil {
		return errors.DatabaseError("Failed to update issue status", err)
	}
	return requireAffected(result, "Issue")
}

func scanIssue(row *sql.Row) (*issue.Issue, error) {
	var i issue.Issue
	var data []byte
	err := row.Scan(
		&i.ID, &i.MonitorID, &i.AlertID, &i.ModelID, &i.Status,
		&data, &i.CreatedAt, &i.SolvedAt, &i.DroppedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Issue")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get issue", err)
	}
	if err := decodeIssueData(data, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

func scanIssues(rows *sql.Rows) ([]*issue.Issue, error) {
	issues := make([]*issue.Issue, 0, 50)
	for rows.Next() {
		var i issue.Issue
		var data []byte
		err := rows.Scan(
			&i.ID, &i.MonitorID, &i.AlertID, &i.ModelID, &i.Status,
			&data, &i.CreatedAt, &i.SolvedAt, &i.DroppedAt,
		)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan issue", err)
		}
		if err := decodeIssueData(data, &i); err != nil {
			return nil, err
		}
		issues = append(issues, &i)
	}
	return issues, rows.Err()
}

func decodeIssueData(raw []byte, i *issue.Issue) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &i.Data); err != nil {
		return errors.DatabaseError("Failed to decode issue data", err)
	}
	return nil
}
