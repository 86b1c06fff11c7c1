package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/notification"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) notification.Repository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, monitor_id, alert_id, target, status, data, created_at, closed_at`

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Status == "" {
		n.Status = notification.StatusActive
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return 0, errors.DatabaseError("Failed to encode notification data", err)
	}

	query := `
		INSERT INTO notifications (monitor_id, alert_id, target, status, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		n.MonitorID, n.AlertID, n.Target, n.Status, data, n.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, errors.DatabaseError("Failed to create notification", err)
	}

	n.ID = id
	return id, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row)
}

func (r *NotificationRepository) GetActiveByAlertTarget(ctx context.Context, alertID int64, target string) (*notification.Notification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE alert_id = $1 AND target = $2 AND status = $3
		 ORDER BY id LIMIT 1`,
		alertID, target, notification.StatusActive,
	)
	found, err := scanNotification(row)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return nil, nil
	}
	return found, err
}

func (r *NotificationRepository) ListActiveWithSolvedAlert(ctx context.Context, solvedFor time.Duration, now time.Time) ([]*notification.Notification, error) {
	query := `
		SELECT n.id, n.monitor_id, n.alert_id, n.target, n.status, n.data, n.created_at, n.closed_at
		FROM notifications n
		JOIN alerts a ON a.id = n.alert_id
		WHERE n.status = $1 AND a.status = $2 AND a.solved_at < $3
		ORDER BY n.id
	`

	rows, err := r.db.QueryContext(ctx, query,
		notification.StatusActive, "solved", now.Add(-solvedFor),
	)
	if err != nil {
		return nil, errors.DatabaseError("Failed to list notifications with solved alerts", err)
	}
	defer rows.Close()

	notifications := make([]*notification.Notification, 0, 10)
	for rows.Next() {
		var n notification.Notification
		var data []byte
		err := rows.Scan(
			&n.ID, &n.MonitorID, &n.AlertID, &n.Target, &n.Status,
			&data, &n.CreatedAt, &n.ClosedAt,
		)
		if err != nil {
			return nil, errors.DatabaseError("Failed to scan notification", err)
		}
		if err := decodeNotificationData(data, &n); err != nil {
			return nil, err
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (r *NotificationRepository) Close(ctx context.Context, id int64, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = $1, closed_at = $2 WHERE id = $3 AND status = $4`,
		notification.StatusClosed, at, id, notification.StatusActive,
	)
	if err != nil {
		return errors.DatabaseError("Failed to close notification", err)
	}
	return requireAffected(result, "Notification")
}

func scanNotification(row *sql.Row) (*notification.Notification, error) {
	var n notification.Notification
	var data []byte
	err := row.Scan(
		&n.ID, &n.MonitorID, &n.AlertID, &n.Target, &n.Status,
		&data, &n.CreatedAt, &n.ClosedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("Notification")
	}
	if err != nil {
		return nil, errors.DatabaseError("Failed to get notification", err)
	}
	if err := decodeNotificationData(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func decodeNotificationData(raw []byte, n *notification.Notification) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &n.Data); err != nil {
		return errors.DatabaseError("Failed to decode notification data", err)
	}
	return nil
}
