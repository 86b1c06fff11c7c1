package notification

import (
	"context"
	"time"
)

// Repository defines the interface for notification data access
type Repository interface {
	// Create creates a new active notification
	Create(ctx context.Context, n *Notification) (int64, error)

	// GetByID retrieves a notification by ID
	GetByID(ctx context.Context, id int64) (*Notification, error)

	// GetActiveByAlertTarget retrieves the alert's active notification for a
	// target, or nil when there is none
	GetActiveByAlertTarget(ctx context.Context, alertID int64, target string) (*Notification, error)

	// ListActiveWithSolvedAlert retrieves active notifications whose alert
	// has been solved for longer than the threshold
	ListActiveWithSolvedAlert(ctx context.Context, solvedFor time.Duration, now time.Time) ([]*Notification, error)

	// Close transitions an active notification to closed
	Close(ctx context.Context, id int64, at time.Time) error
}
