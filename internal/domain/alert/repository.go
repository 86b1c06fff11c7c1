package alert

import (
	"context"
	"time"
)

// Repository defines the interface for alert data access
type Repository interface {
	// Create creates a new active alert for a monitor
	Create(ctx context.Context, a *Alert) (int64, error)

	// GetByID retrieves an alert by ID
	GetByID(ctx context.Context, id int64) (*Alert, error)

	// GetOpen retrieves the monitor's active non-locked alert, or nil when
	// there is none
	GetOpen(ctx context.Context, monitorID int64) (*Alert, error)

	// ListActive retrieves the monitor's active alerts, ordered by ID
	ListActive(ctx context.Context, monitorID int64) ([]*Alert, error)

	// SetPriority updates the alert's priority
	SetPriority(ctx context.Context, id int64, priority Priority) error

	// SetAcknowledged updates the acknowledgement state
	SetAcknowledged(ctx context.Context, id int64, acknowledged bool, atPriority *Priority) error

	// SetLocked updates the locked flag
	SetLocked(ctx context.Context, id int64, locked bool) error

	// Solve transitions an active alert to solved
	Solve(ctx context.Context, id int64, at time.Time) error
}
