package issue

import (
	"context"
	"time"
)

// Repository defines the interface for issue data access
type Repository interface {
	// Create creates a new issue
	Create(ctx context.Context, i *Issue) (int64, error)

	// GetByID retrieves an issue by ID
	GetByID(ctx context.Context, id int64) (*Issue, error)

	// ListActive retrieves the active issues of a monitor, ordered by ID
	ListActive(ctx context.Context, monitorID int64) ([]*Issue, error)

	// ListActiveByAlert retrieves the active issues linked to an alert,
	// ordered by ID
	ListActiveByAlert(ctx context.Context, alertID int64) ([]*Issue, error)

	// CountActiveByAlert counts the active issues linked to an alert
	CountActiveByAlert(ctx context.Context, alertID int64) (int, error)

	// ExistsWithModelID reports whether the monitor has any issue with the
	// model ID, regardless of status
	ExistsWithModelID(ctx context.Context, monitorID int64, modelID string) (bool, error)

	// GetActiveByModelID retrieves the monitor's active issue with the model
	// ID, or nil when there is none
	GetActiveByModelID(ctx context.Context, monitorID int64, modelID string) (*Issue, error)

	// UpdateData replaces the data of an active issue
	UpdateData(ctx context.Context, id int64, data map[string]interface{}) error

	// LinkToAlert attaches an active unlinked issue to an alert
	LinkToAlert(ctx context.Context, id int64, alertID int64) error

	// SetStatus transitions an active issue to solved or dropped
	SetStatus(ctx context.Context, id int64, status string, at time.Time) error
}
