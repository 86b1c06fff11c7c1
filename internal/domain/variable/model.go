package variable

import (
	"context"
	"time"
)

// Variable is a per-monitor key/value blob, read and written only from the
// monitor's own callbacks
type Variable struct {
	MonitorID int64     `json:"monitor_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository defines the interface for variable data access
type Repository interface {
	// Get retrieves a monitor's variable, or nil when it was never set
	Get(ctx context.Context, monitorID int64, name string) (*Variable, error)

	// Set creates or replaces a monitor's variable
	Set(ctx context.Context, monitorID int64, name, value string) error
}
