package monitor

import (
	"context"
	"time"
)

// Repository defines the interface for monitor data access
type Repository interface {
	// Create creates a new monitor
	Create(ctx context.Context, m *Monitor) (int64, error)

	// GetByID retrieves a monitor by ID
	GetByID(ctx context.Context, id int64) (*Monitor, error)

	// GetByName retrieves a monitor by its normalized name
	GetByName(ctx context.Context, name string) (*Monitor, error)

	// List retrieves all monitors, optionally only the enabled ones
	List(ctx context.Context, onlyEnabled bool) ([]*Monitor, error)

	// Update updates a monitor's code and enabled flag
	Update(ctx context.Context, m *Monitor) error

	// SetEnabled flips the enabled flag
	SetEnabled(ctx context.Context, id int64, enabled bool) error

	// SetQueued conditionally flips queued to true, returning false when the
	// monitor was already queued. Setting queued to false is unconditional
	SetQueued(ctx context.Context, id int64, queued bool, at time.Time) (bool, error)

	// SetRunning conditionally flips running to true, returning false when
	// the monitor was already running or not queued
	SetRunning(ctx context.Context, id int64, at time.Time) (bool, error)

	// Heartbeat bumps the last heartbeat timestamp of a running monitor
	Heartbeat(ctx context.Context, id int64, at time.Time) error

	// ClearRun clears the running and queued flags, stamping the executed-at
	// column for kind and the last successful execution when success is true
	ClearRun(ctx context.Context, id int64, kinds []string, success bool, at time.Time) error

	// ListStuck retrieves running monitors whose stuck reference timestamp is
	// older than the tolerance
	ListStuck(ctx context.Context, tolerance time.Duration, now time.Time) ([]*Monitor, error)
}
