package execution

import (
	"context"
	"time"
)

// MonitorExecution records one monitor run and its outcome
type MonitorExecution struct {
	ID         int64      `json:"id"`
	MonitorID  int64      `json:"monitor_id"`
	Status     string     `json:"status"`
	ErrorType  string     `json:"error_type,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Execution outcomes
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Error types recorded for failed executions
const (
	ErrorTypeCallback      = "callback_error"
	ErrorTypeTimeout       = "timeout"
	ErrorTypeNotRegistered = "not_registered"
)

// Repository defines the interface for monitor execution data access
type Repository interface {
	// Create records a finished execution
	Create(ctx context.Context, e *MonitorExecution) (int64, error)

	// ListByMonitor retrieves the most recent executions of a monitor
	ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*MonitorExecution, error)
}
