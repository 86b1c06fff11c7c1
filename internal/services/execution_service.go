package services

import (
	"context"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/execution"
)

// ExecutionService records monitor run outcomes
type ExecutionService struct {
	executions execution.Repository
}

// NewExecutionService creates a new execution service
func NewExecutionService(executions execution.Repository) *ExecutionService {
	return &ExecutionService{executions: executions}
}

// RecordSuccess stores a successful run
func (s *ExecutionService) RecordSuccess(ctx context.Context, monitorID int64, startedAt, finishedAt time.Time) error {
	_, err := s.executions.Create(ctx, &execution.MonitorExecution{
		MonitorID:  monitorID,
		Status:     execution.StatusSuccess,
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
	})
	return err
}

// RecordFailure stores a failed run with its error type
func (s *ExecutionService) RecordFailure(ctx context.Context, monitorID int64, errorType string, startedAt, finishedAt time.Time) error {
	_, err := s.executions.Create(ctx, &execution.MonitorExecution{
		MonitorID:  monitorID,
		Status:     execution.StatusFailed,
		ErrorType:  errorType,
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
	})
	return err
}

// ListByMonitor retrieves a monitor's most recent executions
func (s *ExecutionService) ListByMonitor(ctx context.Context, monitorID int64, limit int) ([]*execution.MonitorExecution, error) {
	return s.executions.ListByMonitor(ctx, monitorID, limit)
}
