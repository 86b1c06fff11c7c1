package services

import (
	"context"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
)

// IssueService owns issue creation and the solved/dropped transitions
type IssueService struct {
	issues issue.Repository
	events *EventService
	logger *logger.Logger
}

// NewIssueService creates a new issue service
func NewIssueService(issues issue.Repository, events *EventService, log *logger.Logger) *IssueService {
	return &IssueService{
		issues: issues,
		events: events,
		logger: log.With("component", "issues"),
	}
}

// Upsert creates an issue for the model ID unless uniqueness forbids it.
// An active issue with the same model ID always blocks creation; with
// unique set, any past issue with the model ID blocks it as well. Returns
// the created issue, or nil when creation was skipped
func (s *IssueService) Upsert(ctx context.Context, monitorID int64, modelID string, data map[string]interface{}, unique bool) (*issue.Issue, error) {
	existing, err := s.issues.GetActiveByModelID(ctx, monitorID, modelID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, nil
	}

	if unique {
		seen, err := s.issues.ExistsWithModelID(ctx, monitorID, modelID)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, nil
		}
	}

	created := &issue.Issue{
		MonitorID: monitorID,
		ModelID:   modelID,
		Status:    issue.StatusActive,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.issues.Create(ctx, created); err != nil {
		return nil, err
	}

	if err := s.emit(ctx, created, event.IssueCreated, map[string]interface{}{
		"model_id": modelID,
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// ListActive retrieves the monitor's active issues
func (s *IssueService) ListActive(ctx context.Context, monitorID int64) ([]*issue.Issue, error) {
	return s.issues.ListActive(ctx, monitorID)
}

// UpdateData replaces an active issue's data without changing its status
func (s *IssueService) UpdateData(ctx context.Context, id int64, data map[string]interface{}) error {
	return s.issues.UpdateData(ctx, id, data)
}

// MarkSolved transitions an active issue to solved
func (s *IssueService) MarkSolved(ctx context.Context, id int64) error {
	i, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.issues.SetStatus(ctx, id, issue.StatusSolved, time.Now().UTC()); err != nil {
		return err
	}
	return s.emit(ctx, i, event.IssueSolved, nil)
}

// MarkDropped transitions an active issue to dropped. Dropped issues do not
// count as solved for uniqueness purposes but leave the alert the same way
func (s *IssueService) MarkDropped(ctx context.Context, id int64) error {
	i, err := s.issues.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.issues.SetStatus(ctx, id, issue.StatusDropped, time.Now().UTC()); err != nil {
		return err
	}
	return s.emit(ctx, i, event.IssueDropped, nil)
}

func (s *IssueService) emit(ctx context.Context, i *issue.Issue, name string, data map[string]interface{}) error {
	return s.events.Emit(ctx, event.SourceIssue, i.ID, i.MonitorID, name, data, nil)
}
