package services

import (
	"context"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/alert"
	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
)

// RecomputeOptions carries the monitor's alert configuration into one
// recomputation
type RecomputeOptions struct {
	Rule                          alert.Rule
	DismissAcknowledgeOnNewIssues bool
}

// AlertService owns the alert lifecycle: aggregation of issues into alerts
// and the manual acknowledge, lock and solve transitions
type AlertService struct {
	alerts alert.Repository
	issues issue.Repository
	events *EventService
	logger *logger.Logger
}

// NewAlertService creates a new alert service
func NewAlertService(alerts alert.Repository, issues issue.Repository, events *EventService, log *logger.Logger) *AlertService {
	return &AlertService{
		alerts: alerts,
		issues: issues,
		events: events,
		logger: log.With("component", "alerts"),
	}
}

// Recompute links the monitor's unlinked active issues to its open alert,
// re-evaluates the rule and applies the resulting transitions. A new alert
// is created only when the rule resolves a priority for the unlinked issues
func (s *AlertService) Recompute(ctx context.Context, monitorID int64, opts RecomputeOptions, now time.Time) error {
	if opts.Rule == nil {
		return nil
	}

	active, err := s.issues.ListActive(ctx, monitorID)
	if err != nil {
		return err
	}

	open, err := s.alerts.GetOpen(ctx, monitorID)
	if err != nil {
		return err
	}

	var unlinked []*issue.Issue
	for _, i := range active {
		if i.AlertID == nil {
			unlinked = append(unlinked, i)
		}
	}

	if open == nil {
		return s.createFromIssues(ctx, monitorID, unlinked, opts, now)
	}

	linkedNew, err := s.linkIssues(ctx, open, unlinked)
	if err != nil {
		return err
	}

	var alertIssues []*issue.Issue
	for _, i := range active {
		if i.AlertID != nil && *i.AlertID == open.ID {
			alertIssues = append(alertIssues, i)
		}
	}

	if len(alertIssues) == 0 {
		if err := s.alerts.Solve(ctx, open.ID, now); err != nil {
			return err
		}
		s.logger.WithFields(map[string]interface{}{
			"alert_id":   open.ID,
			"monitor_id": monitorID,
		}).Info("Alert solved")
		return s.emit(ctx, open, event.AlertSolved, nil)
	}

	if err := s.applyPriority(ctx, open, opts.Rule.Evaluate(alertIssues, now)); err != nil {
		return err
	}

	if opts.DismissAcknowledgeOnNewIssues && linkedNew && open.Acknowledged {
		if err := s.dismissAcknowledge(ctx, open); err != nil {
			return err
		}
	}

	return s.emit(ctx, open, event.AlertUpdated, map[string]interface{}{
		"priority":     open.Priority.String(),
		"issues_count": len(alertIssues),
	})
}

// createFromIssues opens a new alert when the unlinked issues trigger the
// rule
func (s *AlertService) createFromIssues(ctx context.Context, monitorID int64, unlinked []*issue.Issue, opts RecomputeOptions, now time.Time) error {
	if len(unlinked) == 0 {
		return nil
	}

	priority := opts.Rule.Evaluate(unlinked, now)
	if priority == alert.PriorityNone {
		return nil
	}

	created := &alert.Alert{
		MonitorID: monitorID,
		Status:    alert.StatusActive,
		Priority:  priority,
		CreatedAt: now,
	}
	if _, err := s.alerts.Create(ctx, created); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"alert_id":   created.ID,
		"monitor_id": monitorID,
		"priority":   priority.String(),
	}).Info("Alert created")

	if err := s.emit(ctx, created, event.AlertCreated, map[string]interface{}{
		"priority": priority.String(),
	}); err != nil {
		return err
	}

	_, err := s.linkIssues(ctx, created, unlinked)
	return err
}

// linkIssues attaches the unlinked issues to the alert, emitting one
// issue_linked per issue and a single alert_issues_linked
func (s *AlertService) linkIssues(ctx context.Context, a *alert.Alert, unlinked []*issue.Issue) (bool, error) {
	if len(unlinked) == 0 {
		return false, nil
	}

	for _, i := range unlinked {
		if err := s.issues.LinkToAlert(ctx, i.ID, a.ID); err != nil {
			return false, err
		}
		linkedID := a.ID
		i.AlertID = &linkedID

		if err := s.events.Emit(ctx, event.SourceIssue, i.ID, a.MonitorID, event.IssueLinked, map[string]interface{}{
			"alert_id": a.ID,
		}, nil); err != nil {
			return false, err
		}
	}

	err := s.emit(ctx, a, event.AlertIssuesLinked, map[string]interface{}{
		"issues_count": len(unlinked),
	})
	return true, err
}

// applyPriority moves the alert to the new priority, handling the increase
// and decrease events and acknowledgement dismissal on escalation
func (s *AlertService) applyPriority(ctx context.Context, a *alert.Alert, newPriority alert.Priority) error {
	if newPriority == a.Priority {
		return nil
	}

	oldPriority := a.Priority
	if err := s.alerts.SetPriority(ctx, a.ID, newPriority); err != nil {
		return err
	}
	a.Priority = newPriority

	data := map[string]interface{}{
		"old_priority": oldPriority.String(),
		"new_priority": newPriority.String(),
	}

	if newPriority.HigherThan(oldPriority) {
		if err := s.emit(ctx, a, event.AlertPriorityIncreased, data); err != nil {
			return err
		}
		if a.Acknowledged && !a.IsPriorityAcknowledged() {
			return s.dismissAcknowledge(ctx, a)
		}
		return nil
	}
	return s.emit(ctx, a, event.AlertPriorityDecreased, data)
}

func (s *AlertService) dismissAcknowledge(ctx context.Context, a *alert.Alert) error {
	if err := s.alerts.SetAcknowledged(ctx, a.ID, false, nil); err != nil {
		return err
	}
	a.Acknowledged = false
	a.AcknowledgePriority = nil
	return s.emit(ctx, a, event.AlertAcknowledgeDismissed, nil)
}

// Acknowledge marks the alert acknowledged at its current priority. The
// acknowledgement holds while the priority stays at or below that level
func (s *AlertService) Acknowledge(ctx context.Context, alertID int64) error {
	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return err
	}

	atPriority := a.Priority
	if err := s.alerts.SetAcknowledged(ctx, alertID, true, &atPriority); err != nil {
		return err
	}
	return s.emit(ctx, a, event.AlertAcknowledged, map[string]interface{}{
		"priority": atPriority.String(),
	})
}

// Lock freezes the alert: no new issues are linked to it and subsequent
// issues open a fresh alert
func (s *AlertService) Lock(ctx context.Context, alertID int64) error {
	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return err
	}
	if err := s.alerts.SetLocked(ctx, alertID, true); err != nil {
		return err
	}
	return s.emit(ctx, a, event.AlertLocked, nil)
}

// Unlock reopens a locked alert for issue linking
func (s *AlertService) Unlock(ctx context.Context, alertID int64) error {
	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return err
	}
	if err := s.alerts.SetLocked(ctx, alertID, false); err != nil {
		return err
	}
	return s.emit(ctx, a, event.AlertUnlocked, nil)
}

// Solve manually solves an active alert
func (s *AlertService) Solve(ctx context.Context, alertID int64) error {
	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return err
	}
	if err := s.alerts.Solve(ctx, alertID, time.Now().UTC()); err != nil {
		return err
	}
	return s.emit(ctx, a, event.AlertSolved, nil)
}

func (s *AlertService) emit(ctx context.Context, a *alert.Alert, name string, data map[string]interface{}) error {
	return s.events.Emit(ctx, event.SourceAlert, a.ID, a.MonitorID, name, data, nil)
}
