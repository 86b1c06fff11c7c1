package services

import (
	"context"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/notification"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
)

// NotificationService tracks outbound notification instances and closes
// the ones whose alerts are gone
type NotificationService struct {
	notifications notification.Repository
	events        *EventService
	logger        *logger.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(notifications notification.Repository, events *EventService, log *logger.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		events:        events,
		logger:        log.With("component", "notifications"),
	}
}

// Create records a notification sent for an alert
func (s *NotificationService) Create(ctx context.Context, n *notification.Notification) (int64, error) {
	id, err := s.notifications.Create(ctx, n)
	if err != nil {
		return 0, err
	}

	err = s.events.Emit(ctx, event.SourceNotification, id, n.MonitorID, event.NotificationCreated, map[string]interface{}{
		"alert_id": n.AlertID,
		"target":   n.Target,
	}, nil)
	return id, err
}

// Close transitions an active notification to closed
func (s *NotificationService) Close(ctx context.Context, id int64) error {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.notifications.Close(ctx, id, time.Now().UTC()); err != nil {
		return err
	}
	return s.events.Emit(ctx, event.SourceNotification, id, n.MonitorID, event.NotificationClosed, nil, nil)
}

// CloseForSolvedAlerts closes active notifications whose alert has been
// solved for longer than solvedFor, returning how many were closed
func (s *NotificationService) CloseForSolvedAlerts(ctx context.Context, solvedFor time.Duration, now time.Time) (int, error) {
	stale, err := s.notifications.ListActiveWithSolvedAlert(ctx, solvedFor, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, n := range stale {
		if err := s.notifications.Close(ctx, n.ID, now); err != nil {
			return closed, err
		}
		if err := s.events.Emit(ctx, event.SourceNotification, n.ID, n.MonitorID, event.NotificationClosed, nil, nil); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}
