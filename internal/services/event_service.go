package services

import (
	"context"
	"time"

	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
	"github.com/sentinela-io/sentinela/internal/queue"
)

// ReactionChecker reports whether a monitor registers reactions for an
// event name. The registry satisfies this
type ReactionChecker interface {
	HasReactions(monitorID int64, eventName string) bool
}

// EventService persists lifecycle events and publishes the ones that have
// reactions to the queue. Events are committed with a pending flag first so
// a crash between commit and publication is recovered by the flusher
type EventService struct {
	repo      event.Repository
	queue     queue.Queue
	reactions ReactionChecker
	logAll    bool
	logger    *logger.Logger
}

// NewEventService creates a new event service
func NewEventService(repo event.Repository, q queue.Queue, reactions ReactionChecker, logAllEvents bool, log *logger.Logger) *EventService {
	return &EventService{
		repo:      repo,
		queue:     q,
		reactions: reactions,
		logAll:    logAllEvents,
		logger:    log.With("component", "events"),
	}
}

// Emit appends a lifecycle event and, when the monitor reacts to it,
// publishes it to the queue. Events nobody reacts to are only persisted
// when log_all_events is set
func (s *EventService) Emit(ctx context.Context, source string, sourceID, monitorID int64, name string, data, extra map[string]interface{}) error {
	pending := s.reactions != nil && s.reactions.HasReactions(monitorID, name)

	metrics.RecordEventEmitted(name)
	if !pending && !s.logAll {
		return nil
	}

	e := &event.Event{
		Source:    source,
		SourceID:  sourceID,
		MonitorID: monitorID,
		Name:      name,
		Data:      data,
		Extra:     extra,
		Pending:   pending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, e); err != nil {
		s.logger.ErrorWithErr(err, "Failed to persist event")
		return err
	}

	if s.logAll {
		s.logger.WithFields(map[string]interface{}{
			"event_name": name,
			"source":     source,
			"source_id":  sourceID,
			"monitor_id": monitorID,
		}).Info("Event emitted")
	}

	if pending {
		// Best effort; the flusher retries what could not be published here
		s.publish(ctx, e)
	}
	return nil
}

// FlushPending publishes events that were committed but never reached the
// queue. Redundant publications are harmless since handlers are idempotent
func (s *EventService) FlushPending(ctx context.Context, limit int) error {
	pending, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range pending {
		s.publish(ctx, e)
	}
	return nil
}

// RunFlusher periodically flushes pending events until the context ends
func (s *EventService) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.FlushPending(ctx, 100); err != nil {
				s.logger.ErrorWithErr(err, "Failed to flush pending events")
			}
		}
	}
}

func (s *EventService) publish(ctx context.Context, e *event.Event) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Send(ctx, queue.KindEvent, e); err != nil {
		metrics.RecordQueueError()
		s.logger.ErrorWithErr(err, "Failed to publish event")
		return
	}
	if err := s.repo.MarkPublished(ctx, e.ID); err != nil {
		s.logger.ErrorWithErr(err, "Failed to mark event published")
	}
}
