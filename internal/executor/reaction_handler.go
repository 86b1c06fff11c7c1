package executor

import (
	"context"

	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
)

// ReactionHandler invokes the reaction callbacks a monitor registered for
// a published event. Reaction failures are logged and counted but never
// produce new events
type ReactionHandler struct {
	registry *registry.Registry
	logger   *logger.Logger
}

// NewReactionHandler creates an event message handler
func NewReactionHandler(reg *registry.Registry, log *logger.Logger) *ReactionHandler {
	return &ReactionHandler{
		registry: reg,
		logger:   log.With("component", "reaction_handler"),
	}
}

func (h *ReactionHandler) Handle(ctx context.Context, msg *queue.Message) error {
	var e event.Event
	if err := queue.DecodePayload(msg, &e); err != nil {
		return err
	}

	entry, ok := h.registry.GetByID(e.MonitorID)
	if !ok {
		metrics.RecordMonitorNotRegistered()
		h.registry.RequestReload()
		h.logger.Warnf("Event '%s' references unregistered monitor '%d'", e.Name, e.MonitorID)
		return nil
	}

	payload := e.Payload()
	for _, reaction := range entry.Definition.Reactions[e.Name] {
		if err := reaction(ctx, payload); err != nil {
			metrics.RecordReactionError(e.Name)
			h.logger.WithFields(map[string]interface{}{
				"event_name": e.Name,
				"monitor":    entry.Monitor.Name,
			}).WithError(err).Error("Reaction callback failed")
		}
	}
	return nil
}
