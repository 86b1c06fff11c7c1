package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/domain/event"
	"github.com/sentinela-io/sentinela/internal/domain/execution"
	"github.com/sentinela-io/sentinela/internal/domain/issue"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/monitordef"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
	"github.com/sentinela-io/sentinela/internal/services"
)

// MonitorHandler runs one monitor's routines for a claimed run: update,
// solve, search and alert recomputation, bracketed by begin_run/end_run
type MonitorHandler struct {
	cfg        *config.Config
	registry   *registry.Registry
	monitors   *services.MonitorService
	issues     *services.IssueService
	alerts     *services.AlertService
	events     *services.EventService
	executions *services.ExecutionService
	logger     *logger.Logger
}

// NewMonitorHandler creates a monitor message handler
func NewMonitorHandler(cfg *config.Config, reg *registry.Registry, monitors *services.MonitorService, issues *services.IssueService, alerts *services.AlertService, events *services.EventService, executions *services.ExecutionService, log *logger.Logger) *MonitorHandler {
	return &MonitorHandler{
		cfg:        cfg,
		registry:   reg,
		monitors:   monitors,
		issues:     issues,
		alerts:     alerts,
		events:     events,
		executions: executions,
		logger:     log.With("component", "monitor_handler"),
	}
}

func (h *MonitorHandler) Handle(ctx context.Context, msg *queue.Message) error {
	var payload queue.MonitorPayload
	if err := queue.DecodePayload(msg, &payload); err != nil {
		return err
	}

	startedAt := time.Now().UTC()

	began, err := h.monitors.BeginRun(ctx, payload.MonitorID, startedAt)
	if err != nil {
		return err
	}
	if !began {
		// Another run holds the monitor; the message is simply consumed
		h.logger.Warnf("Monitor '%d' run not available", payload.MonitorID)
		return nil
	}

	entry, ok := h.registry.GetByID(payload.MonitorID)
	if !ok {
		return h.handleNotRegistered(ctx, payload.MonitorID, startedAt)
	}

	metrics.MonitorRunning(entry.Monitor.Name, 1)
	defer metrics.MonitorRunning(entry.Monitor.Name, -1)

	runErr := h.runRoutines(ctx, entry, payload.Tasks)

	finishedAt := time.Now().UTC()
	if err := h.monitors.EndRun(ctx, payload.MonitorID, payload.Tasks, runErr == nil, finishedAt); err != nil {
		h.logger.ErrorWithErr(err, "Failed to end monitor run")
	}

	return h.recordOutcome(ctx, entry, runErr, startedAt, finishedAt)
}

// runRoutines executes the requested routines in order: update, solve,
// search and finally alert recomputation
func (h *MonitorHandler) runRoutines(ctx context.Context, entry *registry.Entry, tasks []string) error {
	def := entry.Definition
	monitorID := entry.Monitor.ID

	if containsTask(tasks, monitor.RunKindUpdate) && def.Update != nil {
		if err := h.timed(entry, "update", func() error {
			return h.runUpdate(ctx, monitorID, def)
		}); err != nil {
			return err
		}
	}

	if def.Issue.Solvable {
		if err := h.timed(entry, "solve", func() error {
			return h.runSolve(ctx, monitorID, def)
		}); err != nil {
			return err
		}
	}

	if containsTask(tasks, monitor.RunKindSearch) && def.Search != nil {
		if err := h.timed(entry, "search", func() error {
			return h.runSearch(ctx, monitorID, def)
		}); err != nil {
			return err
		}
	}

	return h.timed(entry, "alerts", func() error {
		if def.Alert == nil {
			return nil
		}
		return h.alerts.Recompute(ctx, monitorID, services.RecomputeOptions{
			Rule:                          def.Alert.Rule,
			DismissAcknowledgeOnNewIssues: def.Alert.DismissAcknowledgeOnNewIssues,
		}, time.Now().UTC())
	})
}

// runUpdate feeds the active issues' data to the update callback and
// stores the refreshed entries matched back by model id
func (h *MonitorHandler) runUpdate(ctx context.Context, monitorID int64, def *monitordef.Definition) error {
	active, err := h.issues.ListActive(ctx, monitorID)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	byModelID := make(map[string]*issue.Issue, len(active))
	dataList := make([]monitordef.IssueData, 0, len(active))
	for _, i := range active {
		byModelID[i.ModelID] = i
		dataList = append(dataList, i.Data)
	}

	updated, err := def.Update(ctx, dataList)
	if err != nil {
		return errors.UserCallback(def.Name, err)
	}

	for _, entry := range updated {
		data := NormalizeIssueData(entry)
		modelID, ok := modelIDFrom(data, def.Issue.ModelIDKey)
		if !ok {
			continue
		}
		target, ok := byModelID[modelID]
		if !ok {
			continue
		}

		if err := h.issues.UpdateData(ctx, target.ID, data); err != nil {
			return err
		}
		target.Data = data

		solved, err := def.IsSolvedCheck(data)
		if err != nil {
			return errors.UserCallback(def.Name, err)
		}
		name := event.IssueUpdatedNotSolved
		if solved {
			name = event.IssueUpdatedSolved
		}
		if err := h.events.Emit(ctx, event.SourceIssue, target.ID, monitorID, name, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// runSolve marks the active issues whose current data satisfies is_solved
func (h *MonitorHandler) runSolve(ctx context.Context, monitorID int64, def *monitordef.Definition) error {
	active, err := h.issues.ListActive(ctx, monitorID)
	if err != nil {
		return err
	}

	for _, i := range active {
		solved, err := def.IsSolvedCheck(i.Data)
		if err != nil {
			return errors.UserCallback(def.Name, err)
		}
		if !solved {
			continue
		}
		if err := h.issues.MarkSolved(ctx, i.ID); err != nil {
			return err
		}
	}
	return nil
}

// runSearch normalizes and filters the search results, then creates one
// issue per surviving entry
func (h *MonitorHandler) runSearch(ctx context.Context, monitorID int64, def *monitordef.Definition) error {
	results, err := def.Search(ctx)
	if err != nil {
		return errors.UserCallback(def.Name, err)
	}

	entries := make([]monitordef.IssueData, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, raw := range results {
		data := NormalizeIssueData(raw)
		modelID, ok := modelIDFrom(data, def.Issue.ModelIDKey)
		if !ok {
			h.logger.Warnf("Monitor '%s' search entry missing '%s'", def.Name, def.Issue.ModelIDKey)
			continue
		}
		if seen[modelID] {
			continue
		}
		seen[modelID] = true
		entries = append(entries, data)
	}

	limit := def.Monitor.MaxIssuesCreation
	if limit <= 0 {
		limit = h.cfg.MaxIssuesCreation
	}
	if len(entries) > limit {
		metrics.RecordSearchIssuesLimitReached(def.Name)
		h.logger.Warnf("Monitor '%s' search results truncated to %d issues", def.Name, limit)
		entries = entries[:limit]
	}

	for _, data := range entries {
		solved, err := def.IsSolvedCheck(data)
		if err != nil {
			return errors.UserCallback(def.Name, err)
		}
		if solved {
			continue
		}

		modelID, _ := modelIDFrom(data, def.Issue.ModelIDKey)
		if _, err := h.issues.Upsert(ctx, monitorID, modelID, data, def.Issue.Unique); err != nil {
			return err
		}
	}
	return nil
}

// handleNotRegistered consumes a message for a monitor the registry does
// not know, asking for an early reload
func (h *MonitorHandler) handleNotRegistered(ctx context.Context, monitorID int64, startedAt time.Time) error {
	metrics.RecordMonitorNotRegistered()
	h.logger.Warnf("Monitor '%d' is not registered", monitorID)
	h.registry.RequestReload()

	now := time.Now().UTC()
	if err := h.monitors.EndRun(ctx, monitorID, nil, false, now); err != nil {
		h.logger.ErrorWithErr(err, "Failed to end run of unregistered monitor")
	}
	if err := h.executions.RecordFailure(ctx, monitorID, execution.ErrorTypeNotRegistered, startedAt, now); err != nil {
		h.logger.ErrorWithErr(err, "Failed to record execution")
	}
	return nil
}

// recordOutcome stores the execution row and emits the run outcome event
func (h *MonitorHandler) recordOutcome(ctx context.Context, entry *registry.Entry, runErr error, startedAt, finishedAt time.Time) error {
	monitorID := entry.Monitor.ID

	if runErr == nil {
		if err := h.executions.RecordSuccess(ctx, monitorID, startedAt, finishedAt); err != nil {
			h.logger.ErrorWithErr(err, "Failed to record execution")
		}
		return h.events.Emit(ctx, event.SourceMonitor, monitorID, monitorID, event.MonitorExecutionSuccess, nil, nil)
	}

	errorType := execution.ErrorTypeCallback
	if errors.HasCode(runErr, errors.ErrCodeTimeout) || ctx.Err() != nil {
		errorType = execution.ErrorTypeTimeout
		metrics.RecordMonitorTimeout(entry.Monitor.Name)
	} else {
		metrics.RecordMonitorError(entry.Monitor.Name)
	}

	recordCtx := ctx
	if ctx.Err() != nil {
		// The run context may already be past its deadline
		var cancel context.CancelFunc
		recordCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if err := h.executions.RecordFailure(recordCtx, monitorID, errorType, startedAt, finishedAt); err != nil {
		h.logger.ErrorWithErr(err, "Failed to record execution")
	}
	if err := h.events.Emit(recordCtx, event.SourceMonitor, monitorID, monitorID, event.MonitorExecutionError, map[string]interface{}{
		"error_type": errorType,
	}, nil); err != nil {
		h.logger.ErrorWithErr(err, "Failed to emit execution error event")
	}
	return runErr
}

func (h *MonitorHandler) timed(entry *registry.Entry, routine string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.ObserveMonitorRoutine(entry.Monitor.Name, routine, time.Since(start))
	return err
}

func containsTask(tasks []string, task string) bool {
	for _, t := range tasks {
		if t == task {
			return true
		}
	}
	return false
}

// modelIDFrom extracts the model id from normalized issue data
func modelIDFrom(data monitordef.IssueData, key string) (string, bool) {
	value, ok := data[key]
	if !ok || value == nil {
		return "", false
	}
	return fmt.Sprint(value), true
}
