package controller

import (
	"context"
	"sync"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/domain/monitor"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
	"github.com/sentinela-io/sentinela/internal/pkg/schedule"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/registry"
	"github.com/sentinela-io/sentinela/internal/services"
)

// Controller schedules monitor work. On each process tick it claims due
// monitors and enqueues their run messages; janitorial procedures run on
// their own crons. Every transition is guarded by a store conditional, so
// a duplicate controller never double-schedules work
type Controller struct {
	cfg      *config.Config
	registry *registry.Registry
	monitors *services.MonitorService
	queue    queue.Queue
	logger   *logger.Logger

	procedures map[string]Procedure
}

// New creates a controller
func New(cfg *config.Config, reg *registry.Registry, monitors *services.MonitorService, notifications *services.NotificationService, q queue.Queue, log *logger.Logger) *Controller {
	c := &Controller{
		cfg:      cfg,
		registry: reg,
		monitors: monitors,
		queue:    q,
		logger:   log.With("component", "controller"),
	}
	c.procedures = map[string]Procedure{
		ProcedureMonitorsStuck:           newMonitorsStuckProcedure(monitors, cfg),
		ProcedureNotificationsAlertSolve: newNotificationsAlertSolvedProcedure(notifications),
	}
	return c
}

// Run drives the process loop and the configured procedures until the
// context ends
func (c *Controller) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runOnSchedule(ctx, c.cfg.ControllerProcessSchedule, "process", c.process)
	}()

	for name, procCfg := range c.cfg.ControllerProcedures {
		proc, ok := c.procedures[name]
		if !ok {
			c.logger.Warnf("Unknown controller procedure '%s'", name)
			continue
		}
		name, procCfg := name, procCfg
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runOnSchedule(ctx, procCfg.Schedule, name, func(ctx context.Context) {
				c.runProcedure(ctx, name, proc, procCfg.Params)
			})
		}()
	}

	wg.Wait()
}

// runOnSchedule invokes fn on each cron trigger of spec
func (c *Controller) runOnSchedule(ctx context.Context, spec, name string, fn func(context.Context)) {
	for {
		wait, err := schedule.UntilNextTrigger(spec, time.Now(), c.cfg.Location())
		if err != nil {
			c.logger.ErrorWithErr(err, "Invalid schedule for "+name)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		fn(ctx)
	}
}

// process claims every due monitor and enqueues its run message, bounding
// the concurrent claims
func (c *Controller) process(ctx context.Context) {
	now := time.Now()

	sem := make(chan struct{}, c.cfg.ControllerConcurrency)
	var wg sync.WaitGroup

	for _, entry := range c.registry.List() {
		if !entry.Monitor.Enabled || entry.Monitor.Queued {
			continue
		}

		tasks := c.dueTasks(entry, now)
		if len(tasks) == 0 {
			continue
		}

		entry := entry
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			c.schedule(ctx, entry, tasks, now)
		}()
	}

	wg.Wait()
}

// dueTasks decides which run kinds are due by evaluating each cron against
// the kind's last execution in the configured time zone
func (c *Controller) dueTasks(entry *registry.Entry, now time.Time) []string {
	var tasks []string

	if spec := entry.Definition.Monitor.SearchCron; spec != "" {
		if c.triggered(spec, entry.Monitor.SearchExecutedAt, entry.Monitor.CreatedAt, now) {
			tasks = append(tasks, monitor.RunKindSearch)
		}
	}
	if spec := entry.Definition.Monitor.UpdateCron; spec != "" {
		if c.triggered(spec, entry.Monitor.UpdateExecutedAt, entry.Monitor.CreatedAt, now) {
			tasks = append(tasks, monitor.RunKindUpdate)
		}
	}
	return tasks
}

func (c *Controller) triggered(spec string, lastExecution *time.Time, createdAt, now time.Time) bool {
	last := createdAt
	if lastExecution != nil {
		last = *lastExecution
	}

	due, err := schedule.IsTriggered(spec, last, now, c.cfg.Location())
	if err != nil {
		c.logger.ErrorWithErr(err, "Failed to evaluate monitor schedule")
		return false
	}
	return due
}

// schedule claims the monitor and enqueues its message, reverting the
// claim when the queue rejects it
func (c *Controller) schedule(ctx context.Context, entry *registry.Entry, tasks []string, now time.Time) {
	claimed, err := c.monitors.ClaimForRun(ctx, entry.Monitor.ID, now)
	if err != nil {
		c.logger.ErrorWithErr(err, "Failed to claim monitor")
		return
	}
	if !claimed {
		return
	}

	payload := queue.MonitorPayload{MonitorID: entry.Monitor.ID, Tasks: tasks}
	if err := c.queue.Send(ctx, queue.KindMonitor, payload); err != nil {
		metrics.RecordQueueError()
		c.logger.ErrorWithErr(err, "Failed to enqueue monitor message")
		if err := c.monitors.ReleaseClaim(ctx, entry.Monitor.ID); err != nil {
			c.logger.ErrorWithErr(err, "Failed to release monitor claim")
		}
		return
	}

	metrics.RecordMonitorProcessed()
	c.logger.WithFields(map[string]interface{}{
		"monitor": entry.Monitor.Name,
		"tasks":   tasks,
	}).Debug("Monitor scheduled")
}

func (c *Controller) runProcedure(ctx context.Context, name string, proc Procedure, params map[string]interface{}) {
	if err := proc.Run(ctx, params); err != nil {
		metrics.RecordProcedureRun(name, "error")
		c.logger.ErrorWithErr(err, "Procedure '"+name+"' failed")
		return
	}
	metrics.RecordProcedureRun(name, "success")
}
