package executor

import (
	"context"
	"sync"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/pkg/metrics"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/services"
)

// Handler processes one received message
type Handler interface {
	Handle(ctx context.Context, msg *queue.Message) error
}

// Executor runs the worker pool consuming queue messages. Each message is
// dispatched to its kind's handler under that kind's timeout while a
// heartbeat task keeps the message lease and the monitor row alive.
// Failed and timed-out messages are acked, not redelivered: monitor work
// is re-scheduled by the controller and reactions and requests are best
// effort
type Executor struct {
	cfg      *config.Config
	queue    queue.Queue
	monitors *services.MonitorService
	handlers map[queue.Kind]Handler
	logger   *logger.Logger
}

// New creates an executor with its per-kind handlers
func New(cfg *config.Config, q queue.Queue, monitors *services.MonitorService, monitorHandler, reactionHandler, requestHandler Handler, log *logger.Logger) *Executor {
	return &Executor{
		cfg:      cfg,
		queue:    q,
		monitors: monitors,
		handlers: map[queue.Kind]Handler{
			queue.KindMonitor: monitorHandler,
			queue.KindEvent:   reactionHandler,
			queue.KindRequest: requestHandler,
		},
		logger: log.With("component", "executor"),
	}
}

// Run starts the worker pool and blocks until the context ends and every
// in-flight message finished
func (e *Executor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.ExecutorConcurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.workerLoop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (e *Executor) workerLoop(ctx context.Context, worker int) {
	log := e.logger.With("worker", worker)

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := e.queue.Receive(ctx, e.cfg.ApplicationQueue.WaitMessageDuration())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.RecordQueueError()
			log.ErrorWithErr(err, "Failed to receive message")
			e.sleep(ctx)
			continue
		}
		if msg == nil {
			e.sleep(ctx)
			continue
		}

		e.handle(ctx, msg, log)
	}
}

// handle dispatches one message under its kind's timeout and always acks
func (e *Executor) handle(ctx context.Context, msg *queue.Message, log *logger.Logger) {
	kind := string(msg.Kind)
	metrics.RecordMessage(kind)
	metrics.MessageProcessing(kind, 1)
	defer metrics.MessageProcessing(kind, -1)

	handler, ok := e.handlers[msg.Kind]
	if !ok {
		metrics.RecordMessageError(kind)
		log.Errorf("No handler for message kind '%s'", kind)
		e.ack(ctx, msg, log)
		return
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		e.heartbeatLoop(heartbeatCtx, msg)
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.timeoutFor(msg.Kind))
	err := handler.Handle(runCtx, msg)
	cancel()

	stopHeartbeat()
	<-heartbeatDone

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded || errors.HasCode(err, errors.ErrCodeTimeout) {
			metrics.RecordHandlerTimeout(kind)
			log.Errorf("Message handler for kind '%s' timed out", kind)
		} else {
			metrics.RecordMessageError(kind)
			log.ErrorWithErr(err, "Message handler failed")
		}
	}

	e.ack(ctx, msg, log)
}

// heartbeatLoop extends the message lease and, for monitor messages, bumps
// the monitor's heartbeat until stopped
func (e *Executor) heartbeatLoop(ctx context.Context, msg *queue.Message) {
	interval := e.cfg.ExecutorMonitorHeartbeatDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var monitorID int64
	if msg.Kind == queue.KindMonitor {
		var payload queue.MonitorPayload
		if err := queue.DecodePayload(msg, &payload); err == nil {
			monitorID = payload.MonitorID
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := e.queue.ExtendVisibility(ctx, msg, e.cfg.ApplicationQueue.VisibilityDuration()); err != nil {
			if ctx.Err() == nil {
				metrics.RecordQueueError()
				e.logger.ErrorWithErr(err, "Failed to extend message visibility")
			}
		}
		if monitorID != 0 {
			// Fails harmlessly until begin_run flips the running flag
			_ = e.monitors.Heartbeat(ctx, monitorID, time.Now().UTC())
		}
	}
}

func (e *Executor) timeoutFor(kind queue.Kind) time.Duration {
	switch kind {
	case queue.KindMonitor:
		return e.cfg.ExecutorMonitorTimeoutDuration()
	case queue.KindEvent:
		return e.cfg.ExecutorReactionTimeoutDuration()
	default:
		return e.cfg.ExecutorRequestTimeoutDuration()
	}
}

func (e *Executor) ack(ctx context.Context, msg *queue.Message, log *logger.Logger) {
	ackCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ackCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := e.queue.Ack(ackCtx, msg); err != nil {
		metrics.RecordQueueError()
		log.ErrorWithErr(err, "Failed to ack message")
	}
}

func (e *Executor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(e.cfg.ExecutorSleepDuration()):
	}
}
