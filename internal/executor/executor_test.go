package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/pkg/logger"
	"github.com/sentinela-io/sentinela/internal/queue"
	"github.com/sentinela-io/sentinela/internal/services"
	"github.com/sentinela-io/sentinela/internal/testutil"
)

type recordingHandler struct {
	handled []*queue.Message
	err     error
}

func (h *recordingHandler) Handle(ctx context.Context, msg *queue.Message) error {
	h.handled = append(h.handled, msg)
	return h.err
}

func newExecutorFixture(t *testing.T) (*Executor, *testutil.MockQueue, map[queue.Kind]*recordingHandler) {
	t.Helper()
	log := logger.New(logger.Config{Mode: "json", Level: "error"})
	cfg := &config.Config{
		ExecutorConcurrency:          1,
		ExecutorSleep:                1,
		ExecutorMonitorTimeout:       60,
		ExecutorReactionTimeout:      15,
		ExecutorRequestTimeout:       20,
		ExecutorMonitorHeartbeatTime: 60,
		ApplicationQueue:             config.QueueConfig{QueueWaitMessageTime: 1, QueueVisibilityTime: 15},
	}

	q := testutil.NewMockQueue()
	events := services.NewEventService(testutil.NewMockEventRepository(), nil, nil, true, log)
	monitors := services.NewMonitorService(testutil.NewMockMonitorRepository(), events, log)

	handlers := map[queue.Kind]*recordingHandler{
		queue.KindMonitor: {},
		queue.KindEvent:   {},
		queue.KindRequest: {},
	}
	e := New(cfg, q, monitors,
		handlers[queue.KindMonitor], handlers[queue.KindEvent], handlers[queue.KindRequest], log)
	return e, q, handlers
}

func TestExecutor_DispatchesByKind(t *testing.T) {
	e, q, handlers := newExecutorFixture(t)
	ctx := context.Background()
	log := logger.New(logger.Config{Mode: "json", Level: "error"})

	for _, kind := range []queue.Kind{queue.KindMonitor, queue.KindEvent, queue.KindRequest} {
		msg := &queue.Message{ID: string(kind) + "-1", Kind: kind, Body: []byte(`{}`)}
		e.handle(ctx, msg, log)

		if len(handlers[kind].handled) != 1 {
			t.Errorf("kind %s dispatched %d times, want 1", kind, len(handlers[kind].handled))
		}
	}
	if len(q.Acked) != 3 {
		t.Errorf("acked = %d messages, want 3", len(q.Acked))
	}
}

func TestExecutor_FailedHandlerStillAcks(t *testing.T) {
	e, q, handlers := newExecutorFixture(t)
	log := logger.New(logger.Config{Mode: "json", Level: "error"})
	handlers[queue.KindMonitor].err = fmt.Errorf("callback exploded")

	msg := &queue.Message{ID: "m-1", Kind: queue.KindMonitor, Body: []byte(`{}`)}
	e.handle(context.Background(), msg, log)

	if len(q.Acked) != 1 {
		t.Errorf("acked = %d, want 1: failures are not redelivered", len(q.Acked))
	}
	if len(q.Nacked) != 0 {
		t.Errorf("nacked = %d, want 0", len(q.Nacked))
	}
}

func TestExecutor_UnknownKindIsConsumed(t *testing.T) {
	e, q, handlers := newExecutorFixture(t)
	log := logger.New(logger.Config{Mode: "json", Level: "error"})

	msg := &queue.Message{ID: "x-1", Kind: queue.Kind("telemetry"), Body: []byte(`{}`)}
	e.handle(context.Background(), msg, log)

	for kind, h := range handlers {
		if len(h.handled) != 0 {
			t.Errorf("kind %s handler invoked for an unknown message", kind)
		}
	}
	if len(q.Acked) != 1 {
		t.Errorf("acked = %d, want 1", len(q.Acked))
	}
}

func TestExecutor_TimeoutForKind(t *testing.T) {
	e, _, _ := newExecutorFixture(t)

	tests := []struct {
		kind queue.Kind
		want time.Duration
	}{
		{queue.KindMonitor, 60 * time.Second},
		{queue.KindEvent, 15 * time.Second},
		{queue.KindRequest, 20 * time.Second},
	}
	for _, tt := range tests {
		if got := e.timeoutFor(tt.kind); got != tt.want {
			t.Errorf("timeoutFor(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
