package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

// DefaultMemoryCapacity bounds the internal queue when no capacity is given
const DefaultMemoryCapacity = 10000

// pollInterval is how often a waiting Receive rechecks for visible messages
const pollInterval = 50 * time.Millisecond

type memoryMessage struct {
	msg       Message
	visibleAt time.Time
}

// MemoryQueue is the in-process queue used by single-process deployments
// and tests. It keeps FIFO order and honors visibility windows the same way
// the external transport does
type MemoryQueue struct {
	mu         sync.Mutex
	messages   []*memoryMessage
	capacity   int
	visibility time.Duration
	now        func() time.Time
}

// NewMemoryQueue creates a bounded in-process queue
func NewMemoryQueue(capacity int, visibility time.Duration) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryQueue{
		capacity:   capacity,
		visibility: visibility,
		now:        time.Now,
	}
}

func (q *MemoryQueue) Send(_ context.Context, kind Kind, payload interface{}) error {
	body, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	_, raw, err := Decode(body)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) >= q.capacity {
		return errors.QueueError("internal queue is full", nil)
	}
	q.messages = append(q.messages, &memoryMessage{
		msg: Message{
			ID:   uuid.New().String(),
			Kind: kind,
			Body: raw,
		},
		visibleAt: q.now(),
	})
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, wait time.Duration) (*Message, error) {
	deadline := q.now().Add(wait)
	for {
		if msg := q.takeVisible(); msg != nil {
			return msg, nil
		}
		if !q.now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// takeVisible returns the oldest visible message, leasing it for the
// visibility window
func (q *MemoryQueue) takeVisible() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, m := range q.messages {
		if m.visibleAt.After(now) {
			continue
		}
		m.visibleAt = now.Add(q.visibility)
		m.msg.ReceiptHandle = uuid.New().String()
		m.msg.DeliveryCount++
		delivered := m.msg
		return &delivered
	}
	return nil
}

func (q *MemoryQueue) ExtendVisibility(_ context.Context, msg *Message, d time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.msg.ReceiptHandle == msg.ReceiptHandle {
			m.visibleAt = q.now().Add(d)
			return nil
		}
	}
	return errors.QueueError("unknown receipt handle", nil)
}

func (q *MemoryQueue) Ack(_ context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.msg.ReceiptHandle == msg.ReceiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return errors.QueueError("unknown receipt handle", nil)
}

func (q *MemoryQueue) Nack(_ context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.msg.ReceiptHandle == msg.ReceiptHandle {
			m.visibleAt = q.now()
			return nil
		}
	}
	return errors.QueueError("unknown receipt handle", nil)
}

// Len reports how many messages are stored, in flight included
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
