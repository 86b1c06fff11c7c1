package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

// Kind identifies the handler a message is routed to
type Kind string

const (
	KindMonitor Kind = "monitor"
	KindEvent   Kind = "event"
	KindRequest Kind = "request"
)

// Message is one unit of queued work. ReceiptHandle identifies the
// in-flight delivery for visibility and ack operations
type Message struct {
	ID            string
	Kind          Kind
	Body          json.RawMessage
	ReceiptHandle string
	DeliveryCount int
}

// Queue is the FIFO transport between the Controller, the Executor and the
// event publisher. A received message stays invisible for the queue's
// visibility window; without an ack it becomes redeliverable
type Queue interface {
	// Send enqueues a message of the given kind
	Send(ctx context.Context, kind Kind, payload interface{}) error

	// Receive waits up to wait for a message, returning nil when the queue
	// stayed empty
	Receive(ctx context.Context, wait time.Duration) (*Message, error)

	// ExtendVisibility renews the invisibility window of an in-flight message
	ExtendVisibility(ctx context.Context, msg *Message, d time.Duration) error

	// Ack deletes a received message
	Ack(ctx context.Context, msg *Message) error

	// Nack makes a received message immediately redeliverable
	Nack(ctx context.Context, msg *Message) error
}

// envelope is the wire form of a message body
type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MonitorPayload asks the Executor to run tasks of one monitor
type MonitorPayload struct {
	MonitorID int64    `json:"monitor_id"`
	Tasks     []string `json:"tasks"`
}

// RequestPayload asks the Executor to run an external action
type RequestPayload struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Encode serializes a payload into the wire envelope
func Encode(kind Kind, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.QueueError("failed to encode message payload", err)
	}
	body, err := json.Marshal(envelope{Kind: kind, Payload: raw})
	if err != nil {
		return nil, errors.QueueError("failed to encode message envelope", err)
	}
	return body, nil
}

// Decode parses the wire envelope, returning the kind and raw payload
func Decode(body []byte) (Kind, json.RawMessage, error) {
	var e envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return "", nil, errors.QueueError("failed to decode message envelope", err)
	}
	return e.Kind, e.Payload, nil
}

// DecodePayload parses a message's payload into out
func DecodePayload(msg *Message, out interface{}) error {
	if err := json.Unmarshal(msg.Body, out); err != nil {
		return errors.QueueError("failed to decode message payload", err)
	}
	return nil
}
