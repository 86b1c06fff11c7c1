package queue

import (
	"context"
	"fmt"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

// Queue types accepted by application_queue.type
const (
	TypeInternal = "internal"
	TypeSQS      = "sqs"
)

// New builds the queue implementation selected by the configuration
func New(ctx context.Context, cfg config.QueueConfig) (Queue, error) {
	switch cfg.Type {
	case TypeInternal:
		return NewMemoryQueue(DefaultMemoryCapacity, cfg.VisibilityDuration()), nil
	case TypeSQS:
		return NewSQSQueue(ctx, cfg)
	default:
		return nil, errors.Fatal(fmt.Sprintf("unknown queue type '%s'", cfg.Type), nil)
	}
}
