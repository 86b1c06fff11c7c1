package event

import "context"

// Repository defines the interface for event data access
type Repository interface {
	// Create appends an event
	Create(ctx context.Context, e *Event) error

	// ListPending retrieves events still awaiting queue publication, oldest
	// first
	ListPending(ctx context.Context, limit int) ([]*Event, error)

	// MarkPublished clears the pending flag
	MarkPublished(ctx context.Context, id string) error
}
