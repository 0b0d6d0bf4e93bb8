package reserve

import (
	"context"
)

// StateStore persists the singleton reserve state. Mutations run through
// Execute so the backing counters move atomically.
type StateStore interface {
	// Get returns the current state; sentinel.ErrNotFound before the first
	// write.
	Get(ctx context.Context) (*State, error)

	// Execute atomically validates and mutates the state, creating a zero
	// state on first use.
	Execute(ctx context.Context, validate func(*State) error, mutate func(*State)) (*State, error)
}

// QueueStore persists redemption entries.
type QueueStore interface {
	Create(ctx context.Context, r *Redemption) error

	Get(ctx context.Context, id string) (*Redemption, error)

	// Execute atomically validates and mutates one entry.
	Execute(ctx context.Context, id string, validate func(*Redemption) error, mutate func(*Redemption)) (*Redemption, error)

	// NextPending returns the oldest pending entry of the lane, or
	// sentinel.ErrNotFound on an empty lane. Approved large redemptions
	// count as pending for ordering.
	NextPending(ctx context.Context, lane Lane) (*Redemption, error)

	// ListPending returns the lane's unprocessed entries in FIFO order.
	ListPending(ctx context.Context, lane Lane) ([]*Redemption, error)

	// NextSequence allocates the next queue position for the lane.
	NextSequence(ctx context.Context, lane Lane) (uint64, error)
}
