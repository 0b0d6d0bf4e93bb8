package aml

import (
	"context"

	"stablegate/pkg/domain"
)

// AuthorityStore persists AML authority records.
type AuthorityStore interface {
	// Create inserts a new authority; sentinel.ErrAlreadyExists if the
	// address is taken.
	Create(ctx context.Context, a *Authority) error

	// Get returns the authority at the address; sentinel.ErrNotFound if
	// absent.
	Get(ctx context.Context, addr domain.Address) (*Authority, error)

	// Execute atomically validates and mutates one authority, returning the
	// updated copy.
	Execute(ctx context.Context, addr domain.Address, validate func(*Authority) error, mutate func(*Authority)) (*Authority, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	// Create inserts a new alert; sentinel.ErrAlreadyExists on an ID
	// collision.
	Create(ctx context.Context, alert *Alert) error

	// Get returns the alert by ID; sentinel.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Alert, error)

	// Execute atomically validates and mutates one alert, returning the
	// updated copy.
	Execute(ctx context.Context, id string, validate func(*Alert) error, mutate func(*Alert)) (*Alert, error)

	// ListBySubject returns all alerts targeting an address, newest first.
	ListBySubject(ctx context.Context, subject domain.Address) ([]*Alert, error)
}
