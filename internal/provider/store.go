package provider

import (
	"context"

	"stablegate/pkg/domain"
)

// Store persists provider records. Execute runs validate and mutate under
// one lock so concurrent attestations cannot interleave with a
// deactivation.
type Store interface {
	// Create inserts a new provider; sentinel.ErrAlreadyExists if the
	// address is taken.
	Create(ctx context.Context, p *Provider) error

	// Get returns the provider at the address; sentinel.ErrNotFound if
	// absent.
	Get(ctx context.Context, addr domain.Address) (*Provider, error)

	// Execute atomically validates and mutates one provider, returning the
	// updated copy.
	Execute(ctx context.Context, addr domain.Address, validate func(*Provider) error, mutate func(*Provider)) (*Provider, error)

	// List returns all providers, active and inactive.
	List(ctx context.Context) ([]*Provider, error)
}
