package token

import (
	"context"
	"time"

	"stablegate/pkg/domain"
)

// Account is one token account. Accounts are created frozen; the first mint
// thaws them, so an account can never move value before the issuer has
// touched it.
type Account struct {
	Address domain.Address
	Balance domain.Amount
	Frozen  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StorageKey returns the deterministic location of this account.
func (a *Account) StorageKey() string {
	return domain.StorageKey(domain.NamespaceBalance, a.Address.String())
}

// Ledger persists token accounts and the issued-supply counter. All
// mutations are atomic: Execute and ExecutePair run validate and mutate
// under locks covering every involved account.
type Ledger interface {
	// Account returns the account at the address; sentinel.ErrNotFound if
	// absent.
	Account(ctx context.Context, addr domain.Address) (*Account, error)

	// Ensure returns the account at the address, creating it frozen with a
	// zero balance when absent.
	Ensure(ctx context.Context, addr domain.Address, now time.Time) (*Account, error)

	// Execute atomically validates and mutates one account.
	Execute(ctx context.Context, addr domain.Address, validate func(*Account) error, mutate func(*Account)) (*Account, error)

	// ExecutePair atomically validates and mutates two distinct accounts,
	// locking in a stable order so concurrent opposing transfers cannot
	// deadlock.
	ExecutePair(ctx context.Context, a, b domain.Address, validate func(a, b *Account) error, mutate func(a, b *Account)) error

	// AdjustSupply moves the issued-supply counter by delta (positive on
	// mint, negative on burn).
	AdjustSupply(ctx context.Context, delta int64) error

	// Supply returns the issued supply in base units.
	Supply(ctx context.Context) (domain.Amount, error)
}
