package token

import (
	"context"
	"sync"
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/sentinel"
)

// InMemoryLedger keeps accounts keyed by their deterministic storage key.
// One mutex covers all accounts and the supply counter, which makes pair
// operations trivially atomic.
type InMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	supply   domain.Amount
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{accounts: make(map[string]*Account)}
}

func (l *InMemoryLedger) Account(_ context.Context, addr domain.Address) (*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	account, ok := l.accounts[domain.StorageKey(domain.NamespaceBalance, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (l *InMemoryLedger) Ensure(_ context.Context, addr domain.Address, now time.Time) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account := l.ensureLocked(addr, now)
	clone := *account
	return &clone, nil
}

// ensureLocked creates a frozen zero-balance account when absent. Callers
// hold the write lock.
func (l *InMemoryLedger) ensureLocked(addr domain.Address, now time.Time) *Account {
	key := domain.StorageKey(domain.NamespaceBalance, addr.String())
	if account, ok := l.accounts[key]; ok {
		return account
	}
	account := &Account{
		Address:   addr,
		Frozen:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.accounts[key] = account
	return account
}

func (l *InMemoryLedger) Execute(_ context.Context, addr domain.Address, validate func(*Account) error, mutate func(*Account)) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[domain.StorageKey(domain.NamespaceBalance, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	work := *account
	if err := validate(&work); err != nil {
		return nil, err
	}
	mutate(&work)

	*account = work
	clone := work
	return &clone, nil
}

func (l *InMemoryLedger) ExecutePair(_ context.Context, a, b domain.Address, validate func(a, b *Account) error, mutate func(a, b *Account)) error {
	if a == b {
		return dErrors.New(dErrors.CodeInvalidInput, "pair operation requires two distinct accounts")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accA, ok := l.accounts[domain.StorageKey(domain.NamespaceBalance, a.String())]
	if !ok {
		return sentinel.ErrNotFound
	}
	accB, ok := l.accounts[domain.StorageKey(domain.NamespaceBalance, b.String())]
	if !ok {
		return sentinel.ErrNotFound
	}

	workA, workB := *accA, *accB
	if err := validate(&workA, &workB); err != nil {
		return err
	}
	mutate(&workA, &workB)

	*accA, *accB = workA, workB
	return nil
}

func (l *InMemoryLedger) AdjustSupply(_ context.Context, delta int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if delta >= 0 {
		next, err := l.supply.CheckedAdd(domain.Amount(delta))
		if err != nil {
			return err
		}
		l.supply = next
		return nil
	}
	next, err := l.supply.CheckedSub(domain.Amount(-delta))
	if err != nil {
		return err
	}
	l.supply = next
	return nil
}

func (l *InMemoryLedger) Supply(_ context.Context) (domain.Amount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply, nil
}
