package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/sentinel"
)

func TestInMemoryLedgerEnsure(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger()
	now := time.Now().Truncate(time.Second)

	_, err := ledger.Account(ctx, "aliceWallet12345")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	account, err := ledger.Ensure(ctx, "aliceWallet12345", now)
	require.NoError(t, err)
	assert.True(t, account.Frozen, "new accounts start frozen")
	assert.True(t, account.Balance.IsZero())
	assert.Equal(t, now, account.CreatedAt)

	// Ensure is idempotent and never resets an existing account.
	_, err = ledger.Execute(ctx, "aliceWallet12345",
		func(*Account) error { return nil },
		func(a *Account) { a.Balance = 42; a.Frozen = false },
	)
	require.NoError(t, err)
	again, err := ledger.Ensure(ctx, "aliceWallet12345", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(42), again.Balance)
	assert.False(t, again.Frozen)
}

func TestInMemoryLedgerExecuteRollsBackOnValidateError(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger()
	now := time.Now()
	_, err := ledger.Ensure(ctx, "aliceWallet12345", now)
	require.NoError(t, err)

	_, err = ledger.Execute(ctx, "aliceWallet12345",
		func(*Account) error {
			return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient balance")
		},
		func(a *Account) { a.Balance = 999 },
	)
	require.Error(t, err)

	account, err := ledger.Account(ctx, "aliceWallet12345")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero(), "failed validation must not mutate")
}

func TestInMemoryLedgerExecutePair(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger()
	now := time.Now()
	for _, addr := range []domain.Address{"aliceWallet12345", "bobWallet1234567"} {
		_, err := ledger.Ensure(ctx, addr, now)
		require.NoError(t, err)
	}
	_, err := ledger.Execute(ctx, "aliceWallet12345",
		func(*Account) error { return nil },
		func(a *Account) { a.Balance = 100 },
	)
	require.NoError(t, err)

	err = ledger.ExecutePair(ctx, "aliceWallet12345", "aliceWallet12345",
		func(a, b *Account) error { return nil },
		func(a, b *Account) {},
	)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	err = ledger.ExecutePair(ctx, "aliceWallet12345", "bobWallet1234567",
		func(a, b *Account) error {
			if a.Balance < 30 {
				return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient balance")
			}
			return nil
		},
		func(a, b *Account) {
			a.Balance -= 30
			b.Balance += 30
		},
	)
	require.NoError(t, err)

	a, err := ledger.Account(ctx, "aliceWallet12345")
	require.NoError(t, err)
	b, err := ledger.Account(ctx, "bobWallet1234567")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(70), a.Balance)
	assert.Equal(t, domain.Amount(30), b.Balance)
}

func TestInMemoryLedgerSupply(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger()

	require.NoError(t, ledger.AdjustSupply(ctx, 1_000))
	require.NoError(t, ledger.AdjustSupply(ctx, -400))

	supply, err := ledger.Supply(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(600), supply)

	// Supply can never go negative.
	err = ledger.AdjustSupply(ctx, -10_000)
	require.Error(t, err)
	supply, err = ledger.Supply(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(600), supply)
}
