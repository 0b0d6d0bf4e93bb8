//go:build integration

package token_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/internal/token"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/sentinel"
	"stablegate/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	ledger   *token.PostgresLedger
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.ledger = token.NewPostgresLedger(s.postgres.DB)
}

func (s *PostgresLedgerSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "token_accounts", "token_supply")
	s.Require().NoError(err)
}

func (s *PostgresLedgerSuite) ensureFunded(addr string, balance domain.Amount) {
	ctx := context.Background()
	_, err := s.ledger.Ensure(ctx, domain.Address(addr), time.Now().UTC())
	s.Require().NoError(err)
	_, err = s.ledger.Execute(ctx, domain.Address(addr),
		func(a *token.Account) error { return nil },
		func(a *token.Account) {
			a.Balance = balance
			a.Frozen = false
			a.UpdatedAt = time.Now().UTC()
		},
	)
	s.Require().NoError(err)
}

func (s *PostgresLedgerSuite) TestEnsure() {
	ctx := context.Background()
	addr := domain.Address("aliceWallet12345")

	account, err := s.ledger.Ensure(ctx, addr, time.Now().UTC())
	s.Require().NoError(err)
	s.True(account.Frozen, "new accounts start frozen")
	s.Equal(domain.Amount(0), account.Balance)

	// Re-ensuring must not reset an unfrozen balance.
	s.ensureFunded(addr.String(), domain.FromEUR(250))
	again, err := s.ledger.Ensure(ctx, addr, time.Now().UTC())
	s.Require().NoError(err)
	s.False(again.Frozen)
	s.Equal(domain.FromEUR(250), again.Balance)
}

func (s *PostgresLedgerSuite) TestAccountMissing() {
	_, err := s.ledger.Account(context.Background(), domain.Address("strangerAddr1234"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestExecutePairSameAddress() {
	addr := domain.Address("aliceWallet12345")
	err := s.ledger.ExecutePair(context.Background(), addr, addr,
		func(a, b *token.Account) error { return nil },
		func(a, b *token.Account) {},
	)
	s.Equal(dErrors.CodeInvalidInput, dErrors.GetCode(err))
}

// TestConcurrentOpposingTransfers drives transfers in both directions between
// the same two accounts. Address-ordered locking must keep every transfer
// atomic and the combined balance constant, with no deadlocks.
func (s *PostgresLedgerSuite) TestConcurrentOpposingTransfers() {
	ctx := context.Background()
	alice := domain.Address("aliceWallet12345")
	bob := domain.Address("bobWallet1234567")
	s.ensureFunded(alice.String(), domain.FromEUR(1_000))
	s.ensureFunded(bob.String(), domain.FromEUR(1_000))

	transfer := func(from, to domain.Address, amount domain.Amount) error {
		return s.ledger.ExecutePair(ctx, from, to,
			func(src, dst *token.Account) error {
				if src.Balance < amount {
					return sentinel.ErrInvalidState
				}
				return nil
			},
			func(src, dst *token.Account) {
				src.Balance -= amount
				dst.Balance += amount
				now := time.Now().UTC()
				src.UpdatedAt = now
				dst.UpdatedAt = now
			},
		)
	}

	const rounds = 25
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = transfer(alice, bob, domain.FromEUR(10))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = transfer(bob, alice, domain.FromEUR(10))
		}
	}()
	wg.Wait()

	accAlice, err := s.ledger.Account(ctx, alice)
	s.Require().NoError(err)
	accBob, err := s.ledger.Account(ctx, bob)
	s.Require().NoError(err)
	s.Equal(domain.FromEUR(2_000), accAlice.Balance+accBob.Balance,
		"transfers must conserve the combined balance")
}

func (s *PostgresLedgerSuite) TestAdjustSupply() {
	ctx := context.Background()

	supply, err := s.ledger.Supply(ctx)
	s.Require().NoError(err)
	s.Equal(domain.Amount(0), supply)

	s.Require().NoError(s.ledger.AdjustSupply(ctx, 1_000))
	s.Require().NoError(s.ledger.AdjustSupply(ctx, -400))

	supply, err = s.ledger.Supply(ctx)
	s.Require().NoError(err)
	s.Equal(domain.Amount(600), supply)

	// The supply check constraint refuses burns below zero.
	err = s.ledger.AdjustSupply(ctx, -700)
	s.Error(err)

	supply, err = s.ledger.Supply(ctx)
	s.Require().NoError(err)
	s.Equal(domain.Amount(600), supply)
}
