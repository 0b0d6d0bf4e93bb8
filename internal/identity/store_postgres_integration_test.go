//go:build integration

package identity_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/internal/identity"
	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
	"stablegate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *identity.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = identity.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "kyc_users")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newRecord(user string) *identity.Record {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &identity.Record{
		User:          domain.Address(user),
		Status:        identity.StatusPending,
		Level:         domain.LevelNone,
		RequiredLevel: domain.LevelBasic,
		Country:       domain.CountryCode("DE"),
		RoutingCode:   "10070000",
		IBANHash:      "2f1a26aa9e0c43e9",
		RegisteredAt:  now,
		UpdatedAt:     now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndGet() {
	ctx := context.Background()
	record := s.newRecord("aliceWallet12345")

	s.Require().NoError(s.store.Create(ctx, record))

	found, err := s.store.Get(ctx, record.User)
	s.Require().NoError(err)
	s.Equal(record.User, found.User)
	s.Equal(identity.StatusPending, found.Status)
	s.Equal(domain.LevelBasic, found.RequiredLevel)
	s.Equal(record.IBANHash, found.IBANHash)
	s.True(found.VerifiedAt.IsZero(), "unverified record must not carry a verification time")
}

func (s *PostgresStoreSuite) TestCreateDuplicate() {
	ctx := context.Background()
	record := s.newRecord("aliceWallet12345")

	s.Require().NoError(s.store.Create(ctx, record))
	err := s.store.Create(ctx, record)
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *PostgresStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), domain.Address("strangerAddr1234"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestExecuteTransition() {
	ctx := context.Background()
	record := s.newRecord("aliceWallet12345")
	s.Require().NoError(s.store.Create(ctx, record))

	now := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := s.store.Execute(ctx, record.User,
		func(r *identity.Record) error { return nil },
		func(r *identity.Record) {
			r.Status = identity.StatusVerified
			r.Level = domain.LevelStandard
			r.Provider = "verimi"
			r.VerifiedAt = now
			r.ExpiresAt = now.Add(365 * 24 * time.Hour)
			r.UpdatedAt = now
		},
	)
	s.Require().NoError(err)
	s.Equal(identity.StatusVerified, updated.Status)

	found, err := s.store.Get(ctx, record.User)
	s.Require().NoError(err)
	s.Equal(identity.StatusVerified, found.Status)
	s.Equal(domain.LevelStandard, found.Level)
	s.Equal("verimi", found.Provider)
	s.WithinDuration(now, found.VerifiedAt, time.Second)
}

func (s *PostgresStoreSuite) TestExecuteValidateRejection() {
	ctx := context.Background()
	record := s.newRecord("aliceWallet12345")
	s.Require().NoError(s.store.Create(ctx, record))

	_, err := s.store.Execute(ctx, record.User,
		func(r *identity.Record) error { return sentinel.ErrInvalidState },
		func(r *identity.Record) { r.Status = identity.StatusVerified },
	)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	// The rejected mutation must not have leaked into the row.
	found, err := s.store.Get(ctx, record.User)
	s.Require().NoError(err)
	s.Equal(identity.StatusPending, found.Status)
}

// TestConcurrentExecute verifies that FOR UPDATE serializes transitions: each
// mutation observes the committed result of the previous one, so exactly one
// of many concurrent verify attempts wins.
func (s *PostgresStoreSuite) TestConcurrentExecute() {
	ctx := context.Background()
	record := s.newRecord("aliceWallet12345")
	s.Require().NoError(s.store.Create(ctx, record))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, record.User,
				func(r *identity.Record) error {
					if r.Status == identity.StatusVerified {
						return sentinel.ErrInvalidState
					}
					return nil
				},
				func(r *identity.Record) {
					r.Status = identity.StatusVerified
					r.Level = domain.LevelBasic
					r.UpdatedAt = time.Now().UTC()
				},
			)
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one transition should win")

	count, err := s.store.VerifiedCount(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *PostgresStoreSuite) TestVerifiedCount() {
	ctx := context.Background()

	for _, user := range []string{"aliceWallet12345", "bobWallet1234567", "carolWallet12345"} {
		record := s.newRecord(user)
		s.Require().NoError(s.store.Create(ctx, record))
	}
	for _, user := range []string{"aliceWallet12345", "bobWallet1234567"} {
		_, err := s.store.Execute(ctx, domain.Address(user),
			func(r *identity.Record) error { return nil },
			func(r *identity.Record) {
				r.Status = identity.StatusVerified
				r.Level = domain.LevelBasic
				r.VerifiedAt = time.Now().UTC()
				r.UpdatedAt = time.Now().UTC()
			},
		)
		s.Require().NoError(err)
	}

	count, err := s.store.VerifiedCount(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}
