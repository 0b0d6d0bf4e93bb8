package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

type IdentityStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *IdentityStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func TestIdentityStoreSuite(t *testing.T) {
	suite.Run(t, new(IdentityStoreSuite))
}

func (s *IdentityStoreSuite) newRecord(user domain.Address) *Record {
	now := time.Now()
	return &Record{
		User:         user,
		Status:       StatusPending,
		Country:      "DE",
		RoutingCode:  "10070000",
		IBANHash:     "deadbeef",
		RegisteredAt: now,
		UpdatedAt:    now,
	}
}

func (s *IdentityStoreSuite) TestCreateAndGet() {
	s.Run("creates and finds record", func() {
		record := s.newRecord("userAaaa11111111")
		s.Require().NoError(s.store.Create(s.ctx, record))

		found, err := s.store.Get(s.ctx, "userAaaa11111111")
		s.Require().NoError(err)
		s.Equal(StatusPending, found.Status)
	})

	s.Run("rejects duplicate registration", func() {
		record := s.newRecord("userBbbb22222222")
		s.Require().NoError(s.store.Create(s.ctx, record))
		s.Require().ErrorIs(s.store.Create(s.ctx, record), sentinel.ErrAlreadyExists)
	})

	s.Run("returns ErrNotFound for unknown user", func() {
		_, err := s.store.Get(s.ctx, "userCccc33333333")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *IdentityStoreSuite) TestExecuteAtomicity() {
	record := s.newRecord("userDddd44444444")
	s.Require().NoError(s.store.Create(s.ctx, record))

	s.Run("failed validation leaves record untouched", func() {
		_, err := s.store.Execute(s.ctx, record.User,
			func(*Record) error { return sentinel.ErrInvalidState },
			func(r *Record) { r.Status = StatusVerified },
		)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.Get(s.ctx, record.User)
		s.Require().NoError(err)
		s.Equal(StatusPending, found.Status)
	})

	s.Run("mutation persists and copy is returned", func() {
		updated, err := s.store.Execute(s.ctx, record.User,
			func(*Record) error { return nil },
			func(r *Record) { r.Status = StatusSuspended },
		)
		s.Require().NoError(err)
		s.Equal(StatusSuspended, updated.Status)

		found, err := s.store.Get(s.ctx, record.User)
		s.Require().NoError(err)
		s.Equal(StatusSuspended, found.Status)
	})
}

func (s *IdentityStoreSuite) TestVerifiedCounter() {
	users := []domain.Address{"userEeee55555555", "userFfff66666666"}
	for _, u := range users {
		s.Require().NoError(s.store.Create(s.ctx, s.newRecord(u)))
	}

	verify := func(u domain.Address) {
		_, err := s.store.Execute(s.ctx, u,
			func(*Record) error { return nil },
			func(r *Record) { r.Status = StatusVerified; r.Level = domain.LevelBasic },
		)
		s.Require().NoError(err)
	}

	verify(users[0])
	verify(users[1])
	count, err := s.store.VerifiedCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), count)

	// Transition away from Verified decrements.
	_, err = s.store.Execute(s.ctx, users[0],
		func(*Record) error { return nil },
		func(r *Record) { r.Status = StatusRevoked; r.Level = domain.LevelNone },
	)
	s.Require().NoError(err)

	count, err = s.store.VerifiedCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	// Re-verifying the same user increments exactly once.
	verify(users[0])
	verify(users[0])
	count, err = s.store.VerifiedCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}
