package blacklist

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
)

const suspectAddr domain.Address = "suspectAddr12345"

type BlacklistServiceSuite struct {
	suite.Suite

	now       time.Time
	regulator domain.Actor
	service   *Service
}

func TestBlacklistServiceSuite(t *testing.T) {
	suite.Run(t, new(BlacklistServiceSuite))
}

func (s *BlacklistServiceSuite) SetupTest() {
	s.now = time.Now().Truncate(time.Second)
	s.regulator = domain.NewActor("bafinAuthority12", domain.CapRegulator)
	s.service = NewService(
		NewInMemoryStore(),
		audit.NewPublisher(audit.NewInMemoryStore()),
		slog.Default(),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *BlacklistServiceSuite) TestAdd() {
	ctx := context.Background()

	s.Run("listing takes effect immediately", func() {
		entry, err := s.service.Add(ctx, s.regulator, AddRequest{
			Address:     suspectAddr,
			Reason:      ReasonSuspiciousActivity,
			Action:      ActionBlockTransfers,
			EvidenceRef: "case-2024-117",
		})
		s.Require().NoError(err)
		s.True(entry.Active)

		listed, err := s.service.IsBlacklisted(ctx, suspectAddr)
		s.Require().NoError(err)
		s.True(listed)
	})

	s.Run("double listing rejected", func() {
		_, err := s.service.Add(ctx, s.regulator, AddRequest{
			Address: suspectAddr,
			Reason:  ReasonOther,
			Action:  ActionFreeze,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("non-regulator rejected", func() {
		_, err := s.service.Add(ctx, domain.NewActor("randomUser123456"), AddRequest{
			Address: "otherSuspect1234",
			Reason:  ReasonOther,
			Action:  ActionFreeze,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *BlacklistServiceSuite) TestExpiry() {
	ctx := context.Background()

	_, err := s.service.Add(ctx, s.regulator, AddRequest{
		Address:   suspectAddr,
		Reason:    ReasonRegulatoryOrder,
		Action:    ActionRestrict,
		ExpiresAt: s.now.Add(24 * time.Hour),
	})
	s.Require().NoError(err)

	listed, err := s.service.IsBlacklisted(ctx, suspectAddr)
	s.Require().NoError(err)
	s.True(listed)

	// Past the expiry the entry reads as inactive without a write.
	s.now = s.now.Add(25 * time.Hour)
	listed, err = s.service.IsBlacklisted(ctx, suspectAddr)
	s.Require().NoError(err)
	s.False(listed)

	// An expired entry can be relisted.
	_, err = s.service.Add(ctx, s.regulator, AddRequest{
		Address: suspectAddr,
		Reason:  ReasonCourtOrder,
		Action:  ActionSeize,
	})
	s.Require().NoError(err)
	entry, err := s.service.Get(ctx, suspectAddr)
	s.Require().NoError(err)
	s.Equal(ReasonCourtOrder, entry.Reason)
	s.True(entry.ExpiresAt.IsZero())
}

func (s *BlacklistServiceSuite) TestClear() {
	ctx := context.Background()

	_, err := s.service.Add(ctx, s.regulator, AddRequest{
		Address: suspectAddr,
		Reason:  ReasonAmlAlert,
		Action:  ActionFreeze,
		AlertID: "alert-42",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Clear(ctx, s.regulator, suspectAddr, "investigation closed"))

	listed, err := s.service.IsBlacklisted(ctx, suspectAddr)
	s.Require().NoError(err)
	s.False(listed)

	// The entry survives clearing for the audit trail.
	entry, err := s.service.Get(ctx, suspectAddr)
	s.Require().NoError(err)
	s.False(entry.Active)
	s.Equal("investigation closed", entry.ClearReason)
	s.Equal("alert-42", entry.AlertID)

	s.Run("clearing twice rejected", func() {
		err := s.service.Clear(ctx, s.regulator, suspectAddr, "again")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("clearing unknown address rejected", func() {
		err := s.service.Clear(ctx, s.regulator, "unknownAddr12345", "noop")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
