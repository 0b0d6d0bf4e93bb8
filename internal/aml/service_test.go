package aml

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/internal/blacklist"
	"stablegate/internal/identity"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
)

const (
	authorityAddr domain.Address = "fiuAuthority1234"
	subjectAddr   domain.Address = "suspectAddr12345"
)

type AmlServiceSuite struct {
	suite.Suite

	now       time.Time
	registry  domain.Actor
	authority domain.Actor
	identity  *identity.Service
	blacklist *blacklist.Service
	service   *Service
}

func TestAmlServiceSuite(t *testing.T) {
	suite.Run(t, new(AmlServiceSuite))
}

func (s *AmlServiceSuite) SetupTest() {
	s.now = time.Now().Truncate(time.Second)
	clock := func() time.Time { return s.now }

	s.registry = domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)
	// Authority tokens carry the regulator capability; the power set on the
	// authority record decides what they may actually do.
	s.authority = domain.NewActor(authorityAddr, domain.CapRegulator)

	auditor := audit.NewPublisher(audit.NewInMemoryStore())
	logger := slog.Default()

	s.identity = identity.NewService(identity.NewInMemoryStore(), auditor, logger, identity.WithClock(clock))
	s.blacklist = blacklist.NewService(blacklist.NewInMemoryStore(), auditor, logger, blacklist.WithClock(clock))

	seq := 0
	s.service = NewService(
		NewInMemoryAuthorityStore(),
		NewInMemoryAlertStore(),
		s.blacklist,
		s.identity,
		auditor,
		logger,
		WithClock(clock),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("alert-%d", seq)
		}),
	)

	ctx := context.Background()
	_, err := s.service.RegisterAuthority(ctx, s.registry, RegisterAuthorityRequest{
		Address:      authorityAddr,
		Name:         "FIU Desk 7",
		Jurisdiction: "DE",
		Powers: PowerViewTransactions | PowerFreezeAccounts |
			PowerBlockNewTransactions | PowerModifyBlacklist,
	})
	s.Require().NoError(err)

	// The subject holds a verified identity so enforcement has something to
	// revoke.
	_, err = s.identity.Register(ctx, s.registry, identity.RegisterRequest{
		User:        subjectAddr,
		RoutingCode: "10070000",
		IBAN:        "DE89370400440532013000",
		Country:     "DE",
	})
	s.Require().NoError(err)
	_, err = s.identity.UpdateStatus(ctx, s.registry, subjectAddr, identity.StatusVerified, domain.LevelBasic, 365)
	s.Require().NoError(err)
}

func (s *AmlServiceSuite) TestAlertLifecycle() {
	ctx := context.Background()

	alert, err := s.service.CreateAlert(ctx, s.authority, CreateAlertRequest{
		Subject:     subjectAddr,
		Severity:    SeverityHigh,
		Description: "structuring pattern across three accounts",
	})
	s.Require().NoError(err)
	s.Equal(AlertOpen, alert.Status)

	alert, err = s.service.UpdateAlert(ctx, s.authority, alert.ID, AlertInvestigating, "")
	s.Require().NoError(err)
	s.Equal(AlertInvestigating, alert.Status)

	s.Run("backwards transition rejected", func() {
		_, err := s.service.UpdateAlert(ctx, s.authority, alert.ID, AlertOpen, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	s.Run("closing requires a resolution", func() {
		_, err := s.service.UpdateAlert(ctx, s.authority, alert.ID, AlertClosed, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	alert, err = s.service.UpdateAlert(ctx, s.authority, alert.ID, AlertClosed, "false positive")
	s.Require().NoError(err)
	s.Equal(AlertClosed, alert.Status)
	s.Equal("false positive", alert.Resolution)
	s.Equal(s.now, alert.ClosedAt)

	s.Run("closed is terminal", func() {
		_, err := s.service.UpdateAlert(ctx, s.authority, alert.ID, AlertEscalated, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *AmlServiceSuite) TestTakeAction() {
	ctx := context.Background()

	alert, err := s.service.CreateAlert(ctx, s.authority, CreateAlertRequest{
		Subject:     subjectAddr,
		Severity:    SeverityCritical,
		Description: "sanctions list match",
	})
	s.Require().NoError(err)

	entry, err := s.service.TakeAction(ctx, s.authority, TakeActionRequest{
		Subject:     subjectAddr,
		Action:      blacklist.ActionFreeze,
		Reason:      blacklist.ReasonAmlAlert,
		EvidenceRef: "case-2024-311",
		AlertID:     alert.ID,
	})
	s.Require().NoError(err)
	s.Equal(alert.ID, entry.AlertID)

	// The subject is now blacklisted and its KYC status revoked.
	listed, err := s.blacklist.IsBlacklisted(ctx, subjectAddr)
	s.Require().NoError(err)
	s.True(listed)

	record, err := s.identity.Get(ctx, subjectAddr)
	s.Require().NoError(err)
	s.Equal(identity.StatusRejected, record.Status)
	s.Equal(domain.LevelNone, record.Level)
}

func (s *AmlServiceSuite) TestTakeActionAuthorization() {
	ctx := context.Background()

	s.Run("power set bounds the action", func() {
		// This authority can freeze but not seize.
		_, err := s.service.TakeAction(ctx, s.authority, TakeActionRequest{
			Subject: subjectAddr,
			Action:  blacklist.ActionSeize,
			Reason:  blacklist.ReasonCourtOrder,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown authority rejected", func() {
		stranger := domain.NewActor("strangerAddr1234", domain.CapRegulator)
		_, err := s.service.TakeAction(ctx, stranger, TakeActionRequest{
			Subject: subjectAddr,
			Action:  blacklist.ActionFreeze,
			Reason:  blacklist.ReasonOther,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("deactivated authority rejected", func() {
		s.Require().NoError(s.service.DeactivateAuthority(ctx, s.registry, authorityAddr, "mandate ended"))

		_, err := s.service.TakeAction(ctx, s.authority, TakeActionRequest{
			Subject: subjectAddr,
			Action:  blacklist.ActionFreeze,
			Reason:  blacklist.ReasonOther,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *AmlServiceSuite) TestUpdateAuthorityPowers() {
	ctx := context.Background()

	a, err := s.service.UpdateAuthorityPowers(ctx, s.registry, authorityAddr,
		PowerViewTransactions|PowerSeizeFunds|PowerModifyBlacklist)
	s.Require().NoError(err)
	s.True(a.Powers.Has(PowerSeizeFunds))
	s.False(a.Powers.Has(PowerFreezeAccounts))

	// Seizing is now allowed, freezing no longer is.
	_, err = s.service.TakeAction(ctx, s.authority, TakeActionRequest{
		Subject:     subjectAddr,
		Action:      blacklist.ActionSeize,
		Reason:      blacklist.ReasonCourtOrder,
		EvidenceRef: "court-order-77",
	})
	s.Require().NoError(err)

	_, err = s.service.TakeAction(ctx, s.authority, TakeActionRequest{
		Subject: "otherSuspect1234",
		Action:  blacklist.ActionFreeze,
		Reason:  blacklist.ReasonOther,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
