package provider

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/internal/identity"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
)

const (
	providerAddr domain.Address = "providerAddr1234"
	userAddr     domain.Address = "userAaaa11111111"
)

type ProviderServiceSuite struct {
	suite.Suite

	now      time.Time
	priv     ed25519.PrivateKey
	identity *identity.Service
	service  *Service
}

func TestProviderServiceSuite(t *testing.T) {
	suite.Run(t, new(ProviderServiceSuite))
}

func (s *ProviderServiceSuite) SetupTest() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.priv = priv
	s.now = time.Now().Truncate(time.Second)
	clock := func() time.Time { return s.now }

	auditor := audit.NewPublisher(audit.NewInMemoryStore())
	logger := slog.Default()

	s.identity = identity.NewService(identity.NewInMemoryStore(), auditor, logger, identity.WithClock(clock))
	s.service = NewService(NewInMemoryStore(), s.identity, auditor, logger, WithClock(clock))

	registry := domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)
	ctx := context.Background()

	_, err = s.service.RegisterProvider(ctx, registry, RegisterProviderRequest{
		Address:      providerAddr,
		Name:         "id-now",
		PublicKey:    pub,
		Jurisdiction: "DE",
		MaxLevel:     domain.LevelStandard,
		TrustScore:   80,
	})
	s.Require().NoError(err)

	_, err = s.identity.Register(ctx, registry, identity.RegisterRequest{
		User:        userAddr,
		RoutingCode: "10070000",
		IBAN:        "DE89370400440532013000",
		Country:     "DE",
	})
	s.Require().NoError(err)
}

func (s *ProviderServiceSuite) attestation(level domain.VerificationLevel) Attestation {
	att := Attestation{
		Provider:     providerAddr,
		User:         userAddr,
		Level:        level,
		ValidityDays: 180,
		IssuedAt:     s.now,
		Nonce:        "nonce-1",
	}
	att.Signature = ed25519.Sign(s.priv, att.SigningBytes())
	return att
}

func (s *ProviderServiceSuite) TestSubmitAttestation() {
	ctx := context.Background()

	s.Run("valid attestation verifies the user", func() {
		record, err := s.service.SubmitAttestation(ctx, s.attestation(domain.LevelStandard))
		s.Require().NoError(err)
		s.Equal(identity.StatusVerified, record.Status)
		s.Equal(domain.LevelStandard, record.Level)
		s.Equal("id-now", record.Provider)
		s.Equal(s.now.Add(180*24*time.Hour), record.ExpiresAt)

		p, err := s.service.Get(ctx, providerAddr)
		s.Require().NoError(err)
		s.Equal(uint64(1), p.AcceptedCount)
	})

	s.Run("tampered payload is rejected before any state change", func() {
		registry := domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)
		other := domain.Address("userBbbb22222222")
		_, err := s.identity.Register(ctx, registry, identity.RegisterRequest{
			User:        other,
			RoutingCode: "10070000",
			IBAN:        "DE02120300000000202051",
			Country:     "DE",
		})
		s.Require().NoError(err)

		att := s.attestation(domain.LevelBasic)
		att.User = other
		att.Level = domain.LevelStandard
		_, err = s.service.SubmitAttestation(ctx, att)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))

		ok, err := s.identity.IsVerified(ctx, other, domain.LevelBasic)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("level above provider cap is rejected", func() {
		_, err := s.service.SubmitAttestation(ctx, s.attestation(domain.LevelAdvanced))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("stale attestation is rejected", func() {
		att := Attestation{
			Provider: providerAddr,
			User:     userAddr,
			Level:    domain.LevelBasic,
			IssuedAt: s.now.Add(-time.Hour),
			Nonce:    "nonce-2",
		}
		att.Signature = ed25519.Sign(s.priv, att.SigningBytes())
		_, err := s.service.SubmitAttestation(ctx, att)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("unknown provider is rejected", func() {
		att := s.attestation(domain.LevelBasic)
		att.Provider = "otherProvider123"
		att.Signature = ed25519.Sign(s.priv, att.SigningBytes())
		_, err := s.service.SubmitAttestation(ctx, att)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("deactivated provider is rejected", func() {
		registry := domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)
		s.Require().NoError(s.service.DeactivateProvider(ctx, registry, providerAddr, "license lapsed"))

		_, err := s.service.SubmitAttestation(ctx, s.attestation(domain.LevelBasic))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeProviderInactive))
	})
}

func (s *ProviderServiceSuite) TestRegisterProvider() {
	ctx := context.Background()
	registry := domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)

	s.Run("duplicate address rejected", func() {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		s.Require().NoError(err)
		_, err = s.service.RegisterProvider(ctx, registry, RegisterProviderRequest{
			Address:      providerAddr,
			Name:         "dup",
			PublicKey:    pub,
			Jurisdiction: "FR",
			MaxLevel:     domain.LevelBasic,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("non-authority caller rejected", func() {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		s.Require().NoError(err)
		_, err = s.service.RegisterProvider(ctx, domain.NewActor("randomUser123456"), RegisterProviderRequest{
			Address:      "otherProvider123",
			Name:         "nope",
			PublicKey:    pub,
			Jurisdiction: "FR",
			MaxLevel:     domain.LevelBasic,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unsupported jurisdiction rejected", func() {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		s.Require().NoError(err)
		_, err = s.service.RegisterProvider(ctx, registry, RegisterProviderRequest{
			Address:      "otherProvider123",
			Name:         "offshore",
			PublicKey:    pub,
			Jurisdiction: "US",
			MaxLevel:     domain.LevelBasic,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedJurisdiction))
	})
}

func (s *ProviderServiceSuite) TestUpdateProvider() {
	ctx := context.Background()
	registry := domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)

	name := "id-now-gmbh"
	level := domain.LevelAdvanced
	score := uint8(95)
	p, err := s.service.UpdateProvider(ctx, registry, providerAddr, UpdateProviderRequest{
		Name:       &name,
		MaxLevel:   &level,
		TrustScore: &score,
	})
	s.Require().NoError(err)
	s.Equal("id-now-gmbh", p.Name)
	s.Equal(domain.LevelAdvanced, p.MaxLevel)
	s.Equal(uint8(95), p.TrustScore)

	// Unset fields keep their values.
	p, err = s.service.UpdateProvider(ctx, registry, providerAddr, UpdateProviderRequest{})
	s.Require().NoError(err)
	s.Equal("id-now-gmbh", p.Name)
}
