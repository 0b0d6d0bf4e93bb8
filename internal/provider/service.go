package provider

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"time"

	"stablegate/internal/identity"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
	"stablegate/pkg/platform/sentinel"
)

// maxAttestationAge bounds how stale an attestation may be when submitted.
// Providers sign close to submission; anything older is treated as a replay.
const maxAttestationAge = 10 * time.Minute

// maxAttestationSkew tolerates small clock drift on the provider side.
const maxAttestationSkew = time.Minute

// IdentityRegistry is the slice of the identity service attestations write
// through.
type IdentityRegistry interface {
	ApplyAttestation(ctx context.Context, provider string, providerAddr domain.Address, user domain.Address, level domain.VerificationLevel, validityDays int) (*identity.Record, error)
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service owns the provider registry and the attestation intake path.
type Service struct {
	store    Store
	registry IdentityRegistry
	auditor  *audit.Publisher
	metrics  *Metrics
	logger   *slog.Logger
	clock    Clock
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics attaches provider metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, registry IdentityRegistry, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: registry,
		auditor:  auditor,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterProviderRequest carries the inputs for a new provider
// registration.
type RegisterProviderRequest struct {
	Address      domain.Address
	Name         string
	PublicKey    ed25519.PublicKey
	Jurisdiction domain.CountryCode
	MaxLevel     domain.VerificationLevel
	TrustScore   uint8
}

// RegisterProvider admits a new verification provider. Registry-authority
// only.
func (s *Service) RegisterProvider(ctx context.Context, actor domain.Actor, req RegisterProviderRequest) (*Provider, error) {
	if !actor.Has(domain.CapRegistryAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}
	if req.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "provider name is required")
	}
	if len(req.PublicKey) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "provider public key is required")
	}
	if !req.Jurisdiction.IsSupportedJurisdiction() {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedJurisdiction, "jurisdiction %s is not accepted", req.Jurisdiction)
	}

	now := s.clock()
	p := &Provider{
		Address:      req.Address,
		Name:         req.Name,
		PublicKey:    req.PublicKey,
		Jurisdiction: req.Jurisdiction,
		MaxLevel:     req.MaxLevel,
		TrustScore:   req.TrustScore,
		Active:       true,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeAlreadyExists, "provider already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create provider record")
	}

	if s.metrics != nil {
		s.metrics.ActiveProviders.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:   actor.Address,
		Subject: req.Address,
		Action:  string(audit.EventProviderRegistered),
		Reason:  req.Name,
	})
	return p, nil
}

// UpdateProviderRequest carries the mutable provider fields. Nil pointers
// leave the current value in place.
type UpdateProviderRequest struct {
	Name       *string
	PublicKey  ed25519.PublicKey
	MaxLevel   *domain.VerificationLevel
	TrustScore *uint8
}

// UpdateProvider changes a provider's mutable fields. Registry-authority
// only.
func (s *Service) UpdateProvider(ctx context.Context, actor domain.Actor, addr domain.Address, req UpdateProviderRequest) (*Provider, error) {
	if !actor.Has(domain.CapRegistryAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}
	if req.PublicKey != nil && len(req.PublicKey) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid provider public key")
	}

	now := s.clock()
	p, err := s.store.Execute(ctx, addr,
		func(*Provider) error { return nil },
		func(p *Provider) {
			if req.Name != nil {
				p.Name = *req.Name
			}
			if req.PublicKey != nil {
				p.PublicKey = req.PublicKey
			}
			if req.MaxLevel != nil {
				p.MaxLevel = *req.MaxLevel
			}
			if req.TrustScore != nil {
				p.TrustScore = *req.TrustScore
			}
			p.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "provider not found")
		}
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Actor:   actor.Address,
		Subject: addr,
		Action:  string(audit.EventProviderUpdated),
	})
	return p, nil
}

// DeactivateProvider takes a provider out of service. Its past attestations
// stay valid; new ones are rejected.
func (s *Service) DeactivateProvider(ctx context.Context, actor domain.Actor, addr domain.Address, reason string) error {
	if !actor.Has(domain.CapRegistryAuthority) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}

	now := s.clock()
	wasActive := false
	_, err := s.store.Execute(ctx, addr,
		func(p *Provider) error {
			wasActive = p.Active
			return nil
		},
		func(p *Provider) {
			p.Active = false
			p.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "provider not found")
		}
		return err
	}

	if s.metrics != nil && wasActive {
		s.metrics.ActiveProviders.Dec()
	}
	s.emit(ctx, audit.Event{
		Actor:   actor.Address,
		Subject: addr,
		Action:  string(audit.EventProviderDeactivated),
		Reason:  reason,
	})
	return nil
}

// SubmitAttestation checks an attestation and, when valid, applies it to the
// user's identity record. The signature check happens before any state is
// touched.
//
// Errors: CodeNotFound for unknown providers; CodeProviderInactive for
// deactivated ones; CodeInvalidSignature when the signature does not verify;
// CodeExpired for stale attestations; CodeForbidden when the attested level
// exceeds the provider's cap.
func (s *Service) SubmitAttestation(ctx context.Context, att Attestation) (*identity.Record, error) {
	p, err := s.store.Get(ctx, att.Provider)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.reject(ctx, att, dErrors.CodeNotFound)
			return nil, dErrors.New(dErrors.CodeNotFound, "provider not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load provider record")
	}

	if !p.Active {
		s.reject(ctx, att, dErrors.CodeProviderInactive)
		return nil, dErrors.New(dErrors.CodeProviderInactive, "provider is deactivated")
	}
	if !VerifySignature(p.PublicKey, att) {
		s.reject(ctx, att, dErrors.CodeInvalidSignature)
		return nil, dErrors.New(dErrors.CodeInvalidSignature, "attestation signature does not verify")
	}
	now := s.clock()
	if now.Sub(att.IssuedAt) > maxAttestationAge || att.IssuedAt.Sub(now) > maxAttestationSkew {
		s.reject(ctx, att, dErrors.CodeExpired)
		return nil, dErrors.New(dErrors.CodeExpired, "attestation issued outside the accepted window")
	}
	if !p.MaxLevel.AtLeast(att.Level) {
		s.reject(ctx, att, dErrors.CodeForbidden)
		return nil, dErrors.Newf(dErrors.CodeForbidden, "provider may not attest level %d", att.Level)
	}

	record, err := s.registry.ApplyAttestation(ctx, p.Name, p.Address, att.User, att.Level, att.ValidityDays)
	if err != nil {
		return nil, err
	}

	// Best-effort counter bump; the attestation is already applied.
	if _, err := s.store.Execute(ctx, att.Provider,
		func(*Provider) error { return nil },
		func(p *Provider) {
			p.AcceptedCount++
			p.UpdatedAt = now
		},
	); err != nil {
		s.logger.WarnContext(ctx, "failed to bump provider accepted count",
			"provider", att.Provider.String(),
			"error", err,
		)
	}

	if s.metrics != nil {
		s.metrics.AttestationsAccepted.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:    att.Provider,
		Subject:  att.User,
		Action:   string(audit.EventAttestationAccepted),
		Decision: att.Level.String(),
	})
	return record, nil
}

// Get returns the provider at the address.
func (s *Service) Get(ctx context.Context, addr domain.Address) (*Provider, error) {
	p, err := s.store.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "provider not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load provider record")
	}
	return p, nil
}

// List returns all registered providers.
func (s *Service) List(ctx context.Context) ([]*Provider, error) {
	return s.store.List(ctx)
}

func (s *Service) reject(ctx context.Context, att Attestation, code dErrors.Code) {
	if s.metrics != nil {
		s.metrics.AttestationsRejected.WithLabelValues(string(code)).Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:    att.Provider,
		Subject:  att.User,
		Action:   string(audit.EventAttestationRejected),
		Decision: string(code),
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
