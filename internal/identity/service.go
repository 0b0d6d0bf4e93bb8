package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
	"stablegate/pkg/platform/sentinel"
)

// defaultValidityDays applies when a verification is granted without an
// explicit validity window.
const defaultValidityDays = 365

// Clock abstracts time for testability.
type Clock func() time.Time

// Service owns all identity record mutation. Other components read through
// it and never write records directly.
type Service struct {
	store   Store
	auditor *audit.Publisher
	metrics *Metrics
	logger  *slog.Logger
	clock   Clock
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

// WithMetrics attaches identity metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		auditor: auditor,
		logger:  logger,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRequest carries the inputs for a new identity registration. IBAN
// is raw at this boundary and hashed before anything is stored.
type RegisterRequest struct {
	User        domain.Address
	RoutingCode string
	IBAN        string
	Country     domain.CountryCode
	Provider    string
	Business    bool
}

// Register creates a new Pending record at level zero.
//
// Errors: CodeUnauthorized for callers without the registry capability;
// CodeUnsupportedJurisdiction for countries outside the accepted set;
// CodeAlreadyExists when the user is already registered.
func (s *Service) Register(ctx context.Context, actor domain.Actor, req RegisterRequest) (*Record, error) {
	if !actor.Has(domain.CapRegistryAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}
	if !req.Country.IsSupportedJurisdiction() {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedJurisdiction, "country %s is not accepted", req.Country)
	}

	ibanHash, err := HashIBAN(req.IBAN)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	record := &Record{
		User:          req.User,
		Status:        StatusPending,
		Level:         domain.LevelNone,
		RequiredLevel: domain.LevelNone,
		Country:       req.Country,
		RoutingCode:   req.RoutingCode,
		IBANHash:      ibanHash,
		Provider:      req.Provider,
		Business:      req.Business,
		RegisteredAt:  now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeAlreadyExists, "identity record already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create identity record")
	}

	if s.metrics != nil {
		s.metrics.Registrations.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:    actor.Address,
		Subject:  req.User,
		Action:   string(audit.EventIdentityRegistered),
		Decision: StatusPending.String(),
	})
	return record, nil
}

// UpdateStatus transitions a record's status and level. Only the registry
// authority calls this directly; accepted attestations arrive through
// ApplyAttestation.
//
// On a transition to Verified the expiry is set to now + validityDays (365
// when validityDays <= 0). On a transition away from Verified the level
// resets to zero.
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, user domain.Address, newStatus KycStatus, newLevel domain.VerificationLevel, validityDays int) (*Record, error) {
	if !actor.Has(domain.CapRegistryAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}
	return s.applyStatus(ctx, actor.Address, user, newStatus, newLevel, "", validityDays)
}

// ApplyAttestation records a provider-verified outcome. The provider service
// has already verified the signature; this is the only other path to
// Verified.
func (s *Service) ApplyAttestation(ctx context.Context, provider string, providerAddr domain.Address, user domain.Address, level domain.VerificationLevel, validityDays int) (*Record, error) {
	return s.applyStatus(ctx, providerAddr, user, StatusVerified, level, provider, validityDays)
}

// Revoke forces a record to Rejected at level zero. Called by the AML
// workflow when enforcement couples blacklisting with KYC revocation.
func (s *Service) Revoke(ctx context.Context, actor domain.Address, user domain.Address, reason string) error {
	record, err := s.applyStatus(ctx, actor, user, StatusRejected, domain.LevelNone, "", 0)
	if err != nil {
		return err
	}
	s.emit(ctx, audit.Event{
		Actor:    actor,
		Subject:  user,
		Action:   string(audit.EventIdentityRevoked),
		Decision: record.Status.String(),
		Reason:   reason,
	})
	return nil
}

func (s *Service) applyStatus(ctx context.Context, actor domain.Address, user domain.Address, newStatus KycStatus, newLevel domain.VerificationLevel, provider string, validityDays int) (*Record, error) {
	now := s.clock()
	record, err := s.store.Execute(ctx, user,
		func(*Record) error { return nil },
		func(r *Record) {
			r.Status = newStatus
			r.UpdatedAt = now
			switch newStatus {
			case StatusVerified:
				r.Level = newLevel
				r.VerifiedAt = now
				days := validityDays
				if days <= 0 {
					days = defaultValidityDays
				}
				r.ExpiresAt = now.Add(time.Duration(days) * 24 * time.Hour)
				if provider != "" {
					r.Provider = provider
				}
			case StatusRejected, StatusRevoked, StatusExpired:
				r.Level = domain.LevelNone
				r.ExpiresAt = time.Time{}
			case StatusUnverified, StatusPending, StatusSuspended:
				r.Level = newLevel
			}
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity record not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.StatusUpdates.WithLabelValues(newStatus.String()).Inc()
		if count, err := s.store.VerifiedCount(ctx); err == nil {
			s.metrics.VerifiedUsers.Set(float64(count))
		}
	}
	s.emit(ctx, audit.Event{
		Actor:    actor,
		Subject:  user,
		Action:   string(audit.EventIdentityStatusUpdated),
		Decision: newStatus.String(),
		Reason:   provider,
	})
	return record, nil
}

// SetRequiredLevel raises or lowers the risk-adjusted minimum for a user.
func (s *Service) SetRequiredLevel(ctx context.Context, actor domain.Actor, user domain.Address, required domain.VerificationLevel) error {
	if !actor.Has(domain.CapRegistryAuthority) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}
	now := s.clock()
	_, err := s.store.Execute(ctx, user,
		func(*Record) error { return nil },
		func(r *Record) {
			r.RequiredLevel = required
			r.UpdatedAt = now
		},
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "identity record not found")
	}
	return err
}

// Get returns the record for a user.
func (s *Service) Get(ctx context.Context, user domain.Address) (*Record, error) {
	record, err := s.store.Get(ctx, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}
	return record, nil
}

// IsVerified reports whether the user currently satisfies minLevel. A
// missing record reads as unverified, not as an error: the policy engine
// treats unknown users as level-zero.
func (s *Service) IsVerified(ctx context.Context, user domain.Address, minLevel domain.VerificationLevel) (bool, error) {
	record, err := s.store.Get(ctx, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity record")
	}
	// The risk-adjusted minimum overrides the caller's requirement when it
	// is stricter.
	required := minLevel
	if record.RequiredLevel > required {
		required = record.RequiredLevel
	}
	return record.IsVerified(required, s.clock()), nil
}

// VerifiedCount exposes the global verified-user counter.
func (s *Service) VerifiedCount(ctx context.Context) (int64, error) {
	return s.store.VerifiedCount(ctx)
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
