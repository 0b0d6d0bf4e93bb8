package aml

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stablegate/internal/blacklist"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
	"stablegate/pkg/platform/sentinel"
)

// BlacklistWriter is the slice of the blacklist service enforcement actions
// write through.
type BlacklistWriter interface {
	Add(ctx context.Context, actor domain.Actor, req blacklist.AddRequest) (*blacklist.Entry, error)
}

// IdentityRevoker couples enforcement to the identity registry: freezing or
// blocking an account also revokes its KYC status.
type IdentityRevoker interface {
	Revoke(ctx context.Context, actor domain.Address, user domain.Address, reason string) error
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service owns the AML authority registry, the alert lifecycle, and
// enforcement actions.
type Service struct {
	authorities AuthorityStore
	alerts      AlertStore
	blacklist   BlacklistWriter
	identity    IdentityRevoker
	auditor     *audit.Publisher
	metrics     *Metrics
	logger      *slog.Logger
	clock       Clock
	newID       func() string
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

// WithIDGenerator overrides alert ID generation for testability.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithMetrics attaches AML metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	authorities AuthorityStore,
	alerts AlertStore,
	bl BlacklistWriter,
	identity IdentityRevoker,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		authorities: authorities,
		alerts:      alerts,
		blacklist:   bl,
		identity:    identity,
		auditor:     auditor,
		logger:      logger,
		clock:       time.Now,
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAuthorityRequest carries the inputs for a new AML authority.
type RegisterAuthorityRequest struct {
	Address      domain.Address
	Name         string
	Jurisdiction domain.CountryCode
	Powers       Power
}

// RegisterAuthority admits a new AML authority. Registry-authority only.
func (s *Service) RegisterAuthority(ctx context.Context, actor domain.Actor, req RegisterAuthorityRequest) (*Authority, error) {
	if !actor.Has(domain.CapRegistryAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}
	if req.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "authority name is required")
	}
	if !req.Jurisdiction.IsSupportedJurisdiction() {
		return nil, dErrors.Newf(dErrors.CodeUnsupportedJurisdiction, "jurisdiction %s is not accepted", req.Jurisdiction)
	}

	now := s.clock()
	a := &Authority{
		Address:      req.Address,
		Name:         req.Name,
		Jurisdiction: req.Jurisdiction,
		Powers:       req.Powers,
		Active:       true,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if err := s.authorities.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeAlreadyExists, "authority already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create authority record")
	}

	s.emit(ctx, audit.Event{
		Actor:   actor.Address,
		Subject: req.Address,
		Action:  string(audit.EventAuthorityRegistered),
		Reason:  req.Powers.String(),
	})
	return a, nil
}

// UpdateAuthorityPowers replaces an authority's power set. Registry-authority
// only; the change applies to the next action, in-flight ones completed
// under the old set stand.
func (s *Service) UpdateAuthorityPowers(ctx context.Context, actor domain.Actor, addr domain.Address, powers Power) (*Authority, error) {
	if !actor.Has(domain.CapRegistryAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}

	now := s.clock()
	a, err := s.authorities.Execute(ctx, addr,
		func(*Authority) error { return nil },
		func(a *Authority) {
			a.Powers = powers
			a.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "authority not found")
		}
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Actor:   actor.Address,
		Subject: addr,
		Action:  string(audit.EventAuthorityUpdated),
		Reason:  powers.String(),
	})
	return a, nil
}

// DeactivateAuthority takes an authority out of service.
func (s *Service) DeactivateAuthority(ctx context.Context, actor domain.Actor, addr domain.Address, reason string) error {
	if !actor.Has(domain.CapRegistryAuthority) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}

	now := s.clock()
	_, err := s.authorities.Execute(ctx, addr,
		func(*Authority) error { return nil },
		func(a *Authority) {
			a.Active = false
			a.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "authority not found")
		}
		return err
	}

	s.emit(ctx, audit.Event{
		Actor:   actor.Address,
		Subject: addr,
		Action:  string(audit.EventAuthorityDeactivated),
		Reason:  reason,
	})
	return nil
}

// requireAuthority loads the caller's authority record and checks it is
// active and holds every bit in required.
func (s *Service) requireAuthority(ctx context.Context, actor domain.Address, required Power) (*Authority, error) {
	a, err := s.authorities.Get(ctx, actor)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not a registered AML authority")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authority record")
	}
	if !a.Active {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authority is deactivated")
	}
	if !a.Powers.Has(required) {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "authority lacks power %s", required)
	}
	return a, nil
}

// CreateAlertRequest carries the inputs for a new alert.
type CreateAlertRequest struct {
	Subject     domain.Address
	Severity    Severity
	Description string
}

// CreateAlert opens a suspicious-activity alert. The caller must be an
// active authority with the view-transactions power.
func (s *Service) CreateAlert(ctx context.Context, actor domain.Actor, req CreateAlertRequest) (*Alert, error) {
	if _, err := s.requireAuthority(ctx, actor.Address, PowerViewTransactions); err != nil {
		return nil, err
	}

	now := s.clock()
	alert := &Alert{
		ID:          s.newID(),
		Subject:     req.Subject,
		RaisedBy:    actor.Address,
		Status:      AlertOpen,
		Severity:    req.Severity,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create alert")
	}

	if s.metrics != nil {
		s.metrics.AlertsCreated.WithLabelValues(string(req.Severity)).Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   req.Subject,
		Action:    string(audit.EventAlertCreated),
		Reference: alert.ID,
		Decision:  string(req.Severity),
	})
	return alert, nil
}

// UpdateAlert moves an alert through its lifecycle. Transitions are
// forward-only; Closed is terminal and requires a resolution.
func (s *Service) UpdateAlert(ctx context.Context, actor domain.Actor, id string, newStatus AlertStatus, resolution string) (*Alert, error) {
	if _, err := s.requireAuthority(ctx, actor.Address, PowerViewTransactions); err != nil {
		return nil, err
	}
	if newStatus == AlertClosed && resolution == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "closing an alert requires a resolution")
	}

	now := s.clock()
	alert, err := s.alerts.Execute(ctx, id,
		func(a *Alert) error {
			if !a.Status.CanTransition(newStatus) {
				return dErrors.Newf(dErrors.CodeInvalidTransition, "alert cannot move from %s to %s", a.Status, newStatus)
			}
			return nil
		},
		func(a *Alert) {
			a.Status = newStatus
			a.UpdatedAt = now
			if newStatus == AlertClosed {
				a.Resolution = resolution
				a.ClosedAt = now
			}
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "alert not found")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.AlertUpdates.WithLabelValues(string(newStatus)).Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   alert.Subject,
		Action:    string(audit.EventAlertUpdated),
		Reference: alert.ID,
		Decision:  string(newStatus),
	})
	return alert, nil
}

// actionPowers maps each enforcement action to the power bits it needs on
// top of modify-blacklist.
var actionPowers = map[blacklist.Action]Power{
	blacklist.ActionFreeze:         PowerFreezeAccounts,
	blacklist.ActionSeize:          PowerSeizeFunds,
	blacklist.ActionRestrict:       PowerBlockNewTransactions,
	blacklist.ActionBlockTransfers: PowerBlockNewTransactions,
}

// TakeActionRequest carries the inputs for an enforcement action.
type TakeActionRequest struct {
	Subject     domain.Address
	Action      blacklist.Action
	Reason      blacklist.Reason
	EvidenceRef string
	AlertID     string
	// ExpiresAt bounds temporary listings; zero means indefinite.
	ExpiresAt time.Time
}

// TakeAction enforces against an address: it writes a blacklist entry and,
// for freezes and transfer blocks, also revokes the subject's KYC status so
// re-verification is required once the case clears.
//
// Errors: CodeUnauthorized for unknown or deactivated authorities;
// CodeForbidden when the authority's power set does not cover the action.
func (s *Service) TakeAction(ctx context.Context, actor domain.Actor, req TakeActionRequest) (*blacklist.Entry, error) {
	required := PowerModifyBlacklist | actionPowers[req.Action]
	authority, err := s.requireAuthority(ctx, actor.Address, required)
	if err != nil {
		return nil, err
	}
	if req.AlertID != "" {
		if _, err := s.alerts.Get(ctx, req.AlertID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "linked alert not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked alert")
		}
	}

	entry, err := s.blacklist.Add(ctx, actor, blacklist.AddRequest{
		Address:     req.Subject,
		Reason:      req.Reason,
		Action:      req.Action,
		EvidenceRef: req.EvidenceRef,
		AlertID:     req.AlertID,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}

	// Freezes and transfer blocks also revoke KYC; restoring the account
	// requires a fresh verification pass.
	if req.Action == blacklist.ActionFreeze || req.Action == blacklist.ActionBlockTransfers {
		if err := s.identity.Revoke(ctx, actor.Address, req.Subject, string(req.Reason)); err != nil {
			// The subject may have no identity record; enforcement still
			// stands.
			if !dErrors.HasCode(err, dErrors.CodeNotFound) {
				s.logger.ErrorContext(ctx, "failed to revoke identity after enforcement",
					"subject", req.Subject.String(),
					"error", err,
				)
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ActionsTaken.WithLabelValues(string(req.Action)).Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   req.Subject,
		Action:    string(audit.EventAmlActionTaken),
		Reference: req.EvidenceRef,
		Decision:  string(req.Action),
		Reason:    authority.Name,
	})
	return entry, nil
}

// GetAuthority returns the authority at the address.
func (s *Service) GetAuthority(ctx context.Context, addr domain.Address) (*Authority, error) {
	a, err := s.authorities.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "authority not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load authority record")
	}
	return a, nil
}

// GetAlert returns the alert by ID.
func (s *Service) GetAlert(ctx context.Context, id string) (*Alert, error) {
	alert, err := s.alerts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "alert not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load alert")
	}
	return alert, nil
}

// AlertsBySubject returns all alerts targeting an address, newest first.
func (s *Service) AlertsBySubject(ctx context.Context, subject domain.Address) ([]*Alert, error) {
	return s.alerts.ListBySubject(ctx, subject)
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
