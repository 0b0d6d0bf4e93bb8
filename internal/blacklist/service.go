package blacklist

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

// Clock abstracts time for testability.
type Clock func() time.Time

// Service owns blacklist mutation and the cached read path.
type Service struct {
	store   Store
	cache   *Cache
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

// WithCache attaches the Redis read cache.
func WithCache(cache *Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithMetrics attaches blacklist metrics.
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

// AddRequest carries the inputs for a new blacklisting.
type AddRequest struct {
	Address     domain.Address
	Reason      Reason
	Action      Action
	EvidenceRef string
	AlertID     string
	// ExpiresAt bounds temporary listings; zero means indefinite.
	ExpiresAt time.Time
}

// Add lists an address. Regulator capability required; the AML workflow
// checks its own power set before calling through. Re-listing a cleared
// address reactivates its entry; an address with an active entry rejects
// with CodeAlreadyExists.
func (s *Service) Add(ctx context.Context, actor domain.Actor, req AddRequest) (*Entry, error) {
	if !actor.Has(domain.CapRegulator) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller may not modify the blacklist")
	}

	now := s.clock()
	entry := &Entry{
		Address:     req.Address,
		Reason:      req.Reason,
		Action:      req.Action,
		EvidenceRef: req.EvidenceRef,
		AlertID:     req.AlertID,
		AddedBy:     actor.Address,
		Active:      true,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.Create(ctx, entry)
	if errors.Is(err, sentinel.ErrAlreadyExists) {
		// One entry per address: relisting reuses it.
		entry, err = s.store.Execute(ctx, req.Address,
			func(e *Entry) error {
				if e.IsActive(now) {
					return dErrors.New(dErrors.CodeAlreadyExists, "address is already blacklisted")
				}
				return nil
			},
			func(e *Entry) {
				e.Reason = req.Reason
				e.Action = req.Action
				e.EvidenceRef = req.EvidenceRef
				e.AlertID = req.AlertID
				e.AddedBy = actor.Address
				e.Active = true
				e.ExpiresAt = req.ExpiresAt
				e.UpdatedAt = now
				e.ClearReason = ""
			},
		)
	}
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAlreadyExists) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write blacklist entry")
	}

	s.cache.Invalidate(ctx, req.Address)
	if s.metrics != nil {
		s.metrics.EntriesCreated.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   req.Address,
		Action:    string(audit.EventBlacklistEntryCreated),
		Reference: req.EvidenceRef,
		Reason:    string(req.Reason),
	})
	return entry, nil
}

// Clear deactivates an entry. The entry and its history stay in the store.
func (s *Service) Clear(ctx context.Context, actor domain.Actor, addr domain.Address, reason string) error {
	if !actor.Has(domain.CapRegulator) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller may not modify the blacklist")
	}

	now := s.clock()
	_, err := s.store.Execute(ctx, addr,
		func(e *Entry) error {
			if !e.Active {
				return dErrors.New(dErrors.CodeInvalidTransition, "entry is already cleared")
			}
			return nil
		},
		func(e *Entry) {
			e.Active = false
			e.ClearReason = reason
			e.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "blacklist entry not found")
		}
		return err
	}

	s.cache.Invalidate(ctx, addr)
	if s.metrics != nil {
		s.metrics.EntriesCleared.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:   actor.Address,
		Subject: addr,
		Action:  string(audit.EventBlacklistEntryCleared),
		Reason:  reason,
	})
	return nil
}

// IsBlacklisted reports whether the address has an active, non-expired
// entry. Cache hits skip the store; misses populate it.
func (s *Service) IsBlacklisted(ctx context.Context, addr domain.Address) (bool, error) {
	if active, found := s.cache.Lookup(ctx, addr); found {
		if s.metrics != nil {
			s.metrics.Lookups.WithLabelValues("cache").Inc()
		}
		return active, nil
	}

	active := false
	entry, err := s.store.Get(ctx, addr)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// No entry reads as not listed.
	case err != nil:
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load blacklist entry")
	default:
		active = entry.IsActive(s.clock())
	}

	s.cache.Save(ctx, addr, active)
	if s.metrics != nil {
		s.metrics.Lookups.WithLabelValues("store").Inc()
	}
	return active, nil
}

// Get returns the entry for an address, active or cleared.
func (s *Service) Get(ctx context.Context, addr domain.Address) (*Entry, error) {
	entry, err := s.store.Get(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "blacklist entry not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load blacklist entry")
	}
	return entry, nil
}

// List returns all entries.
func (s *Service) List(ctx context.Context) ([]*Entry, error) {
	return s.store.List(ctx)
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
