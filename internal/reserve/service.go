package reserve

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"stablegate/internal/identity"
	"stablegate/internal/token"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
	"stablegate/pkg/platform/sentinel"
)

// DefaultLargeThreshold routes redemptions at or above this amount into the
// large lane, which needs issuer co-approval.
var DefaultLargeThreshold = domain.FromEUR(15_000)

// Burner destroys tokens when a redemption is requested. The token service
// implements it.
type Burner interface {
	Burn(ctx context.Context, actor domain.Actor, from domain.Address, amount domain.Amount, reference string) error
}

// SupplySource reports the issued supply in base units.
type SupplySource interface {
	Supply(ctx context.Context) (domain.Amount, error)
}

// PolicySource exposes the current mint policy for the redemption minimums
// and verification levels.
type PolicySource interface {
	GetPolicy(ctx context.Context) (*token.Policy, error)
}

// IdentityReader is the slice of the identity registry redemption checks
// need.
type IdentityReader interface {
	Get(ctx context.Context, user domain.Address) (*identity.Record, error)
	IsVerified(ctx context.Context, user domain.Address, minLevel domain.VerificationLevel) (bool, error)
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service owns the reserve counters and the redemption queue. It is the
// reserve side of the backing invariant: the token service calls
// CheckIssuance before every mint, and redemption requests burn through the
// token service before they enqueue.
type Service struct {
	states         StateStore
	queue          QueueStore
	burner         Burner
	supply         SupplySource
	policies       PolicySource
	identity       IdentityReader
	auditor        *audit.Publisher
	metrics        *Metrics
	logger         *slog.Logger
	clock          Clock
	newID          func() string
	largeThreshold domain.Amount
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

// WithIDGenerator overrides redemption id generation for testability.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithMetrics attaches reserve metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLargeThreshold overrides the large-lane cutoff.
func WithLargeThreshold(threshold domain.Amount) Option {
	return func(s *Service) {
		if !threshold.IsZero() {
			s.largeThreshold = threshold
		}
	}
}

func NewService(
	states StateStore,
	queue QueueStore,
	burner Burner,
	supply SupplySource,
	policies PolicySource,
	identityReader IdentityReader,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		states:         states,
		queue:          queue,
		burner:         burner,
		supply:         supply,
		policies:       policies,
		identity:       identityReader,
		auditor:        auditor,
		logger:         logger,
		clock:          time.Now,
		newID:          uuid.NewString,
		largeThreshold: DefaultLargeThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogFiatDeposit records an attested fiat deposit and raises proven
// reserves. Reserve authority only.
func (s *Service) LogFiatDeposit(ctx context.Context, actor domain.Actor, amount domain.Amount, reference string) (*State, error) {
	if !actor.Has(domain.CapReserveAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the reserve authority")
	}
	if amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "deposit amount must be positive")
	}
	if reference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "deposit requires a bank reference")
	}

	now := s.clock()
	state, err := s.states.Execute(ctx,
		func(st *State) error {
			_, err := st.ProvenReserves.CheckedAdd(amount)
			return err
		},
		func(st *State) {
			st.ProvenReserves, _ = st.ProvenReserves.CheckedAdd(amount)
			st.LastReference = reference
			st.UpdatedAt = now
		},
	)
	if err != nil {
		return nil, err
	}

	s.observeState(state)
	if s.metrics != nil {
		s.metrics.DepositsLogged.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Action:    string(audit.EventFiatDepositLogged),
		Amount:    amount,
		Reference: reference,
	})
	return state, nil
}

// LogFiatWithdrawal records a fiat withdrawal and lowers proven reserves.
// Reserve authority only. A withdrawal that would leave issued supply
// unbacked is refused: reserves exit only after the matching burn.
func (s *Service) LogFiatWithdrawal(ctx context.Context, actor domain.Actor, amount domain.Amount, reference string) (*State, error) {
	if !actor.Has(domain.CapReserveAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the reserve authority")
	}
	if amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "withdrawal amount must be positive")
	}
	if reference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "withdrawal requires a bank reference")
	}

	issued, err := s.supply.Supply(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read issued supply")
	}

	now := s.clock()
	state, err := s.states.Execute(ctx,
		func(st *State) error {
			remaining, err := st.ProvenReserves.CheckedSub(amount)
			if err != nil {
				return dErrors.New(dErrors.CodeInsufficientReserve, "withdrawal exceeds proven reserves")
			}
			if !backed(issued, remaining, st.RatioRequirement) {
				return dErrors.New(dErrors.CodeInsufficientReserve, "withdrawal would leave issued supply unbacked")
			}
			return nil
		},
		func(st *State) {
			st.ProvenReserves, _ = st.ProvenReserves.CheckedSub(amount)
			st.LastReference = reference
			st.UpdatedAt = now
		},
	)
	if err != nil {
		return nil, err
	}

	s.observeState(state)
	if s.metrics != nil {
		s.metrics.WithdrawalsLogged.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Action:    string(audit.EventFiatWithdrawalLogged),
		Amount:    amount,
		Reference: reference,
	})
	return state, nil
}

// ProofUpdate carries a fresh auditor attestation.
type ProofUpdate struct {
	// Root is the merkle root of the attested account set.
	Root string
	// CID points at the published proof document.
	CID     string
	Auditor string
}

// UpdateReserveProof records the latest auditor attestation. Reserve
// authority only.
func (s *Service) UpdateReserveProof(ctx context.Context, actor domain.Actor, update ProofUpdate) (*State, error) {
	if !actor.Has(domain.CapReserveAuthority) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the reserve authority")
	}
	if update.Root == "" || update.Auditor == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "proof requires a root and an auditor")
	}

	now := s.clock()
	state, err := s.states.Execute(ctx,
		func(*State) error { return nil },
		func(st *State) {
			st.ProofRoot = update.Root
			st.ProofCID = update.CID
			st.ProofAuditor = update.Auditor
			st.ProofUpdatedAt = now
			st.UpdatedAt = now
		},
	)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Action:    string(audit.EventReserveProofUpdated),
		Reference: update.Root,
		Reason:    update.Auditor,
	})
	return state, nil
}

// CheckIssuance refuses a mint that would push issued supply beyond proven
// reserves. The token service calls it before every mint.
func (s *Service) CheckIssuance(ctx context.Context, amount domain.Amount) error {
	issued, err := s.supply.Supply(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read issued supply")
	}
	total, err := issued.CheckedAdd(amount)
	if err != nil {
		return dErrors.New(dErrors.CodeInsufficientReserve, "issuance overflows the supply counter")
	}

	state, err := s.states.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.refuseIssuance("no reserves proven")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read reserve state")
	}
	if !backed(total, state.ProvenReserves, state.RatioRequirement) {
		return s.refuseIssuance("issuance would exceed proven reserves")
	}
	return nil
}

func (s *Service) refuseIssuance(msg string) error {
	if s.metrics != nil {
		s.metrics.IssuanceRefusals.Inc()
	}
	return dErrors.New(dErrors.CodeInsufficientReserve, msg)
}

// backed reports whether issued supply is covered by proven reserves under
// the ratio requirement (basis points). The 128-bit intermediate keeps the
// comparison exact for any uint64 amounts.
func backed(issued, proven domain.Amount, ratio uint32) bool {
	if ratio == 0 {
		ratio = DefaultRatioRequirement
	}
	hi, lo := bits.Mul64(uint64(issued), uint64(ratio))
	if hi >= uint64(DefaultRatioRequirement) {
		// Required backing exceeds uint64 range; nothing covers it.
		return false
	}
	required, rem := bits.Div64(hi, lo, uint64(DefaultRatioRequirement))
	if rem > 0 {
		if required == math.MaxUint64 {
			return false
		}
		required++
	}
	return required <= uint64(proven)
}

// RedemptionRequest carries the inputs for a redemption.
type RedemptionRequest struct {
	Amount      domain.Amount
	BankDetails string
	// Institutional routes the entry into the priority lane.
	Institutional bool
}

// RequestRedemption burns the tokens immediately and enqueues the fiat
// payout. The caller redeems their own balance; business accounts need the
// business redemption level.
func (s *Service) RequestRedemption(ctx context.Context, actor domain.Actor, req RedemptionRequest) (*Redemption, error) {
	policy, err := s.policies.GetPolicy(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount < policy.MinRedemption {
		return nil, dErrors.Newf(dErrors.CodeBelowMinimumRedemption, "redemption below the minimum of %d base units", policy.MinRedemption)
	}
	if req.BankDetails == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "redemption requires payout bank details")
	}

	record, err := s.identity.Get(ctx, actor.Address)
	if err != nil {
		return nil, err
	}
	minLevel := policy.MinLevelRedemption
	if record.Business {
		minLevel = policy.MinLevelBusinessRedemption
	}
	verified, err := s.identity.IsVerified(ctx, actor.Address, minLevel)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "redemption requires verification level %d", minLevel)
	}

	id := s.newID()

	// The burn commits first. A failed fiat leg later is an off-chain
	// problem; the tokens are gone either way.
	if err := s.burner.Burn(ctx, actor, actor.Address, req.Amount, "redemption "+id); err != nil {
		return nil, err
	}

	lane := LaneStandard
	switch {
	case req.Institutional:
		lane = LaneInstitutional
	case req.Amount >= s.largeThreshold:
		lane = LaneLarge
	}
	sequence, err := s.queue.NextSequence(ctx, lane)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate queue position")
	}

	now := s.clock()
	entry := &Redemption{
		ID:          id,
		Requester:   actor.Address,
		Amount:      req.Amount,
		BankDetails: req.BankDetails,
		Lane:        lane,
		Status:      StatusPending,
		Sequence:    sequence,
		RequestedAt: now,
	}
	if err := s.queue.Create(ctx, entry); err != nil {
		// The burn already happened; surface loudly rather than retry.
		s.logger.ErrorContext(ctx, "burned but failed to enqueue redemption",
			"redemption_id", id,
			"requester", actor.Address,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue redemption")
	}

	state, err := s.states.Execute(ctx,
		func(st *State) error {
			_, err := st.PendingRedemptions.CheckedAdd(req.Amount)
			return err
		},
		func(st *State) {
			st.PendingRedemptions, _ = st.PendingRedemptions.CheckedAdd(req.Amount)
			st.UpdatedAt = now
		},
	)
	if err != nil {
		return nil, err
	}

	s.observeState(state)
	if s.metrics != nil {
		s.metrics.RedemptionsRequested.WithLabelValues(string(lane)).Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   actor.Address,
		Action:    string(audit.EventRedemptionRequested),
		Amount:    req.Amount,
		Reference: id,
		Decision:  string(lane),
	})
	return entry, nil
}

// ApproveRedemption co-signs a large redemption. Issuer only; standard and
// institutional entries never need it.
func (s *Service) ApproveRedemption(ctx context.Context, actor domain.Actor, id string) (*Redemption, error) {
	if !actor.Has(domain.CapIssuer) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the issuer")
	}

	now := s.clock()
	entry, err := s.queue.Execute(ctx, id,
		func(r *Redemption) error {
			if r.Lane != LaneLarge {
				return dErrors.New(dErrors.CodeInvalidTransition, "only large redemptions need approval")
			}
			if r.Status != StatusPending {
				return dErrors.Newf(dErrors.CodeInvalidTransition, "redemption is %s", r.Status)
			}
			return nil
		},
		func(r *Redemption) {
			r.Status = StatusApproved
			r.ApprovedBy = actor.Address
			r.ApprovedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "redemption not found")
		}
		return nil, err
	}

	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   entry.Requester,
		Action:    string(audit.EventRedemptionApproved),
		Amount:    entry.Amount,
		Reference: entry.ID,
	})
	return entry, nil
}

// ProcessRedemption records the fiat payout and removes the entry from the
// pending total. Reserve manager only; large entries additionally need the
// issuer approval recorded by ApproveRedemption.
func (s *Service) ProcessRedemption(ctx context.Context, actor domain.Actor, id, payoutReference string) (*Redemption, error) {
	if !actor.Has(domain.CapReserveManager) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the reserve manager")
	}
	if payoutReference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "processing requires a payout reference")
	}

	now := s.clock()
	entry, err := s.queue.Execute(ctx, id,
		func(r *Redemption) error {
			switch {
			case r.Status == StatusProcessed:
				return dErrors.New(dErrors.CodeInvalidTransition, "redemption is already processed")
			case r.Lane == LaneLarge && r.Status != StatusApproved:
				return dErrors.New(dErrors.CodeUnauthorized, "large redemption lacks issuer approval")
			}
			return nil
		},
		func(r *Redemption) {
			r.Status = StatusProcessed
			r.PayoutReference = payoutReference
			r.ProcessedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "redemption not found")
		}
		return nil, err
	}

	state, err := s.states.Execute(ctx,
		func(st *State) error {
			_, err := st.PendingRedemptions.CheckedSub(entry.Amount)
			return err
		},
		func(st *State) {
			st.PendingRedemptions, _ = st.PendingRedemptions.CheckedSub(entry.Amount)
			st.UpdatedAt = now
		},
	)
	if err != nil {
		return nil, err
	}

	s.observeState(state)
	if s.metrics != nil {
		s.metrics.RedemptionsProcessed.WithLabelValues(string(entry.Lane)).Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   entry.Requester,
		Action:    string(audit.EventRedemptionProcessed),
		Amount:    entry.Amount,
		Reference: payoutReference,
	})
	return entry, nil
}

// GetState returns the reserve state. A missing state reads as the zero
// state so dashboards work before the first deposit.
func (s *Service) GetState(ctx context.Context) (*State, error) {
	state, err := s.states.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &State{RatioRequirement: DefaultRatioRequirement}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read reserve state")
	}
	return state, nil
}

// GetRedemption returns one queue entry.
func (s *Service) GetRedemption(ctx context.Context, id string) (*Redemption, error) {
	entry, err := s.queue.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "redemption not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load redemption")
	}
	return entry, nil
}

// PendingRedemptions lists the lane's unprocessed entries in FIFO order.
func (s *Service) PendingRedemptions(ctx context.Context, lane Lane) ([]*Redemption, error) {
	entries, err := s.queue.ListPending(ctx, lane)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list redemptions")
	}
	return entries, nil
}

func (s *Service) observeState(state *State) {
	if s.metrics == nil || state == nil {
		return
	}
	s.metrics.ProvenReserves.Set(float64(state.ProvenReserves))
	s.metrics.PendingRedemptions.Set(float64(state.PendingRedemptions))
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
