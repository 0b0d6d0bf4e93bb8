package token

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"stablegate/internal/identity"
	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
	"stablegate/pkg/platform/sentinel"
)

// checkTimeout bounds the parallel compliance checks on a transfer.
const checkTimeout = 5 * time.Second

// IdentityGateway is the slice of the identity service the enforcer
// consults.
type IdentityGateway interface {
	IsVerified(ctx context.Context, user domain.Address, minLevel domain.VerificationLevel) (bool, error)
	Get(ctx context.Context, user domain.Address) (*identity.Record, error)
}

// BlacklistChecker answers the hot-path listing question.
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, addr domain.Address) (bool, error)
}

// ReserveGuard gates issuance against proven reserves.
type ReserveGuard interface {
	// CheckIssuance returns a CodeInsufficientReserve error when minting
	// amount would push issued supply beyond proven reserves.
	CheckIssuance(ctx context.Context, amount domain.Amount) error
}

// Clock abstracts time for testability.
type Clock func() time.Time

// Service is the token policy engine. Every mint, transfer, burn, freeze,
// and seizure passes through it; nothing else writes the ledger.
type Service struct {
	policies  PolicyStore
	ledger    Ledger
	identity  IdentityGateway
	blacklist BlacklistChecker
	reserve   ReserveGuard
	auditor   *audit.Publisher
	metrics   *Metrics
	logger    *slog.Logger
	clock     Clock
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

// WithMetrics attaches token metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithReserveGuard attaches the reserve issuance gate. Without one, minting
// is refused outright.
func WithReserveGuard(guard ReserveGuard) Option {
	return func(s *Service) { s.reserve = guard }
}

func NewService(
	policies PolicyStore,
	ledger Ledger,
	identityGW IdentityGateway,
	bl BlacklistChecker,
	auditor *audit.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		policies:  policies,
		ledger:    ledger,
		identity:  identityGW,
		blacklist: bl,
		auditor:   auditor,
		logger:    logger,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitPolicy installs the initial policy. Registry-authority only, and only
// once; later changes go through UpdatePolicy.
func (s *Service) InitPolicy(ctx context.Context, actor domain.Actor, policy *Policy) error {
	if !actor.Has(domain.CapRegistryAuthority) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the registry authority")
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if _, err := s.policies.Get(ctx); err == nil {
		return dErrors.New(dErrors.CodeAlreadyExists, "policy is already initialized")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	policy.UpdatedAt = s.clock()
	if err := s.policies.Save(ctx, policy); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save policy")
	}
	return nil
}

// UpdatePolicy replaces the policy. Issuer only.
func (s *Service) UpdatePolicy(ctx context.Context, actor domain.Actor, policy *Policy) error {
	current, err := s.policy(ctx)
	if err != nil {
		return err
	}
	if !actor.Has(domain.CapIssuer) || actor.Address != current.Issuer {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the issuer")
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	policy.UpdatedAt = s.clock()
	if err := s.policies.Save(ctx, policy); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save policy")
	}
	return nil
}

// GetPolicy returns the current policy.
func (s *Service) GetPolicy(ctx context.Context) (*Policy, error) {
	return s.policy(ctx)
}

func (s *Service) policy(ctx context.Context) (*Policy, error) {
	policy, err := s.policies.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "policy is not initialized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policy")
	}
	return policy, nil
}

// MintRequest carries the inputs for an issuance.
type MintRequest struct {
	To     domain.Address
	Amount domain.Amount
	// Reference is the bank transaction reference of the backing deposit.
	Reference string
}

// Mint issues tokens against the reserve. Issuer only. The recipient must
// satisfy the mint verification level and not be blacklisted, and issuance
// may never exceed proven reserves.
//
// A recipient account is created frozen if absent and thawed by this first
// mint.
func (s *Service) Mint(ctx context.Context, actor domain.Actor, req MintRequest) (*Account, error) {
	policy, err := s.policy(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.Has(domain.CapIssuer) || actor.Address != policy.Issuer {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not the issuer")
	}
	if req.Amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "mint amount must be positive")
	}
	if req.Amount > domain.MaxTransactionAmount {
		return nil, s.deny(ctx, "mint", actor.Address, req.To, req.Amount,
			dErrors.Newf(dErrors.CodeTransactionLimitExceeded, "mint exceeds the transaction maximum"))
	}
	if req.Reference == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "mint requires a deposit reference")
	}

	verified, err := s.identity.IsVerified(ctx, req.To, policy.MinLevelMint)
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, s.deny(ctx, "mint", actor.Address, req.To, req.Amount,
			dErrors.Newf(dErrors.CodeForbidden, "recipient is not verified at level %d", policy.MinLevelMint))
	}
	if policy.EnforceBlacklist {
		listed, err := s.blacklist.IsBlacklisted(ctx, req.To)
		if err != nil {
			return nil, err
		}
		if listed {
			return nil, s.deny(ctx, "mint", actor.Address, req.To, req.Amount,
				dErrors.New(dErrors.CodeBlacklisted, "recipient is blacklisted"))
		}
	}
	if s.reserve == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "no reserve guard configured")
	}
	if err := s.reserve.CheckIssuance(ctx, req.Amount); err != nil {
		return nil, s.deny(ctx, "mint", actor.Address, req.To, req.Amount, err)
	}

	now := s.clock()
	if _, err := s.ledger.Ensure(ctx, req.To, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to ensure account")
	}
	account, err := s.ledger.Execute(ctx, req.To,
		func(a *Account) error {
			_, err := a.Balance.CheckedAdd(req.Amount)
			return err
		},
		func(a *Account) {
			a.Balance, _ = a.Balance.CheckedAdd(req.Amount)
			// The first mint thaws a newly created account.
			if a.Frozen && a.Balance == req.Amount {
				a.Frozen = false
			}
			a.UpdatedAt = now
		},
	)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.AdjustSupply(ctx, int64(req.Amount)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust supply")
	}

	s.observeSupply(ctx)
	if s.metrics != nil {
		s.metrics.Minted.Add(float64(req.Amount))
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   req.To,
		Action:    string(audit.EventTokensMinted),
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	return account, nil
}

// TransferRequest carries the inputs for a transfer.
type TransferRequest struct {
	From   domain.Address
	To     domain.Address
	Amount domain.Amount
}

// Transfer moves tokens between verified accounts. The caller must own the
// source account. Identity and blacklist checks for both parties run in
// parallel; the first failure cancels the rest.
func (s *Service) Transfer(ctx context.Context, actor domain.Actor, req TransferRequest) error {
	policy, err := s.policy(ctx)
	if err != nil {
		return err
	}
	if actor.Address != req.From {
		return dErrors.New(dErrors.CodeUnauthorized, "caller does not own the source account")
	}
	if req.Amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer amount must be positive")
	}
	if req.From == req.To {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer requires two distinct accounts")
	}

	if err := s.runComplianceChecks(ctx, policy, req.From, req.To); err != nil {
		return s.deny(ctx, "transfer", req.From, req.To, req.Amount, err)
	}

	// The ceiling follows the sender's verification level.
	sender, err := s.identity.Get(ctx, req.From)
	if err != nil {
		return err
	}
	if ceiling := policy.CeilingFor(sender.Level); req.Amount > ceiling {
		return s.deny(ctx, "transfer", req.From, req.To, req.Amount,
			dErrors.Newf(dErrors.CodeTransactionLimitExceeded, "amount exceeds the level %d ceiling", sender.Level))
	}

	now := s.clock()
	err = s.ledger.ExecutePair(ctx, req.From, req.To,
		func(from, to *Account) error {
			if from.Frozen {
				return dErrors.New(dErrors.CodeAccountFrozen, "source account is frozen")
			}
			if to.Frozen {
				return dErrors.New(dErrors.CodeAccountFrozen, "destination account is frozen")
			}
			if from.Balance < req.Amount {
				return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient balance")
			}
			_, err := to.Balance.CheckedAdd(req.Amount)
			return err
		},
		func(from, to *Account) {
			from.Balance, _ = from.Balance.CheckedSub(req.Amount)
			to.Balance, _ = to.Balance.CheckedAdd(req.Amount)
			from.UpdatedAt = now
			to.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		if de := dErrors.GetCode(err); de != dErrors.CodeInternal {
			return s.deny(ctx, "transfer", req.From, req.To, req.Amount, err)
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.Transfers.Inc()
	}
	return nil
}

// runComplianceChecks verifies both parties' KYC status and blacklist state
// in parallel. Checks are reads with independent backends, so fan-out cuts
// decision latency roughly in half.
func (s *Service) runComplianceChecks(ctx context.Context, policy *Policy, from, to domain.Address) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	check := func(addr domain.Address, role string) {
		g.Go(func() error {
			verified, err := s.identity.IsVerified(ctx, addr, policy.MinLevelTransfer)
			if err != nil {
				return err
			}
			if !verified {
				return dErrors.Newf(dErrors.CodeForbidden, "%s is not verified at level %d", role, policy.MinLevelTransfer)
			}
			return nil
		})
		if policy.EnforceBlacklist {
			g.Go(func() error {
				listed, err := s.blacklist.IsBlacklisted(ctx, addr)
				if err != nil {
					return err
				}
				if listed {
					return dErrors.Newf(dErrors.CodeBlacklisted, "%s is blacklisted", role)
				}
				return nil
			})
		}
	}
	check(from, "sender")
	check(to, "recipient")

	return g.Wait()
}

// Burn destroys tokens from an account. The owner burns for redemption; the
// reserve manager burns on the owner's behalf when processing a redemption
// request.
func (s *Service) Burn(ctx context.Context, actor domain.Actor, from domain.Address, amount domain.Amount, reference string) error {
	if actor.Address != from && !actor.Has(domain.CapReserveManager) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller may not burn from this account")
	}
	if amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "burn amount must be positive")
	}

	now := s.clock()
	_, err := s.ledger.Execute(ctx, from,
		func(a *Account) error {
			if a.Frozen {
				return dErrors.New(dErrors.CodeAccountFrozen, "account is frozen")
			}
			if a.Balance < amount {
				return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient balance")
			}
			return nil
		},
		func(a *Account) {
			a.Balance, _ = a.Balance.CheckedSub(amount)
			a.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return err
	}
	if err := s.ledger.AdjustSupply(ctx, -int64(amount)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust supply")
	}

	s.observeSupply(ctx)
	if s.metrics != nil {
		s.metrics.Burned.Add(float64(amount))
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   from,
		Action:    string(audit.EventTokensBurned),
		Amount:    amount,
		Reference: reference,
	})
	return nil
}

// Freeze freezes an account. Freeze-authority only; freezing an already
// frozen account is a no-op so repeated regulatory orders cannot fail.
func (s *Service) Freeze(ctx context.Context, actor domain.Actor, addr domain.Address, reference string) error {
	return s.setFrozen(ctx, actor, addr, reference, true)
}

// Thaw unfreezes an account. Freeze-authority only; idempotent.
func (s *Service) Thaw(ctx context.Context, actor domain.Actor, addr domain.Address, reference string) error {
	return s.setFrozen(ctx, actor, addr, reference, false)
}

func (s *Service) setFrozen(ctx context.Context, actor domain.Actor, addr domain.Address, reference string, frozen bool) error {
	policy, err := s.policy(ctx)
	if err != nil {
		return err
	}
	if !actor.Has(domain.CapFreezeAuthority) || actor.Address != policy.FreezeAuthority {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the freeze authority")
	}

	now := s.clock()
	changed := false
	_, err = s.ledger.Execute(ctx, addr,
		func(*Account) error { return nil },
		func(a *Account) {
			changed = a.Frozen != frozen
			a.Frozen = frozen
			a.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return err
	}
	if !changed {
		return nil
	}

	event := audit.EventAccountFrozen
	if !frozen {
		event = audit.EventAccountThawed
	}
	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   addr,
		Action:    string(event),
		Reference: reference,
	})
	return nil
}

// SeizeRequest carries the inputs for a seizure.
type SeizeRequest struct {
	From domain.Address
	// To is the custody account the seized funds land in.
	To     domain.Address
	Amount domain.Amount
	// CaseReference anchors the seizure to a court order or case file and
	// is mandatory.
	CaseReference string
}

// Seize moves funds out of an account under a case reference. Permanent
// delegate only. Seizure ignores the frozen flag: frozen accounts are the
// usual target.
func (s *Service) Seize(ctx context.Context, actor domain.Actor, req SeizeRequest) error {
	policy, err := s.policy(ctx)
	if err != nil {
		return err
	}
	if !actor.Has(domain.CapPermanentDelegate) || actor.Address != policy.PermanentDelegate {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the permanent delegate")
	}
	if req.CaseReference == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "seizure requires a case reference")
	}
	if req.Amount.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "seizure amount must be positive")
	}

	now := s.clock()
	if _, err := s.ledger.Ensure(ctx, req.To, now); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to ensure custody account")
	}
	err = s.ledger.ExecutePair(ctx, req.From, req.To,
		func(from, to *Account) error {
			if from.Balance < req.Amount {
				return dErrors.New(dErrors.CodeInsufficientFunds, "insufficient balance to seize")
			}
			_, err := to.Balance.CheckedAdd(req.Amount)
			return err
		},
		func(from, to *Account) {
			from.Balance, _ = from.Balance.CheckedSub(req.Amount)
			to.Balance, _ = to.Balance.CheckedAdd(req.Amount)
			from.UpdatedAt = now
			to.UpdatedAt = now
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return err
	}

	s.emit(ctx, audit.Event{
		Actor:     actor.Address,
		Subject:   req.From,
		Action:    string(audit.EventTokensSeized),
		Amount:    req.Amount,
		Reference: req.CaseReference,
	})
	return nil
}

// GetAccount returns the account at the address.
func (s *Service) GetAccount(ctx context.Context, addr domain.Address) (*Account, error) {
	account, err := s.ledger.Account(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

// Supply returns the issued supply in base units.
func (s *Service) Supply(ctx context.Context) (domain.Amount, error) {
	return s.ledger.Supply(ctx)
}

// deny records a denied operation and returns the denial error unchanged.
func (s *Service) deny(ctx context.Context, op string, actor, subject domain.Address, amount domain.Amount, cause error) error {
	code := dErrors.GetCode(cause)
	if s.metrics != nil {
		s.metrics.Denials.WithLabelValues(op, string(code)).Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:    actor,
		Subject:  subject,
		Action:   string(audit.EventTransferDenied),
		Amount:   amount,
		Decision: op,
		Reason:   string(code),
	})
	return cause
}

func (s *Service) observeSupply(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if supply, err := s.ledger.Supply(ctx); err == nil {
		s.metrics.Supply.Set(float64(supply))
	}
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
