// Package token enforces the issuance and transfer policy of the EUR token.
// Every value movement passes through the enforcer, which consults the
// identity registry, the blacklist, and the reserve before touching the
// ledger.
package token

import (
	"context"
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
)

// Policy is the mint-wide rule set. There is exactly one policy record; the
// issuer updates it in place and every enforcement decision reads the
// current version.
type Policy struct {
	// Issuer is the only address allowed to mint.
	Issuer domain.Address
	// FreezeAuthority may freeze and thaw accounts.
	FreezeAuthority domain.Address
	// PermanentDelegate may seize funds with a case reference. This is the
	// regulatory backdoor and every use is audited.
	PermanentDelegate domain.Address

	// Minimum verification levels per operation. Business accounts redeem
	// under their own minimum.
	MinLevelTransfer           domain.VerificationLevel
	MinLevelMint               domain.VerificationLevel
	MinLevelRedemption         domain.VerificationLevel
	MinLevelBusinessRedemption domain.VerificationLevel

	// EnforceBlacklist gates the blacklist consultations. Always on in
	// production; the switch exists for sandbox deployments.
	EnforceBlacklist bool

	// Ceilings caps single-transfer amounts per verification level, in base
	// units. A level absent from the map falls back to the global maximum.
	Ceilings map[domain.VerificationLevel]domain.Amount

	// MinRedemption is the smallest redeemable amount, in base units.
	MinRedemption domain.Amount

	// WhitepaperURI points at the published crypto-asset whitepaper.
	WhitepaperURI string

	UpdatedAt time.Time
}

// DefaultPolicy returns the initial policy: transfers and individual
// redemption need level one, minting and business redemption need level
// two, and ceilings step up with the level.
func DefaultPolicy(issuer, freezeAuthority, permanentDelegate domain.Address) *Policy {
	return &Policy{
		Issuer:                     issuer,
		FreezeAuthority:            freezeAuthority,
		PermanentDelegate:          permanentDelegate,
		MinLevelTransfer:           domain.LevelBasic,
		MinLevelMint:               domain.LevelStandard,
		MinLevelRedemption:         domain.LevelBasic,
		MinLevelBusinessRedemption: domain.LevelStandard,
		EnforceBlacklist:           true,
		Ceilings: map[domain.VerificationLevel]domain.Amount{
			domain.LevelBasic:    domain.FromEUR(10_000),
			domain.LevelStandard: domain.FromEUR(50_000),
			domain.LevelAdvanced: domain.MaxTransactionAmount,
		},
		MinRedemption: domain.FromEUR(10),
	}
}

// CeilingFor returns the single-transfer cap for a verification level,
// never exceeding the global maximum.
func (p *Policy) CeilingFor(level domain.VerificationLevel) domain.Amount {
	ceiling, ok := p.Ceilings[level]
	if !ok || ceiling > domain.MaxTransactionAmount {
		return domain.MaxTransactionAmount
	}
	return ceiling
}

// Validate rejects policies that could brick the mint.
func (p *Policy) Validate() error {
	if p.Issuer.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "policy requires an issuer")
	}
	if p.MinRedemption.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "policy requires a minimum redemption")
	}
	return nil
}

// PolicyStore persists the single policy record.
type PolicyStore interface {
	// Get returns the current policy; sentinel.ErrNotFound before Init.
	Get(ctx context.Context) (*Policy, error)

	// Save writes the policy, creating or replacing it.
	Save(ctx context.Context, p *Policy) error
}
