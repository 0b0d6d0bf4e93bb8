package identity

import (
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
)

// KycStatus is the verification state of a user record. The set is closed:
// every consumer switches exhaustively so a new status cannot ship without a
// compile-time audit of the call sites.
type KycStatus string

const (
	StatusUnverified KycStatus = "unverified"
	StatusPending    KycStatus = "pending"
	StatusVerified   KycStatus = "verified"
	StatusRejected   KycStatus = "rejected"
	StatusRevoked    KycStatus = "revoked"
	StatusExpired    KycStatus = "expired"
	StatusSuspended  KycStatus = "suspended"
)

// validStatuses is the single source of truth for valid KYC statuses.
var validStatuses = map[KycStatus]bool{
	StatusUnverified: true,
	StatusPending:    true,
	StatusVerified:   true,
	StatusRejected:   true,
	StatusRevoked:    true,
	StatusExpired:    true,
	StatusSuspended:  true,
}

// ParseKycStatus constructs a KycStatus from external input.
func ParseKycStatus(s string) (KycStatus, error) {
	st := KycStatus(s)
	if !validStatuses[st] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown KYC status")
	}
	return st, nil
}

// String returns the string representation of the status.
func (s KycStatus) String() string {
	return string(s)
}

// Record is the durable KYC record of one user. Records are never deleted;
// status transitions supersede each other and the audit stream preserves the
// trail.
type Record struct {
	User   domain.Address
	Status KycStatus
	Level  domain.VerificationLevel
	// RequiredLevel is the risk-adjusted minimum this user must reach; it
	// may exceed the current level after an AML review.
	RequiredLevel domain.VerificationLevel
	Country       domain.CountryCode
	// RoutingCode is the bank sorting code (German BLZ) of the linked
	// account.
	RoutingCode string
	// IBANHash is the BLAKE2b hash of the IBAN. The raw IBAN never enters
	// the engine.
	IBANHash string
	// Provider identifies the verification provider that attested this
	// record, empty when the registry authority verified directly.
	Provider string
	// Business marks accounts owned by business entities; they redeem under
	// the business minimum level.
	Business bool

	RegisteredAt time.Time
	VerifiedAt   time.Time
	// ExpiresAt is the verification expiry. Zero means not set, which is
	// only a valid state for non-Verified records.
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus returns the status as authorization must see it: a
// Verified record whose expiry has passed reads as Expired without anyone
// writing the transition.
func (r *Record) EffectiveStatus(now time.Time) KycStatus {
	if r.Status == StatusVerified && !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// IsVerified reports whether the record satisfies the minimum level right
// now. False for lapsed verifications regardless of the stored status.
func (r *Record) IsVerified(minLevel domain.VerificationLevel, now time.Time) bool {
	if r.EffectiveStatus(now) != StatusVerified {
		return false
	}
	if !r.Level.AtLeast(minLevel) {
		return false
	}
	return r.ExpiresAt.IsZero() || now.Before(r.ExpiresAt)
}

// StorageKey returns the deterministic location of this record.
func (r *Record) StorageKey() string {
	return domain.StorageKey(domain.NamespaceIdentity, r.User.String())
}
