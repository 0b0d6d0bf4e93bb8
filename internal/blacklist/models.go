// Package blacklist maintains the enforcement list the token policy engine
// consults on every transfer. Entries are written through the AML workflow
// and read on the hot path, so the read side carries an optional Redis
// cache.
package blacklist

import (
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
)

// Reason records why an address was listed.
type Reason string

const (
	ReasonKycRevoked         Reason = "kyc_revoked"
	ReasonSuspiciousActivity Reason = "suspicious_activity"
	ReasonRegulatoryOrder    Reason = "regulatory_order"
	ReasonCourtOrder         Reason = "court_order"
	ReasonAmlAlert           Reason = "aml_alert"
	ReasonOther              Reason = "other"
)

var validReasons = map[Reason]bool{
	ReasonKycRevoked:         true,
	ReasonSuspiciousActivity: true,
	ReasonRegulatoryOrder:    true,
	ReasonCourtOrder:         true,
	ReasonAmlAlert:           true,
	ReasonOther:              true,
}

// ParseReason constructs a Reason from external input.
func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !validReasons[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown blacklist reason")
	}
	return r, nil
}

// Action is the enforcement applied alongside the listing.
type Action string

const (
	ActionFreeze         Action = "freeze"
	ActionSeize          Action = "seize"
	ActionRestrict       Action = "restrict"
	ActionBlockTransfers Action = "block_transfers"
)

var validActions = map[Action]bool{
	ActionFreeze:         true,
	ActionSeize:          true,
	ActionRestrict:       true,
	ActionBlockTransfers: true,
}

// ParseAction constructs an Action from external input.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !validActions[a] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown blacklist action")
	}
	return a, nil
}

// Entry is one blacklisting. Entries are never deleted: clearing one sets
// Active to false and keeps the history.
type Entry struct {
	Address domain.Address
	Reason  Reason
	Action  Action
	// EvidenceRef anchors the listing to a case file, court order, or
	// investigation reference.
	EvidenceRef string
	// AlertID links back to the AML alert that triggered the listing, empty
	// for direct regulatory orders.
	AlertID string
	AddedBy domain.Address
	Active  bool
	// ExpiresAt bounds temporary listings. Zero means indefinite.
	ExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	// ClearReason records why the entry was deactivated.
	ClearReason string
}

// IsActive reports whether the entry is enforced at the given instant.
// Expired entries read as inactive without anyone writing the transition.
func (e *Entry) IsActive(now time.Time) bool {
	if !e.Active {
		return false
	}
	return e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt)
}

// StorageKey returns the deterministic location of this entry.
func (e *Entry) StorageKey() string {
	return domain.StorageKey(domain.NamespaceBlacklist, e.Address.String())
}
