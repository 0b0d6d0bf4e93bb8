// Package reserve tracks proven fiat reserves against issued supply and
// runs the redemption queue. The backing invariant — issued supply never
// exceeds proven reserves — is enforced at mint time through CheckIssuance;
// this package owns the reserve side of that comparison.
package reserve

import (
	"fmt"
	"time"

	"stablegate/pkg/domain"
)

// State is the singleton reserve record.
type State struct {
	// ProvenReserves is the externally attested fiat backing, in base units.
	ProvenReserves domain.Amount
	// PendingRedemptions is fiat owed for burns whose payout has not been
	// processed yet.
	PendingRedemptions domain.Amount

	// RatioRequirement is the backing ratio in basis points. 10000 means
	// full 1:1 backing.
	RatioRequirement uint32

	// Proof metadata from the latest auditor attestation.
	ProofRoot      string
	ProofCID       string
	ProofAuditor   string
	ProofUpdatedAt time.Time

	// LastReference is the bank reference of the most recent deposit or
	// withdrawal.
	LastReference string

	UpdatedAt time.Time
}

// DefaultRatioRequirement is full 1:1 backing in basis points.
const DefaultRatioRequirement uint32 = 10_000

// Lane partitions the redemption queue. Ordering is FIFO within a lane;
// lanes are processed independently.
type Lane string

const (
	// LaneStandard is the default payout path.
	LaneStandard Lane = "standard"
	// LaneLarge holds redemptions above the large threshold. Entries need
	// issuer co-approval before processing.
	LaneLarge Lane = "large"
	// LaneInstitutional is the priority lane for accredited institutions.
	LaneInstitutional Lane = "institutional"
)

// RedemptionStatus tracks a queue entry through its life.
type RedemptionStatus string

const (
	// StatusPending means the tokens are burned and the fiat payout is owed.
	StatusPending RedemptionStatus = "pending"
	// StatusApproved marks a large redemption that holds both signatures
	// and may be processed.
	StatusApproved RedemptionStatus = "approved"
	// StatusProcessed means the fiat payout went out.
	StatusProcessed RedemptionStatus = "processed"
)

// Redemption is one queue entry. The burn happened when the entry was
// created; processing settles the fiat leg only.
type Redemption struct {
	ID        string
	Requester domain.Address
	Amount    domain.Amount
	// BankDetails is the payout IBAN or account reference.
	BankDetails string
	Lane        Lane
	Status      RedemptionStatus

	// ApprovedBy is set on large redemptions once the issuer co-signs.
	ApprovedBy domain.Address
	// PayoutReference is the fiat transaction reference recorded at
	// processing time.
	PayoutReference string

	// Sequence orders entries within a lane.
	Sequence uint64

	RequestedAt time.Time
	ApprovedAt  time.Time
	ProcessedAt time.Time
}

// StorageKey returns the deterministic key for a redemption entry.
func (r *Redemption) StorageKey() string {
	return domain.StorageKey(domain.NamespaceRedemption, r.ID)
}

// Pending reports whether the entry still counts toward the pending total.
func (r *Redemption) Pending() bool {
	return r.Status != StatusProcessed
}

func (r *Redemption) String() string {
	return fmt.Sprintf("redemption %s: %d to %s (%s, %s)", r.ID, r.Amount, r.Requester, r.Lane, r.Status)
}
