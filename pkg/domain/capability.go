package domain

// Capability names one administrative power an actor can hold. Authorities
// are never ambient state: every operation receives the calling Actor and
// checks the capability it needs, which keeps authorization a pure function
// of (caller, required capability).
type Capability string

const (
	// CapRegistryAuthority manages identity and provider registrations.
	CapRegistryAuthority Capability = "registry_authority"
	// CapIssuer mints tokens and approves large redemptions.
	CapIssuer Capability = "issuer"
	// CapFreezeAuthority freezes and thaws ledger accounts.
	CapFreezeAuthority Capability = "freeze_authority"
	// CapPermanentDelegate seizes balances without owner consent.
	CapPermanentDelegate Capability = "permanent_delegate"
	// CapReserveAuthority logs fiat deposits/withdrawals and reserve proofs.
	CapReserveAuthority Capability = "reserve_authority"
	// CapReserveManager processes redemption payouts.
	CapReserveManager Capability = "reserve_manager"
	// CapRegulator manages AML authority records.
	CapRegulator Capability = "regulator"
)

// validCapabilities is the single source of truth for known capabilities.
var validCapabilities = map[Capability]bool{
	CapRegistryAuthority: true,
	CapIssuer:            true,
	CapFreezeAuthority:   true,
	CapPermanentDelegate: true,
	CapReserveAuthority:  true,
	CapReserveManager:    true,
	CapRegulator:         true,
}

// IsValid checks if the capability is one of the supported values.
func (c Capability) IsValid() bool {
	return validCapabilities[c]
}

// Actor is the authenticated caller of an operation: its ledger address plus
// the capability set proven by its token. Actors are built once at the
// transport boundary and passed by value into services.
type Actor struct {
	Address      Address
	Capabilities map[Capability]bool
}

// NewActor builds an actor with the given capabilities.
func NewActor(addr Address, caps ...Capability) Actor {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return Actor{Address: addr, Capabilities: set}
}

// Has reports whether the actor holds the capability.
func (a Actor) Has(c Capability) bool {
	return a.Capabilities[c]
}
