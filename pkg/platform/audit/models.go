package audit

import (
	"time"

	"stablegate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention (e.g., 7 years).
	// Examples: KYC status changes, blacklist writes, seizures, reserve
	// adjustments.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring.
	// Examples: rejected operations, invalid attestation signatures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Actor is the authority or owner that performed the action.
	Actor domain.Address
	// Subject is the user or account the action targeted.
	Subject domain.Address
	Action  string
	// Amount in base units for value-moving actions, zero otherwise.
	Amount domain.Amount
	// Reference carries the off-chain anchor for the action: a bank
	// transaction reference, a court order / case number, or an evidence
	// hash. Required for seizures and reserve adjustments.
	Reference string
	Decision  string
	Reason    string
	RequestID string
}

// AuditEvent names one auditable action.
type AuditEvent string

const (
	// Identity events
	EventIdentityRegistered    AuditEvent = "identity_registered"
	EventIdentityStatusUpdated AuditEvent = "identity_status_updated"
	EventIdentityRevoked       AuditEvent = "identity_revoked"
	EventAttestationAccepted   AuditEvent = "attestation_accepted"
	EventAttestationRejected   AuditEvent = "attestation_rejected"

	// Provider events
	EventProviderRegistered  AuditEvent = "provider_registered"
	EventProviderUpdated     AuditEvent = "provider_updated"
	EventProviderDeactivated AuditEvent = "provider_deactivated"

	// AML / blacklist events
	EventAuthorityRegistered   AuditEvent = "aml_authority_registered"
	EventAuthorityUpdated      AuditEvent = "aml_authority_updated"
	EventAuthorityDeactivated  AuditEvent = "aml_authority_deactivated"
	EventAlertCreated          AuditEvent = "aml_alert_created"
	EventAlertUpdated          AuditEvent = "aml_alert_updated"
	EventAmlActionTaken        AuditEvent = "aml_action_taken"
	EventBlacklistEntryCreated AuditEvent = "blacklist_entry_created"
	EventBlacklistEntryCleared AuditEvent = "blacklist_entry_cleared"

	// Token events
	EventTokensMinted   AuditEvent = "tokens_minted"
	EventTokensBurned   AuditEvent = "tokens_burned"
	EventTokensSeized   AuditEvent = "tokens_seized"
	EventAccountFrozen  AuditEvent = "account_frozen"
	EventAccountThawed  AuditEvent = "account_thawed"
	EventTransferDenied AuditEvent = "transfer_denied"

	// Reserve / redemption events
	EventFiatDepositLogged    AuditEvent = "fiat_deposit_logged"
	EventFiatWithdrawalLogged AuditEvent = "fiat_withdrawal_logged"
	EventReserveProofUpdated  AuditEvent = "reserve_proof_updated"
	EventRedemptionRequested  AuditEvent = "redemption_requested"
	EventRedemptionProcessed  AuditEvent = "redemption_processed"
	EventRedemptionApproved   AuditEvent = "redemption_approved"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventIdentityRegistered:    CategoryCompliance,
	EventIdentityStatusUpdated: CategoryCompliance,
	EventIdentityRevoked:       CategoryCompliance,
	EventAttestationAccepted:   CategoryCompliance,
	EventAttestationRejected:   CategorySecurity,

	EventProviderRegistered:  CategoryCompliance,
	EventProviderUpdated:     CategoryOperations,
	EventProviderDeactivated: CategorySecurity,

	EventAuthorityRegistered:   CategoryCompliance,
	EventAuthorityUpdated:      CategoryCompliance,
	EventAuthorityDeactivated:  CategorySecurity,
	EventAlertCreated:          CategoryCompliance,
	EventAlertUpdated:          CategoryCompliance,
	EventAmlActionTaken:        CategoryCompliance,
	EventBlacklistEntryCreated: CategoryCompliance,
	EventBlacklistEntryCleared: CategoryCompliance,

	EventTokensMinted:   CategoryCompliance,
	EventTokensBurned:   CategoryCompliance,
	EventTokensSeized:   CategoryCompliance,
	EventAccountFrozen:  CategoryCompliance,
	EventAccountThawed:  CategoryCompliance,
	EventTransferDenied: CategorySecurity,

	EventFiatDepositLogged:    CategoryCompliance,
	EventFiatWithdrawalLogged: CategoryCompliance,
	EventReserveProofUpdated:  CategoryCompliance,
	EventRedemptionRequested:  CategoryCompliance,
	EventRedemptionProcessed:  CategoryCompliance,
	EventRedemptionApproved:   CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
