// Package aml manages AML authorities, suspicious-activity alerts, and the
// enforcement actions that couple the two to the blacklist and the identity
// registry.
package aml

import (
	"strings"
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
)

// Power is one bit in an authority's power set. An authority may only take
// actions its bits allow, regardless of what its transport credentials say.
type Power uint32

const (
	PowerViewTransactions Power = 1 << iota
	PowerFreezeAccounts
	PowerSeizeFunds
	PowerRequestUserInfo
	PowerIssueRegulatoryComms
	PowerBlockNewTransactions
	PowerModifyBlacklist
)

// allPowers is the full mask; bits outside it are rejected at parse time.
const allPowers = PowerViewTransactions | PowerFreezeAccounts | PowerSeizeFunds |
	PowerRequestUserInfo | PowerIssueRegulatoryComms | PowerBlockNewTransactions |
	PowerModifyBlacklist

var powerNames = map[Power]string{
	PowerViewTransactions:     "view_transactions",
	PowerFreezeAccounts:       "freeze_accounts",
	PowerSeizeFunds:           "seize_funds",
	PowerRequestUserInfo:      "request_user_info",
	PowerIssueRegulatoryComms: "issue_regulatory_communications",
	PowerBlockNewTransactions: "block_new_transactions",
	PowerModifyBlacklist:      "modify_blacklist",
}

// ParsePowers validates a raw power bitset from external input.
func ParsePowers(raw uint32) (Power, error) {
	p := Power(raw)
	if p&^allPowers != 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown power bits set")
	}
	return p, nil
}

// Has reports whether every bit in required is set.
func (p Power) Has(required Power) bool {
	return p&required == required
}

// String renders the set bits by name, for logs and audit records.
func (p Power) String() string {
	if p == 0 {
		return "none"
	}
	var names []string
	for bit := PowerViewTransactions; bit <= PowerModifyBlacklist; bit <<= 1 {
		if p&bit != 0 {
			names = append(names, powerNames[bit])
		}
	}
	return strings.Join(names, "|")
}

// Authority is a registered AML authority (an FIU, a regulator desk, a
// court liaison). The Address is its ledger identity and storage key.
type Authority struct {
	Address      domain.Address
	Name         string
	Jurisdiction domain.CountryCode
	Powers       Power
	Active       bool

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// StorageKey returns the deterministic location of this authority record.
func (a *Authority) StorageKey() string {
	return domain.StorageKey(domain.NamespaceAuthority, a.Address.String())
}

// AlertStatus is the investigation state of an alert. Transitions are
// forward-only and Closed is terminal.
type AlertStatus string

const (
	AlertOpen          AlertStatus = "open"
	AlertInvestigating AlertStatus = "investigating"
	AlertEscalated     AlertStatus = "escalated"
	AlertClosed        AlertStatus = "closed"
)

// alertTransitions is the single source of truth for legal status moves.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertOpen:          {AlertInvestigating, AlertEscalated, AlertClosed},
	AlertInvestigating: {AlertEscalated, AlertClosed},
	AlertEscalated:     {AlertClosed},
	AlertClosed:        {},
}

// CanTransition reports whether the move from s to next is legal.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseAlertStatus constructs an AlertStatus from external input.
func ParseAlertStatus(v string) (AlertStatus, error) {
	st := AlertStatus(v)
	if _, ok := alertTransitions[st]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown alert status")
	}
	return st, nil
}

// Severity grades an alert for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var validSeverities = map[Severity]bool{
	SeverityLow:      true,
	SeverityMedium:   true,
	SeverityHigh:     true,
	SeverityCritical: true,
}

// ParseSeverity constructs a Severity from external input.
func ParseSeverity(v string) (Severity, error) {
	sev := Severity(v)
	if !validSeverities[sev] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown alert severity")
	}
	return sev, nil
}

// Alert is one suspicious-activity alert. Alerts are append-only case
// records; closing one records a resolution, never deletes it.
type Alert struct {
	ID       string
	Subject  domain.Address
	RaisedBy domain.Address
	Status   AlertStatus
	Severity Severity
	// Description is the analyst's narrative; free text, never parsed.
	Description string
	// Resolution is required to close the alert.
	Resolution string

	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  time.Time
}

// StorageKey returns the deterministic location of this alert.
func (a *Alert) StorageKey() string {
	return domain.StorageKey(domain.NamespaceAlert, a.ID)
}
