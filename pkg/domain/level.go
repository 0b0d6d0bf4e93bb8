package domain

import (
	dErrors "stablegate/pkg/domain-errors"
)

// VerificationLevel is the ordinal KYC tier a user has attained. Levels form
// a lattice: each level grants everything below it, and downstream policy
// checks are monotone in the level.
type VerificationLevel uint8

const (
	// LevelNone permits ownership and transfers to non-blacklisted peers only.
	LevelNone VerificationLevel = 0
	// LevelBasic (individual/User) permits individual redemption.
	LevelBasic VerificationLevel = 1
	// LevelStandard (Business) permits business redemption and higher
	// transfer ceilings.
	LevelStandard VerificationLevel = 2
	// LevelAdvanced removes transfer ceilings subject to AML override.
	LevelAdvanced VerificationLevel = 3
)

// ParseVerificationLevel validates a level from external input.
func ParseVerificationLevel(n uint8) (VerificationLevel, error) {
	l := VerificationLevel(n)
	switch l {
	case LevelNone, LevelBasic, LevelStandard, LevelAdvanced:
		return l, nil
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown verification level")
}

// AtLeast reports whether the level satisfies a required minimum.
func (l VerificationLevel) AtLeast(min VerificationLevel) bool {
	return l >= min
}

// String returns a stable label for logs and audit events.
func (l VerificationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelBasic:
		return "basic"
	case LevelStandard:
		return "standard"
	case LevelAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}
