package domain

import (
	"unicode/utf8"

	dErrors "stablegate/pkg/domain-errors"
)

// Address identifies a party on the hosting ledger: a user wallet, an
// authority key, or a treasury account. The engine treats it as opaque; it
// only needs equality and a stable string form for storage keys.
//
// Usage: construct via ParseAddress at trust boundaries; direct casting
// bypasses validation.
type Address string

const (
	minAddressLen = 8
	maxAddressLen = 64
)

// ParseAddress validates an address from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed, or
// outside the accepted length range; no other errors are expected.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be valid UTF-8")
	}
	if len(s) < minAddressLen || len(s) > maxAddressLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address length out of range")
	}
	for _, r := range s {
		if !isBase58Rune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "address contains invalid characters")
		}
	}
	return Address(s), nil
}

// isBase58Rune accepts the Base58 alphabet used by ledger addresses:
// alphanumeric minus 0, O, I, and l.
func isBase58Rune(r rune) bool {
	switch {
	case r >= '1' && r <= '9':
		return true
	case r >= 'A' && r <= 'H', r >= 'J' && r <= 'N', r >= 'P' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'k', r >= 'm' && r <= 'z':
		return true
	}
	return false
}

// String returns the string representation of the address.
func (a Address) String() string {
	return string(a)
}

// IsNil returns true if the address is empty.
func (a Address) IsNil() bool {
	return a == ""
}
