package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors with the right
// code.
//
// These represent factual states about stored records, not policy decisions:
// - ErrNotFound: record does not exist in the store
// - ErrAlreadyExists: a record with the same key already exists
// - ErrExpired: record exists but its validity window has passed
// - ErrInvalidState: record is in the wrong state for the requested mutation
// - ErrUnavailable: backing store temporarily unreachable
//
// Policy failures (unauthorized caller, insufficient reserve, blacklisted
// party) use pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrExpired       = errors.New("expired")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
