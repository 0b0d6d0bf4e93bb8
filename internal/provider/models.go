// Package provider manages verification providers and the attestations they
// submit. Providers are the only external parties allowed to move a user to
// Verified, and every attestation carries an Ed25519 signature checked
// against the provider's registered key.
package provider

import (
	"crypto/ed25519"
	"encoding/base64"
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
)

// Provider is a registered verification provider. The Address is the
// provider's ledger identity and the storage key; the PublicKey is the
// Ed25519 key its attestations are signed with.
type Provider struct {
	Address   domain.Address
	Name      string
	PublicKey ed25519.PublicKey
	// Jurisdiction is where the provider is licensed to operate.
	Jurisdiction domain.CountryCode
	// MaxLevel caps the verification level this provider may attest. An
	// attestation above the cap is rejected even with a valid signature.
	MaxLevel domain.VerificationLevel
	// TrustScore is the operator-assigned score, 0-100.
	TrustScore uint8
	Active     bool
	// AcceptedCount counts attestations this provider has had accepted.
	AcceptedCount uint64

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// StorageKey returns the deterministic location of this provider record.
func (p *Provider) StorageKey() string {
	return domain.StorageKey(domain.NamespaceProvider, p.Address.String())
}

// ParsePublicKey decodes a base64 Ed25519 public key from external input.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "public key is not valid base64")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "public key must be %d bytes", ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ParseTrustScore validates an operator-assigned trust score.
func ParseTrustScore(n uint8) (uint8, error) {
	if n > 100 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "trust score must be between 0 and 100")
	}
	return n, nil
}
