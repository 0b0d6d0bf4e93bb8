package provider

import (
	"crypto/ed25519"
	"encoding/binary"
	"time"

	"stablegate/pkg/domain"
)

// attestationDomain separates attestation signatures from any other message
// a provider key might sign.
const attestationDomain = "stablegate/attestation/v1"

// Attestation is a provider's signed claim that a user passed verification
// at a given level. The signature covers SigningBytes; any field change
// invalidates it.
type Attestation struct {
	Provider domain.Address
	User     domain.Address
	Level    domain.VerificationLevel
	// ValidityDays is the window the provider grants; zero defers to the
	// registry default.
	ValidityDays int
	IssuedAt     time.Time
	// Nonce makes each attestation unique so a captured one cannot be
	// replayed for a later re-verification.
	Nonce     string
	Signature []byte
}

// SigningBytes returns the canonical byte encoding the signature covers.
// Fields are length-prefixed so no two field sequences can collide.
func (a Attestation) SigningBytes() []byte {
	buf := make([]byte, 0, 128)
	appendField := func(s string) {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
		buf = append(buf, s...)
	}
	appendField(attestationDomain)
	appendField(a.Provider.String())
	appendField(a.User.String())
	buf = append(buf, byte(a.Level))
	buf = binary.BigEndian.AppendUint32(buf, uint32(a.ValidityDays))
	buf = binary.BigEndian.AppendUint64(buf, uint64(a.IssuedAt.Unix()))
	appendField(a.Nonce)
	return buf
}

// VerifySignature reports whether the attestation's signature is valid for
// the given key. Pure function: callers decide what an invalid signature
// means.
func VerifySignature(pub ed25519.PublicKey, a Attestation) bool {
	if len(pub) != ed25519.PublicKeySize || len(a.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, a.SigningBytes(), a.Signature)
}
