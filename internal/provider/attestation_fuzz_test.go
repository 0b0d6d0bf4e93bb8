//go:build go1.18

package provider

import (
	"crypto/ed25519"
	"testing"
	"time"

	"stablegate/pkg/domain"
)

// FuzzVerifySignature tests that verification never panics on arbitrary
// key and signature material and never accepts a signature that was not
// produced for the exact payload.
//
// Justification: trust boundary functions must handle arbitrary input safely.
func FuzzVerifySignature(f *testing.F) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	valid := Attestation{
		Provider: "providerAddr1234",
		User:     "userAaaa11111111",
		Level:    domain.LevelStandard,
		IssuedAt: time.Unix(1_700_000_000, 0),
		Nonce:    "nonce-1",
	}
	validSig := ed25519.Sign(priv, valid.SigningBytes())

	f.Add([]byte(pub), validSig, "userAaaa11111111", "nonce-1")
	f.Add([]byte{}, []byte{}, "", "")
	f.Add([]byte{0xff}, []byte{0x00}, "user", "n")

	f.Fuzz(func(t *testing.T, key, sig []byte, user, nonce string) {
		att := Attestation{
			Provider:  valid.Provider,
			User:      domain.Address(user),
			Level:     valid.Level,
			IssuedAt:  valid.IssuedAt,
			Nonce:     nonce,
			Signature: sig,
		}
		ok := VerifySignature(key, att)
		if ok {
			// The only accepting input is the original key, signature, and
			// payload.
			if string(key) != string(pub) || string(sig) != string(validSig) ||
				user != valid.User.String() || nonce != valid.Nonce {
				t.Error("verification accepted a forged attestation")
			}
		}
	})
}
