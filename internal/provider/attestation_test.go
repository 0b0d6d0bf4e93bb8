package provider

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablegate/pkg/domain"
)

func signedAttestation(t *testing.T, priv ed25519.PrivateKey) Attestation {
	t.Helper()
	att := Attestation{
		Provider:     "providerAddr1234",
		User:         "userAaaa11111111",
		Level:        domain.LevelStandard,
		ValidityDays: 180,
		IssuedAt:     time.Now().Truncate(time.Second),
		Nonce:        "nonce-1",
	}
	att.Signature = ed25519.Sign(priv, att.SigningBytes())
	return att
}

func TestVerifySignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	t.Run("valid signature verifies", func(t *testing.T) {
		att := signedAttestation(t, priv)
		assert.True(t, VerifySignature(pub, att))
	})

	t.Run("any field change invalidates", func(t *testing.T) {
		mutations := map[string]func(*Attestation){
			"user":     func(a *Attestation) { a.User = "userBbbb22222222" },
			"level":    func(a *Attestation) { a.Level = domain.LevelAdvanced },
			"validity": func(a *Attestation) { a.ValidityDays++ },
			"issued":   func(a *Attestation) { a.IssuedAt = a.IssuedAt.Add(time.Second) },
			"nonce":    func(a *Attestation) { a.Nonce = "nonce-2" },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				att := signedAttestation(t, priv)
				mutate(&att)
				assert.False(t, VerifySignature(pub, att))
			})
		}
	})

	t.Run("wrong key fails", func(t *testing.T) {
		otherPub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		att := signedAttestation(t, priv)
		assert.False(t, VerifySignature(otherPub, att))
	})

	t.Run("truncated signature fails without panicking", func(t *testing.T) {
		att := signedAttestation(t, priv)
		att.Signature = att.Signature[:16]
		assert.False(t, VerifySignature(pub, att))
	})

	t.Run("short key fails without panicking", func(t *testing.T) {
		att := signedAttestation(t, priv)
		assert.False(t, VerifySignature(pub[:8], att))
	})
}

func TestSigningBytesFieldBoundaries(t *testing.T) {
	// Shifting a byte across a field boundary must change the encoding;
	// length prefixes exist to prevent exactly this collision.
	a := Attestation{Provider: "providerAddr1234", User: "userAaaa11111111", Nonce: "abcd"}
	b := a
	b.Nonce = "abc"
	assert.NotEqual(t, a.SigningBytes(), b.SigningBytes())
}
