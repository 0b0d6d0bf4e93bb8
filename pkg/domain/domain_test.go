package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "stablegate/pkg/domain-errors"
)

// TestParseAddress_Invariants validates the parsing invariant:
// "addresses must be non-empty Base58 strings within length bounds".
func TestParseAddress_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAddress("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects excluded Base58 characters", func(t *testing.T) {
		_, err := ParseAddress("O0Il00000000")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects too-short input", func(t *testing.T) {
		_, err := ParseAddress("abc")
		require.Error(t, err)
	})

	t.Run("accepts valid address", func(t *testing.T) {
		addr, err := ParseAddress("9x3tkUkajECAgPvS59YTAdD7VZRMRckrPxFC4MZspup5")
		require.NoError(t, err)
		assert.Equal(t, "9x3tkUkajECAgPvS59YTAdD7VZRMRckrPxFC4MZspup5", addr.String())
	})
}

func TestAmountCheckedArithmetic(t *testing.T) {
	t.Run("add within range", func(t *testing.T) {
		sum, err := Amount(1).CheckedAdd(2)
		require.NoError(t, err)
		assert.Equal(t, Amount(3), sum)
	})

	t.Run("add overflow rejected", func(t *testing.T) {
		_, err := Amount(math.MaxUint64).CheckedAdd(1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("sub underflow rejected", func(t *testing.T) {
		_, err := Amount(1).CheckedSub(2)
		require.Error(t, err)
	})

	t.Run("EUR scale", func(t *testing.T) {
		assert.Equal(t, Amount(1_000_000_000), FromEUR(1))
		assert.Equal(t, MaxTransactionAmount, FromEUR(100_000))
	})
}

func TestCountryCode(t *testing.T) {
	t.Run("accepts EU member state", func(t *testing.T) {
		c, err := ParseCountryCode("FR")
		require.NoError(t, err)
		assert.True(t, c.IsSupportedJurisdiction())
	})

	t.Run("well-formed but unsupported", func(t *testing.T) {
		c, err := ParseCountryCode("US")
		require.NoError(t, err)
		assert.False(t, c.IsSupportedJurisdiction())
	})

	t.Run("rejects malformed", func(t *testing.T) {
		_, err := ParseCountryCode("fra")
		require.Error(t, err)
		_, err = ParseCountryCode("fr")
		require.Error(t, err)
	})
}

func TestVerificationLevelLattice(t *testing.T) {
	levels := []VerificationLevel{LevelNone, LevelBasic, LevelStandard, LevelAdvanced}
	for i, lo := range levels {
		for j, hi := range levels {
			assert.Equal(t, i >= j, lo.AtLeast(hi), "level %d vs %d", lo, hi)
		}
	}

	_, err := ParseVerificationLevel(4)
	require.Error(t, err)
}

func TestStorageKeyDeterminism(t *testing.T) {
	k1 := StorageKey(NamespaceIdentity, "userA1234567")
	k2 := StorageKey(NamespaceIdentity, "userA1234567")
	assert.Equal(t, k1, k2)

	// Different namespaces never collide for the same entity.
	assert.NotEqual(t, k1, StorageKey(NamespaceBlacklist, "userA1234567"))
}

func TestActorCapabilities(t *testing.T) {
	actor := NewActor("issuerAddr12345", CapIssuer, CapReserveAuthority)
	assert.True(t, actor.Has(CapIssuer))
	assert.False(t, actor.Has(CapFreezeAuthority))
}
