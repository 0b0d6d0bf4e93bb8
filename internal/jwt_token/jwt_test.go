package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
)

func newService() *JWTService {
	return NewJWTService("test-signing-key", "stablegate", "stablegate-api")
}

func TestCapabilityTokenRoundTrip(t *testing.T) {
	svc := newService()

	token, err := svc.GenerateCapabilityToken(
		"issuerAddr123456",
		[]domain.Capability{domain.CapIssuer, domain.CapReserveAuthority},
		time.Hour,
	)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "issuerAddr123456", claims.Address)
	assert.ElementsMatch(t, []string{"issuer", "reserve_authority"}, claims.Capabilities)
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := newService()

	t.Run("rejects expired token", func(t *testing.T) {
		token, err := svc.GenerateCapabilityToken("issuerAddr123456", nil, -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("rejects token signed with different key", func(t *testing.T) {
		other := NewJWTService("other-key", "stablegate", "stablegate-api")
		token, err := other.GenerateCapabilityToken("issuerAddr123456", nil, time.Hour)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		require.Error(t, err)
	})
}
