package identity

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/audit"
)

var (
	registryActor = domain.NewActor("registryAuth1234", domain.CapRegistryAuthority)
	nobodyActor   = domain.NewActor("randomUser123456")
)

func newTestService(now time.Time) (*Service, *audit.InMemoryStore) {
	sink := audit.NewInMemoryStore()
	svc := NewService(
		NewInMemoryStore(),
		audit.NewPublisher(sink),
		slog.Default(),
		WithClock(func() time.Time { return now }),
	)
	return svc, sink
}

func registerReq(user domain.Address, country domain.CountryCode) RegisterRequest {
	return RegisterRequest{
		User:        user,
		RoutingCode: "10070000",
		IBAN:        "DE89370400440532013000",
		Country:     country,
	}
}

func TestRegister(t *testing.T) {
	now := time.Now()

	t.Run("unsupported jurisdiction rejected", func(t *testing.T) {
		svc, _ := newTestService(now)
		_, err := svc.Register(context.Background(), registryActor, registerReq("userAaaa11111111", "US"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedJurisdiction))
	})

	t.Run("accepted jurisdiction creates pending record", func(t *testing.T) {
		svc, _ := newTestService(now)
		record, err := svc.Register(context.Background(), registryActor, registerReq("userAaaa11111111", "FR"))
		require.NoError(t, err)
		assert.Equal(t, StatusPending, record.Status)
		assert.Equal(t, domain.LevelNone, record.Level)
		assert.NotEmpty(t, record.IBANHash)
		assert.NotContains(t, record.IBANHash, "DE89", "raw IBAN must not leak into the record")
	})

	t.Run("duplicate registration fails with AlreadyExists", func(t *testing.T) {
		svc, _ := newTestService(now)
		_, err := svc.Register(context.Background(), registryActor, registerReq("userAaaa11111111", "FR"))
		require.NoError(t, err)
		_, err = svc.Register(context.Background(), registryActor, registerReq("userAaaa11111111", "FR"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	t.Run("non-authority caller rejected", func(t *testing.T) {
		svc, _ := newTestService(now)
		_, err := svc.Register(context.Background(), nobodyActor, registerReq("userAaaa11111111", "FR"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func TestUpdateStatus(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	setup := func(t *testing.T) *Service {
		svc, _ := newTestService(now)
		_, err := svc.Register(ctx, registryActor, registerReq("userAaaa11111111", "DE"))
		require.NoError(t, err)
		return svc
	}

	t.Run("verify sets level and expiry", func(t *testing.T) {
		svc := setup(t)
		record, err := svc.UpdateStatus(ctx, registryActor, "userAaaa11111111", StatusVerified, domain.LevelStandard, 30)
		require.NoError(t, err)
		assert.Equal(t, StatusVerified, record.Status)
		assert.Equal(t, domain.LevelStandard, record.Level)
		assert.Equal(t, now.Add(30*24*time.Hour), record.ExpiresAt)

		count, err := svc.VerifiedCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("zero validity defaults to one year", func(t *testing.T) {
		svc := setup(t)
		record, err := svc.UpdateStatus(ctx, registryActor, "userAaaa11111111", StatusVerified, domain.LevelBasic, 0)
		require.NoError(t, err)
		assert.Equal(t, now.Add(defaultValidityDays*24*time.Hour), record.ExpiresAt)
	})

	t.Run("revocation resets level and counter", func(t *testing.T) {
		svc := setup(t)
		_, err := svc.UpdateStatus(ctx, registryActor, "userAaaa11111111", StatusVerified, domain.LevelStandard, 30)
		require.NoError(t, err)

		record, err := svc.UpdateStatus(ctx, registryActor, "userAaaa11111111", StatusRevoked, domain.LevelNone, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.LevelNone, record.Level)
		assert.True(t, record.ExpiresAt.IsZero())

		count, err := svc.VerifiedCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("unknown user is NotFound", func(t *testing.T) {
		svc := setup(t)
		_, err := svc.UpdateStatus(ctx, registryActor, "userZzzz99999999", StatusVerified, domain.LevelBasic, 30)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestIsVerified(t *testing.T) {
	start := time.Now()
	current := start
	svc := NewService(
		NewInMemoryStore(),
		audit.NewPublisher(audit.NewInMemoryStore()),
		slog.Default(),
		WithClock(func() time.Time { return current }),
	)
	ctx := context.Background()

	_, err := svc.Register(ctx, registryActor, registerReq("userAaaa11111111", "DE"))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, registryActor, "userAaaa11111111", StatusVerified, domain.LevelBasic, 30)
	require.NoError(t, err)

	t.Run("verified at sufficient level", func(t *testing.T) {
		ok, err := svc.IsVerified(ctx, "userAaaa11111111", domain.LevelBasic)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("insufficient level", func(t *testing.T) {
		ok, err := svc.IsVerified(ctx, "userAaaa11111111", domain.LevelStandard)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lapsed expiry reads as unverified without a status write", func(t *testing.T) {
		current = start.Add(31 * 24 * time.Hour)
		defer func() { current = start }()

		ok, err := svc.IsVerified(ctx, "userAaaa11111111", domain.LevelBasic)
		require.NoError(t, err)
		assert.False(t, ok)

		// The stored status is still Verified; only the effective view lapses.
		record, err := svc.Get(ctx, "userAaaa11111111")
		require.NoError(t, err)
		assert.Equal(t, StatusVerified, record.Status)
		assert.Equal(t, StatusExpired, record.EffectiveStatus(current))
	})

	t.Run("unknown user reads as unverified", func(t *testing.T) {
		ok, err := svc.IsVerified(ctx, "userZzzz99999999", domain.LevelNone)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("risk-adjusted required level overrides caller minimum", func(t *testing.T) {
		require.NoError(t, svc.SetRequiredLevel(ctx, registryActor, "userAaaa11111111", domain.LevelAdvanced))
		ok, err := svc.IsVerified(ctx, "userAaaa11111111", domain.LevelBasic)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
