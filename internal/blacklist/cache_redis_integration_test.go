//go:build integration

package blacklist_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stablegate/internal/blacklist"
	"stablegate/pkg/domain"
	"stablegate/pkg/platform/audit"
	"stablegate/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis     *containers.RedisContainer
	cache     *blacklist.Cache
	service   *blacklist.Service
	regulator domain.Actor
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.regulator = domain.NewActor("bafinAuthority12", domain.CapRegulator)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.cache = blacklist.NewCache(s.redis.Client, slog.Default())
	s.service = blacklist.NewService(
		blacklist.NewInMemoryStore(),
		audit.NewPublisher(audit.NewInMemoryStore()),
		slog.Default(),
		blacklist.WithCache(s.cache),
	)
}

func (s *RedisCacheSuite) TestLookupSaveInvalidate() {
	ctx := context.Background()
	addr := domain.Address("suspectAddr12345")

	_, found := s.cache.Lookup(ctx, addr)
	s.False(found, "cold cache must miss")

	s.cache.Save(ctx, addr, true)
	active, found := s.cache.Lookup(ctx, addr)
	s.True(found)
	s.True(active)

	s.cache.Save(ctx, addr, false)
	active, found = s.cache.Lookup(ctx, addr)
	s.True(found)
	s.False(active)

	s.cache.Invalidate(ctx, addr)
	_, found = s.cache.Lookup(ctx, addr)
	s.False(found)
}

// TestCacheAside drives the service read path: the first lookup populates the
// cache, writes invalidate it, and the next lookup sees the new verdict.
func (s *RedisCacheSuite) TestCacheAside() {
	ctx := context.Background()
	addr := domain.Address("suspectAddr12345")

	listed, err := s.service.IsBlacklisted(ctx, addr)
	s.Require().NoError(err)
	s.False(listed)

	// The miss verdict is now cached.
	active, found := s.cache.Lookup(ctx, addr)
	s.True(found)
	s.False(active)

	_, err = s.service.Add(ctx, s.regulator, blacklist.AddRequest{
		Address:     addr,
		Reason:      blacklist.ReasonSuspiciousActivity,
		Action:      blacklist.ActionBlockTransfers,
		EvidenceRef: "case-2026-042",
	})
	s.Require().NoError(err)

	// Add invalidated the stale verdict; the next read refills from the store.
	_, found = s.cache.Lookup(ctx, addr)
	s.False(found, "write must invalidate the cached verdict")

	listed, err = s.service.IsBlacklisted(ctx, addr)
	s.Require().NoError(err)
	s.True(listed)

	active, found = s.cache.Lookup(ctx, addr)
	s.True(found)
	s.True(active)
}

func (s *RedisCacheSuite) TestClearInvalidates() {
	ctx := context.Background()
	addr := domain.Address("suspectAddr12345")

	_, err := s.service.Add(ctx, s.regulator, blacklist.AddRequest{
		Address: addr,
		Reason:  blacklist.ReasonAmlAlert,
		Action:  blacklist.ActionFreeze,
	})
	s.Require().NoError(err)

	listed, err := s.service.IsBlacklisted(ctx, addr)
	s.Require().NoError(err)
	s.True(listed)

	s.Require().NoError(s.service.Clear(ctx, s.regulator, addr, "false positive"))

	listed, err = s.service.IsBlacklisted(ctx, addr)
	s.Require().NoError(err)
	s.False(listed, "cleared address must read unlisted immediately")
}

// TestNilClientDegrades exercises the disabled-cache path: every operation is
// a no-op and lookups miss.
func (s *RedisCacheSuite) TestNilClientDegrades() {
	ctx := context.Background()
	disabled := blacklist.NewCache(nil, slog.Default())
	addr := domain.Address("suspectAddr12345")

	disabled.Save(ctx, addr, true)
	_, found := disabled.Lookup(ctx, addr)
	s.False(found)
	disabled.Invalidate(ctx, addr)
}

// TestVerdictExpiry covers the TTL backstop for invalidations the writer
// cannot deliver. The configured TTL is 30s, too long for a test, so this
// only asserts the key carries one.
func (s *RedisCacheSuite) TestVerdictExpiry() {
	ctx := context.Background()
	addr := domain.Address("suspectAddr12345")
	s.cache.Save(ctx, addr, true)

	ttl, err := s.redis.Client.TTL(ctx, "bl:addr:"+addr.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0), "cached verdicts must expire on their own")
}
