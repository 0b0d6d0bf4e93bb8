package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherEmit(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	event := Event{
		Actor:   "authorityAddr123",
		Subject: "userAddr12345678",
		Action:  string(EventTokensMinted),
		Amount:  1_000_000_000,
	}
	require.NoError(t, pub.Emit(context.Background(), event))

	events, err := pub.List(context.Background(), "userAddr12345678")
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, string(EventTokensMinted), got.Action)
	assert.False(t, got.Timestamp.IsZero(), "timestamp defaulted on emit")
	assert.Equal(t, CategoryCompliance, got.Category, "category derived from action")
}

func TestEventCategoryDerivation(t *testing.T) {
	assert.Equal(t, CategoryCompliance, EventTokensSeized.Category())
	assert.Equal(t, CategorySecurity, EventTransferDenied.Category())
	assert.Equal(t, CategoryOperations, AuditEvent("something_else").Category())
}
