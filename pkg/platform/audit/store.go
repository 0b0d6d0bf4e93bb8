package audit

import (
	"context"

	"stablegate/pkg/domain"
)

// Store is an append-only sink for audit events. Implementations: in-memory
// (tests and single-node), Kafka (production fan-out).
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject domain.Address) ([]Event, error)
}
