package audit

import (
	"context"
	"time"

	"stablegate/pkg/domain"
)

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit records an event. The category is always derived from the action so
// callers cannot misclassify a compliance event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = AuditEvent(event.Action).Category()
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, subject domain.Address) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}
