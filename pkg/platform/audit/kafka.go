package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// KafkaStore publishes audit events to a Kafka topic. Kafka is the source of
// truth for the audit trail in production; querying happens downstream in the
// consumers that materialize the stream, so ListBySubject is unsupported here.
type KafkaStore struct {
	client *kgo.Client
	topic  string
}

// kafkaPayload is the JSON structure published to the audit topic.
type kafkaPayload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Amount    uint64 `json:"amount,omitempty"`
	Reference string `json:"reference,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// NewKafkaStore connects to the brokers and ensures the audit topic exists.
func NewKafkaStore(ctx context.Context, brokers []string, topic string) (*KafkaStore, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(5*time.Millisecond),
		// Audit events must not be lost; wait for all in-sync replicas.
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	topics, err := adm.ListTopics(ctx, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("list kafka topics: %w", err)
	}
	if !topics.Has(topic) {
		if _, err := adm.CreateTopic(ctx, 3, 1, nil, topic); err != nil {
			client.Close()
			return nil, fmt.Errorf("create audit topic: %w", err)
		}
	}

	return &KafkaStore{client: client, topic: topic}, nil
}

// Append publishes the event, keyed by subject so one account's trail stays
// ordered within a partition. Blocks until the write is acknowledged:
// compliance events are fail-closed.
func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	payload := kafkaPayload{
		ID:        uuid.NewString(),
		Category:  string(event.Category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Actor:     event.Actor.String(),
		Subject:   event.Subject.String(),
		Action:    event.Action,
		Amount:    uint64(event.Amount),
		Reference: event.Reference,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListBySubject is not supported on the Kafka sink.
func (s *KafkaStore) ListBySubject(context.Context, domain.Address) ([]Event, error) {
	return nil, sentinel.ErrUnavailable
}

func (s *KafkaStore) Close() {
	s.client.Close()
}
