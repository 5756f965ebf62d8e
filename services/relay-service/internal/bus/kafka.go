// Package bus adapts the outbox relay to Kafka. Send blocks on a broker-level
// ack; a network-accepted-but-unacked write still counts as failure.
package bus

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/shelfmark/shelfmark/libs/kafkax"
	otelx "github.com/shelfmark/shelfmark/libs/otel"
	"github.com/shelfmark/shelfmark/libs/outbox"
)

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string) *Kafka {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Balancer:     &kafka.Hash{},
		RequiredAcks: int(kafka.RequireAll),
	})
	return &Kafka{writer: writer}
}

// Send publishes one record and waits for the broker ack. The record's stored
// trace context is re-injected so consumers join the originating trace.
func (k *Kafka) Send(ctx context.Context, rec outbox.Record) error {
	msgCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	msg := kafka.Message{
		Topic: rec.Topic,
		Key:   []byte(rec.Key),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
			{Key: "event_type", Value: []byte(rec.EventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", rec.Topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
