package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shelfmark/shelfmark/libs/events"
	otelx "github.com/shelfmark/shelfmark/libs/otel"
)

// Saver is the slice of the store the writer needs.
type Saver interface {
	Save(ctx context.Context, tx pgx.Tx, rec *Record) error
}

// Writer is the producer-facing append API. It only writes to the store,
// never to the bus, and it participates in the caller's transaction: if the
// business transaction rolls back, the event never existed.
type Writer struct {
	store  Saver
	source string
}

// NewWriter returns a writer that stamps source onto envelopes that do not
// carry one.
func NewWriter(store Saver, source string) *Writer {
	return &Writer{store: store, source: source}
}

// Append normalizes, validates and persists env as a PENDING record inside
// tx. Errors propagate so the enclosing business transaction rolls back.
func (w *Writer) Append(ctx context.Context, tx pgx.Tx, topic, key string, env events.Envelope) error {
	if topic == "" {
		return fmt.Errorf("outbox append: topic is required")
	}
	if env.Source == "" {
		env.Source = w.source
	}
	env = env.Normalize()
	if err := env.Validate(); err != nil {
		return fmt.Errorf("outbox append: %w", err)
	}

	payload, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("outbox append: serialize envelope: %w", err)
	}

	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	rec := &Record{
		Topic:       topic,
		Key:         key,
		EventID:     env.EventID,
		EventType:   env.EventType,
		Payload:     payload,
		OccurredAt:  env.OccurredAt,
		Traceparent: traceparent,
		Tracestate:  tracestate,
	}
	if err := w.store.Save(ctx, tx, rec); err != nil {
		return fmt.Errorf("outbox append: %w", err)
	}
	return nil
}
