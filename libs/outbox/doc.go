// Package outbox implements the transactional outbox used by Shelfmark
// services to publish events without a dual write: the event record is
// inserted in the same database transaction as the business change, and a
// separate relay drains pending records onto the bus.
//
// Expected schema:
//
//	CREATE TABLE outbox_records (
//	    id           BIGSERIAL PRIMARY KEY,
//	    topic        TEXT NOT NULL,
//	    key          TEXT NOT NULL,
//	    event_id     TEXT NOT NULL,
//	    event_type   TEXT NOT NULL,
//	    payload      JSONB NOT NULL,
//	    occurred_at  TIMESTAMPTZ NOT NULL,
//	    status       TEXT NOT NULL DEFAULT 'PENDING',
//	    retry_count  INT NOT NULL DEFAULT 0,
//	    last_error   TEXT NOT NULL DEFAULT '',
//	    traceparent  TEXT NOT NULL DEFAULT '',
//	    tracestate   TEXT NOT NULL DEFAULT '',
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX idx_outbox_pending ON outbox_records (occurred_at, id)
//	    WHERE status = 'PENDING';
//	CREATE INDEX idx_outbox_purge ON outbox_records (status, occurred_at);
//
// Dispatch is serialized by a cluster-wide lease lock, not by row locking, so
// fetch queries stay plain. Delivery is at-least-once; consumers deduplicate
// on event_id.
package outbox
