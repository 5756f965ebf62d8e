package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shelfmark/shelfmark/libs/db"
)

// Repository is the pgx-backed outbox store. Inserts participate in the
// caller's transaction; status transitions run on the pool because only the
// lock-holding relay performs them.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts rec as PENDING inside tx and fills its store-assigned fields.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, rec *Record) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO outbox_records
			(topic, key, event_id, event_type, payload, occurred_at, status, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, rec.Topic, rec.Key, rec.EventID, rec.EventType, rec.Payload, rec.OccurredAt,
		StatusPending, rec.Traceparent, rec.Tracestate,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	rec.Status = StatusPending
	return nil
}

// FetchPending returns up to limit PENDING records in dispatch order:
// occurred_at ascending, id as tiebreaker. No row locking; the cluster lock
// serializes concurrent relays.
func (r *Repository) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, topic, key, event_id, event_type, payload, occurred_at,
		       status, retry_count, last_error, traceparent, tracestate,
		       created_at, updated_at
		FROM outbox_records
		WHERE status = $1
		ORDER BY occurred_at, id
		LIMIT $2
	`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Key, &rec.EventID, &rec.EventType,
			&rec.Payload, &rec.OccurredAt, &rec.Status, &rec.RetryCount, &rec.LastError,
			&rec.Traceparent, &rec.Tracestate, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// MarkSent transitions a PENDING record to SENT. Calling it again, or on an
// already terminal record, is a no-op.
func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_records
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, StatusSent, StatusPending)
	if err != nil {
		return fmt.Errorf("mark outbox record sent: %w", err)
	}
	return nil
}

// MarkRetry keeps the record PENDING, bumps retry_count and records the
// truncated failure message.
func (r *Repository) MarkRetry(ctx context.Context, id int64, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_records
		SET retry_count = retry_count + 1, last_error = $2, updated_at = now()
		WHERE id = $1 AND status = $3
	`, id, TruncateError(errMsg), StatusPending)
	if err != nil {
		return fmt.Errorf("mark outbox record for retry: %w", err)
	}
	return nil
}

// MarkDead transitions a PENDING record to DEAD. Terminal; the record is
// excluded from all future FetchPending results.
func (r *Repository) MarkDead(ctx context.Context, id int64, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_records
		SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, StatusDead, TruncateError(errMsg), StatusPending)
	if err != nil {
		return fmt.Errorf("mark outbox record dead: %w", err)
	}
	return nil
}

// Purge bulk-deletes records of the given status older than the cutoff and
// reports how many rows went away. Retention housekeeping only.
func (r *Repository) Purge(ctx context.Context, status Status, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM outbox_records
		WHERE status = $1 AND occurred_at < $2
	`, status, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge outbox records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus is the read path for dead-letter alerting.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM outbox_records
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count outbox records: %w", err)
	}
	defer rows.Close()

	counts := map[Status]int64{}
	for rows.Next() {
		var status Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[status] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}
