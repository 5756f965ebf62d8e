package outbox

import (
	"time"
	"unicode/utf8"
)

// Status is the delivery state of a record. StatusSent and StatusDead are
// terminal; a record never leaves them.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusDead    Status = "DEAD"
)

// MaxErrorLen bounds last_error so a huge broker stack trace cannot bloat
// the table.
const MaxErrorLen = 500

// Record is a persisted outbox entry. ID is assigned by the store and doubles
// as a stable dispatch tiebreaker for records sharing an occurred_at.
type Record struct {
	ID          int64
	Topic       string
	Key         string
	EventID     string
	EventType   string
	Payload     []byte
	OccurredAt  time.Time
	Status      Status
	RetryCount  int
	LastError   string
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TruncateError clamps an error message for storage in last_error. The cut
// lands on a rune boundary; a multibyte broker error must not become invalid
// UTF-8 that Postgres TEXT would reject.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLen {
		return msg
	}
	cut := msg[:MaxErrorLen]
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size > 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut
}
