// Package events defines the envelope carried from producers to consumers
// across the Shelfmark platform. Consumers deduplicate on EventID (delivery
// is at-least-once) and branch on SchemaVersion for payload shape.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Envelope is an immutable description of a single business occurrence,
// e.g. a user bookmarking a chapter or adding a book to their wishlist.
type Envelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	ActorID       string            `json:"actor_id,omitempty"`
	TargetType    string            `json:"target_type,omitempty"`
	TargetID      string            `json:"target_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Source        string            `json:"source,omitempty"`
	SchemaVersion int               `json:"schema_version"`
}

var (
	ErrMissingEventType = errors.New("event type is required")
	ErrBadSchemaVersion = errors.New("schema version must be >= 1")
)

// Normalize fills generated defaults: EventID when the producer did not
// supply one, OccurredAt when zero, SchemaVersion when unset.
func (e Envelope) Normalize() Envelope {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.SchemaVersion == 0 {
		e.SchemaVersion = 1
	}
	return e
}

func (e Envelope) Validate() error {
	if e.EventType == "" {
		return ErrMissingEventType
	}
	if e.SchemaVersion < 1 {
		return ErrBadSchemaVersion
	}
	return nil
}

// Marshal serializes the envelope to its wire form.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a wire-form envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
