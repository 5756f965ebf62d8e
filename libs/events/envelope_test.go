package events

import (
	"errors"
	"testing"
	"time"
)

func TestNormalize_GeneratesDefaults(t *testing.T) {
	e := Envelope{EventType: "shelf.bookmark.added.v1"}.Normalize()
	if e.EventID == "" {
		t.Fatal("expected generated event id")
	}
	if e.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at default")
	}
	if e.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", e.SchemaVersion)
	}
}

func TestNormalize_KeepsProducerValues(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := Envelope{
		EventID:       "evt-1",
		EventType:     "shelf.wishlist.added.v1",
		OccurredAt:    at,
		SchemaVersion: 3,
	}.Normalize()
	if e.EventID != "evt-1" {
		t.Fatalf("event id overwritten: %s", e.EventID)
	}
	if !e.OccurredAt.Equal(at) {
		t.Fatalf("occurred_at overwritten: %s", e.OccurredAt)
	}
	if e.SchemaVersion != 3 {
		t.Fatalf("schema version overwritten: %d", e.SchemaVersion)
	}
}

func TestValidate(t *testing.T) {
	if err := (Envelope{SchemaVersion: 1}).Validate(); !errors.Is(err, ErrMissingEventType) {
		t.Fatalf("expected ErrMissingEventType, got %v", err)
	}
	if err := (Envelope{EventType: "x", SchemaVersion: 0}).Validate(); !errors.Is(err, ErrBadSchemaVersion) {
		t.Fatalf("expected ErrBadSchemaVersion, got %v", err)
	}
	if err := (Envelope{EventType: "x", SchemaVersion: 1}).Validate(); err != nil {
		t.Fatalf("expected valid envelope, got %v", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	e := Envelope{
		EventType:  "review.liked.v1",
		ActorID:    "user-9",
		TargetType: "REVIEW",
		TargetID:   "42",
		Metadata:   map[string]string{"review_title": "A room of one's own"},
		Source:     "shelf-service",
	}.Normalize()

	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID != e.EventID || got.TargetID != "42" || got.Metadata["review_title"] != "A room of one's own" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
