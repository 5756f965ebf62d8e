package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shelfmark/shelfmark/libs/outbox"
)

type purgeCall struct {
	status outbox.Status
	cutoff time.Time
}

type fakePurger struct {
	calls []purgeCall
	err   error
}

func (f *fakePurger) Purge(_ context.Context, status outbox.Status, olderThan time.Time) (int64, error) {
	f.calls = append(f.calls, purgeCall{status: status, cutoff: olderThan})
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func TestRunOnce_PurgesBothTerminalStatuses(t *testing.T) {
	store := &fakePurger{}
	j := NewJanitor(store, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		SentTTL: 24 * time.Hour,
		DeadTTL: 72 * time.Hour,
	})

	before := time.Now().UTC()
	j.RunOnce(context.Background())

	if len(store.calls) != 2 {
		t.Fatalf("expected 2 purge calls, got %d", len(store.calls))
	}
	if store.calls[0].status != outbox.StatusSent || store.calls[1].status != outbox.StatusDead {
		t.Fatalf("unexpected statuses: %+v", store.calls)
	}
	// DEAD keeps a longer retention window than SENT.
	if !store.calls[1].cutoff.Before(store.calls[0].cutoff) {
		t.Fatalf("dead cutoff %s must precede sent cutoff %s",
			store.calls[1].cutoff, store.calls[0].cutoff)
	}
	if store.calls[0].cutoff.After(before) {
		t.Fatal("sent cutoff must be in the past")
	}
}

func TestRunOnce_PurgeErrorDoesNotStopSecondStatus(t *testing.T) {
	store := &fakePurger{err: errors.New("deadlock detected")}
	j := NewJanitor(store, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})

	j.RunOnce(context.Background())
	if len(store.calls) != 2 {
		t.Fatalf("expected both purges attempted, got %d", len(store.calls))
	}
}

func TestNewJanitor_Defaults(t *testing.T) {
	j := NewJanitor(&fakePurger{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	if j.cfg.Interval != time.Hour {
		t.Fatalf("interval default %s", j.cfg.Interval)
	}
	if j.cfg.DeadTTL <= j.cfg.SentTTL {
		t.Fatal("dead retention must exceed sent retention by default")
	}
}
