// Package dispatch drains the outbox onto the bus. One cycle runs under the
// cluster lock: fetch pending records in order, publish each one, persist the
// outcome. Records are processed sequentially so a batch keeps its
// occurred_at order and one slow message cannot fan out.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shelfmark/shelfmark/libs/outbox"
)

// Store is the slice of the outbox store the dispatcher mutates.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]outbox.Record, error)
	MarkSent(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, errMsg string) error
	MarkDead(ctx context.Context, id int64, errMsg string) error
}

// Publisher delivers one record to the bus and blocks until the broker acks.
type Publisher interface {
	Send(ctx context.Context, rec outbox.Record) error
}

// Locker provides cluster-wide mutual exclusion. TryAcquire returning
// (false, nil) means another instance holds the lock.
type Locker interface {
	TryAcquire(ctx context.Context, name string, lease time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

type Config struct {
	BatchSize    int
	MaxRetries   int
	LockName     string
	LockLease    time.Duration
	PollInterval time.Duration
}

type Dispatcher struct {
	store  Store
	pub    Publisher
	locker Locker
	logger *slog.Logger
	cfg    Config
}

func New(store Store, pub Publisher, locker Locker, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.LockName == "" {
		cfg.LockName = "shelfmark:outbox:dispatch"
	}
	if cfg.LockLease <= 0 {
		// Must outlast the worst-case cycle so the lease is not stolen
		// mid-batch.
		cfg.LockLease = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Dispatcher{
		store:  store,
		pub:    pub,
		locker: locker,
		logger: logger,
		cfg:    cfg,
	}
}

// Run invokes RunCycle on a fixed interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunCycle(ctx); err != nil {
				d.logger.Error("outbox dispatch cycle failed", "err", err)
			}
		}
	}
}

// RunCycle performs one drain cycle. When the lock is held elsewhere it
// returns nil without touching the store or the bus. Store mutation failures
// abort the remaining batch; publish failures only mark the affected record
// for retry.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	acquired, err := d.locker.TryAcquire(ctx, d.cfg.LockName, d.cfg.LockLease)
	if err != nil {
		return fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !acquired {
		return nil
	}
	defer func() {
		// Release must survive ctx cancellation mid-cycle.
		releaseCtx := context.WithoutCancel(ctx)
		if err := d.locker.Release(releaseCtx, d.cfg.LockName); err != nil {
			d.logger.Error("release dispatch lock failed", "lock", d.cfg.LockName, "err", err)
		}
	}()

	records, err := d.store.FetchPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending: %w", err)
	}

	for _, rec := range records {
		if rec.RetryCount >= d.cfg.MaxRetries {
			// Ceiling check before publish: an exhausted record never
			// costs another bus call.
			msg := fmt.Sprintf("Max retry count exceeded: %d", rec.RetryCount)
			if err := d.store.MarkDead(ctx, rec.ID, msg); err != nil {
				return fmt.Errorf("mark dead id=%d: %w", rec.ID, err)
			}
			d.logger.Warn("outbox record dead-lettered",
				"id", rec.ID, "topic", rec.Topic, "event_type", rec.EventType,
				"retry_count", rec.RetryCount)
			continue
		}

		if sendErr := d.pub.Send(ctx, rec); sendErr != nil {
			d.logger.Warn("outbox publish failed",
				"id", rec.ID, "topic", rec.Topic, "event_type", rec.EventType,
				"retry_count", rec.RetryCount, "err", sendErr)
			if err := d.store.MarkRetry(ctx, rec.ID, sendErr.Error()); err != nil {
				return fmt.Errorf("mark retry id=%d: %w", rec.ID, err)
			}
			continue
		}

		if err := d.store.MarkSent(ctx, rec.ID); err != nil {
			return fmt.Errorf("mark sent id=%d: %w", rec.ID, err)
		}
	}
	return nil
}
