// Package retention prunes terminal outbox rows after their forensic value
// has lapsed. Dispatch never deletes; this janitor is the only remover.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfmark/shelfmark/libs/outbox"
)

type Purger interface {
	Purge(ctx context.Context, status outbox.Status, olderThan time.Time) (int64, error)
}

type Config struct {
	Interval time.Duration
	SentTTL  time.Duration
	DeadTTL  time.Duration
}

type Janitor struct {
	store  Purger
	logger *slog.Logger
	cfg    Config
}

func NewJanitor(store Purger, logger *slog.Logger, cfg Config) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.SentTTL <= 0 {
		cfg.SentTTL = 7 * 24 * time.Hour
	}
	// DEAD rows are kept longer: they are the evidence an operator replays
	// from.
	if cfg.DeadTTL <= 0 {
		cfg.DeadTTL = 30 * 24 * time.Hour
	}
	return &Janitor{store: store, logger: logger, cfg: cfg}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *Janitor) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	j.purge(ctx, outbox.StatusSent, now.Add(-j.cfg.SentTTL))
	j.purge(ctx, outbox.StatusDead, now.Add(-j.cfg.DeadTTL))
}

func (j *Janitor) purge(ctx context.Context, status outbox.Status, cutoff time.Time) {
	n, err := j.store.Purge(ctx, status, cutoff)
	if err != nil {
		j.logger.Error("outbox purge failed", "status", status, "err", err)
		return
	}
	if n > 0 {
		j.logger.Info("outbox records purged", "status", status, "count", n, "older_than", cutoff)
	}
}
