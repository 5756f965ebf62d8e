package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shelfmark/shelfmark/libs/config"
	"github.com/shelfmark/shelfmark/libs/db"
	"github.com/shelfmark/shelfmark/libs/httpx"
	"github.com/shelfmark/shelfmark/libs/kafkax"
	otelx "github.com/shelfmark/shelfmark/libs/otel"
	"github.com/shelfmark/shelfmark/libs/outbox"
	"github.com/shelfmark/shelfmark/libs/redisx"
	"github.com/shelfmark/shelfmark/libs/runtime"
	"github.com/shelfmark/shelfmark/services/relay-service/internal/bus"
	"github.com/shelfmark/shelfmark/services/relay-service/internal/cluster"
	"github.com/shelfmark/shelfmark/services/relay-service/internal/dispatch"
	"github.com/shelfmark/shelfmark/services/relay-service/internal/retention"
)

func main() {
	service := config.String("SERVICE_NAME", "relay-service")
	port, err := config.Port("PORT", "8091")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	redisAddr, err := config.RequiredString("REDIS_ADDR")
	if err != nil {
		panic(err)
	}
	rdb, err := redisx.Open(ctx, redisx.Config{
		Addr:     redisAddr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	defer func() { _ = rdb.Close() }()

	kafkaBrokers, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	publisher := bus.NewKafka(kafkax.SplitBrokers(kafkaBrokers))
	defer func() { _ = publisher.Close() }()

	repo := outbox.NewRepository(pool)
	locker := cluster.NewRedisLock(rdb)

	dispatcher := dispatch.New(repo, publisher, locker, logger, dispatch.Config{
		BatchSize:    config.Int("OUTBOX_BATCH_SIZE", 50),
		MaxRetries:   config.Int("OUTBOX_MAX_RETRIES", 5),
		LockName:     config.String("OUTBOX_LOCK_NAME", "shelfmark:outbox:dispatch"),
		LockLease:    config.Duration("OUTBOX_LOCK_LEASE", 30*time.Second),
		PollInterval: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
	})
	go dispatcher.Run(ctx)

	if config.Bool("OUTBOX_RETENTION_ENABLED", false) {
		janitor := retention.NewJanitor(repo, logger, retention.Config{
			Interval: config.Duration("OUTBOX_RETENTION_INTERVAL", time.Hour),
			SentTTL:  config.Duration("OUTBOX_RETENTION_SENT_TTL", 7*24*time.Hour),
			DeadTTL:  config.Duration("OUTBOX_RETENTION_DEAD_TTL", 30*24*time.Hour),
		})
		go janitor.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
	)
	mux.HandleFunc("/api/v1/outbox/stats", statsHandler(repo, logger))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

type statsCounter interface {
	CountByStatus(ctx context.Context) (map[outbox.Status]int64, error)
}

// statsHandler reports record counts per status so operators can alert on
// dead-letter growth.
func statsHandler(repo statsCounter, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		counts, err := repo.CountByStatus(r.Context())
		if err != nil {
			logger.Error("outbox stats query failed", "err", err)
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		resp := map[string]int64{
			string(outbox.StatusPending): counts[outbox.StatusPending],
			string(outbox.StatusSent):    counts[outbox.StatusSent],
			string(outbox.StatusDead):    counts[outbox.StatusDead],
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
