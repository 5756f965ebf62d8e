package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shelfmark/shelfmark/libs/config"
	"github.com/shelfmark/shelfmark/libs/db"
	"github.com/shelfmark/shelfmark/libs/httpx"
	otelx "github.com/shelfmark/shelfmark/libs/otel"
	"github.com/shelfmark/shelfmark/libs/outbox"
	"github.com/shelfmark/shelfmark/libs/redisx"
	"github.com/shelfmark/shelfmark/libs/runtime"
	"github.com/shelfmark/shelfmark/services/shelf-service/internal/handlers"
	"github.com/shelfmark/shelfmark/services/shelf-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "shelf-service")
	port, err := config.Port("PORT", "8092")
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

	repo := storage.NewRepository(pool)
	writer := outbox.NewWriter(outbox.NewRepository(pool), service)
	h := handlers.NewShelfHandler(repo, writer, logger, config.String("SHELF_EVENTS_TOPIC", "shelf-events"))

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
	}

	// The rate limiter is shared across instances; skip it when Redis is not
	// configured (local development).
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
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

		limiter := httpx.NewRedisRateLimiter(rdb,
			config.Int("RATE_LIMIT", 120),
			config.Duration("RATE_LIMIT_WINDOW", time.Minute),
			"shelf:rl",
		)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.HandleFunc("/api/v1/shelf/bookmarks", h.AddBookmark)
	mux.HandleFunc("/api/v1/shelf/wishlist", h.AddWishlistItem)

	handler := httpx.Chain(mux, middlewares...)
	handler = otelhttp.NewHandler(handler, "shelf")
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
