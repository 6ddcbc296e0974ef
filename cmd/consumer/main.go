// Binary consumer drains the cab-locations Kafka topic and keeps the
// Postgres fleet record and the Redis geo index current. It scales
// horizontally via the consumer group.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/config"
	"github.com/example/ride-pooling/internal/geo"
	"github.com/example/ride-pooling/internal/ingest"
	"github.com/example/ride-pooling/internal/logging"
	"github.com/example/ride-pooling/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("consumer exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewLogger("consumer", cfg.LogLevel)
	slog.SetDefault(logger)

	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS must be set for the consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Postgres.DSN(), cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	var index ingest.IndexWriter
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, geo index updates disabled", "error", err)
	} else {
		index = geo.NewCabIndex(rdb, cfg.Redis.GeoKey)
	}

	store := storage.NewStore(db, storage.Options{
		MaxCandidates:     cfg.Booking.MaxCandidates,
		DefaultToleranceM: cfg.Booking.DefaultToleranceM,
		LockTimeout:       cfg.Booking.LockTimeout,
		StatementTimeout:  cfg.Booking.StatementTimeout,
	})

	consumer := ingest.NewLocationConsumer(
		cfg.Kafka.Brokers, cfg.Kafka.LocationsTopic, cfg.Kafka.Group,
		store, index, logger,
	)
	defer consumer.Close()

	// Liveness and metrics on a side port.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := storage.HealthCheck(r.Context(), db); err != nil {
			http.Error(w, "db unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	side := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port+1), Handler: mux}
	go func() {
		if err := side.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("side server failed", "error", err)
		}
	}()
	defer side.Close()

	logger.Info("consumer running",
		"topic", cfg.Kafka.LocationsTopic, "group", cfg.Kafka.Group)
	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	logger.Info("consumer stopped")
	return nil
}
