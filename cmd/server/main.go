// Binary server runs the ride pooling HTTP API: request intake, the Match
// dry run, atomic Book, trip management, fare quotes and driver WebSockets.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/config"
	"github.com/example/ride-pooling/internal/dispatch"
	"github.com/example/ride-pooling/internal/geo"
	httpapi "github.com/example/ride-pooling/internal/http"
	"github.com/example/ride-pooling/internal/ingest"
	"github.com/example/ride-pooling/internal/logging"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/pricing"
	"github.com/example/ride-pooling/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Postgres.DSN(), cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.RunMigrations {
		if err := runMigrations(ctx, db, "migrations"); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		logger.Info("migrations applied")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Redis only serves caches and the live cab index; the booking path
		// works without it.
		logger.Warn("redis unreachable, continuing degraded", "error", err)
	}

	storeOpts := storage.Options{
		MaxCandidates:     cfg.Booking.MaxCandidates,
		DefaultToleranceM: cfg.Booking.DefaultToleranceM,
		LockTimeout:       cfg.Booking.LockTimeout,
		StatementTimeout:  cfg.Booking.StatementTimeout,
		AirportRadiusM:    cfg.Booking.AirportRadiusM,
	}
	if cfg.Booking.AirportLat != 0 || cfg.Booking.AirportLon != 0 {
		storeOpts.Airport = &models.Location{Lat: cfg.Booking.AirportLat, Lon: cfg.Booking.AirportLon}
	}
	store := storage.NewStore(db, storeOpts)

	priceSvc := pricing.NewService(pricing.Config{
		BaseFareCents:   cfg.Pricing.BaseFareCents,
		PerKmRateCents:  cfg.Pricing.PerKmRateCents,
		PerMinRateCents: cfg.Pricing.PerMinRateCents,
		MinFareCents:    cfg.Pricing.MinFareCents,
		SurgeRadiusM:    cfg.Pricing.SurgeRadiusM,
		CacheTTL:        cfg.Pricing.CacheTTL,
	}, store, rdb, logger)

	wsReg := dispatch.NewRegistry()

	var locations, bookings *ingest.KafkaProducer
	if len(cfg.Kafka.Brokers) > 0 {
		locations = ingest.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.LocationsTopic)
		defer locations.Close()
		bookings = ingest.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.BookingsTopic)
		defer bookings.Close()
	} else {
		logger.Info("no kafka brokers configured, event publishing disabled")
	}

	coord := &booking.Coordinator{
		Store:          store,
		Quote:          priceSvc,
		Dispatch:       wsReg,
		Logger:         logger,
		MaxAttempts:    cfg.Booking.MaxAttempts,
		AttemptTimeout: cfg.Booking.AttemptTimeout,
		RetryBackoff:   cfg.Booking.RetryBackoff,
	}
	if bookings != nil {
		coord.Events = bookings
	}

	api := httpapi.NewServer(httpapi.Deps{
		Engine:   coord,
		Store:    store,
		Pricing:  priceSvc,
		CabIndex: geo.NewCabIndex(rdb, cfg.Redis.GeoKey),
		Kafka:    locations,
		WSReg:    wsReg,
		Logger:   logger,
		DB:       db,
		Redis:    rdb,
	})

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// runMigrations applies the .sql files under dir in lexical order. The
// files are written to be idempotent (CREATE TABLE IF NOT EXISTS etc), so
// re-running on boot is safe.
func runMigrations(ctx context.Context, db *sql.DB, dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if _, err := db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply %s: %w", p, err)
		}
	}
	return nil
}
