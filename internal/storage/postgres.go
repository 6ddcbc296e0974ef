// Package storage is the Postgres/PostGIS persistence layer. The database
// is the single source of truth and the sole synchronization point for the
// booking hot path: correctness holds across process instances because all
// capacity accounting happens under row locks in one transaction.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-pooling/internal/models"
)

// Open connects a pooled database handle sized for concurrent bookings.
func Open(ctx context.Context, dsn string, maxConns, idleConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if idleConns > 0 {
		db.SetMaxIdleConns(idleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

// HealthCheck pings the database and returns nil if healthy.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(pingCtx)
}

// Options tunes the store's candidate search and transaction budgets.
// Airport, when set, anchors request validation: a to_airport request must
// end near it and a from_airport request must start near it.
type Options struct {
	MaxCandidates     int
	DefaultToleranceM int
	LockTimeout       time.Duration
	StatementTimeout  time.Duration
	Airport           *models.Location
	AirportRadiusM    float64
}

func (o Options) withDefaults() Options {
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 20
	}
	if o.DefaultToleranceM <= 0 {
		o.DefaultToleranceM = 2000
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 2 * time.Second
	}
	if o.StatementTimeout <= 0 {
		o.StatementTimeout = 3 * time.Second
	}
	if o.AirportRadiusM <= 0 {
		o.AirportRadiusM = 8000
	}
	return o
}

// Store provides all persistence operations for the booking engine.
type Store struct {
	db   *sql.DB
	opts Options
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, opts Options) *Store {
	return &Store{db: db, opts: opts.withDefaults()}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// querier is satisfied by both *sql.DB and *sql.Tx, so the candidate query
// can run standalone (Match dry run) or inside the booking transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
