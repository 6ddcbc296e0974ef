package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

// LocationStore applies a cab position to the durable record.
type LocationStore interface {
	UpdateCabLocation(ctx context.Context, cabID int64, loc models.Location) error
}

// IndexWriter mirrors the position into the live geo index.
type IndexWriter interface {
	Upsert(ctx context.Context, cabID int64, loc models.Location, status models.CabStatus) error
	Remove(ctx context.Context, cabID int64) error
}

// messageReader is the slice of kafka.Reader the consumer uses; faked in
// tests.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LocationConsumer drains the cab-locations topic and applies each update
// to Postgres and the Redis geo index. Updates are committed at-least-once;
// applying the same position twice is harmless.
type LocationConsumer struct {
	reader messageReader
	store  LocationStore
	index  IndexWriter // optional
	logger *slog.Logger

	// MaxRetries bounds re-application of one message before it is dropped
	// so a poison message cannot wedge the partition.
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewLocationConsumer builds a consumer over a Kafka group reader.
func NewLocationConsumer(brokers []string, topic, group string, store LocationStore, index IndexWriter, logger *slog.Logger) *LocationConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationConsumer{
		reader:       r,
		store:        store,
		index:        index,
		logger:       logger,
		MaxRetries:   3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Run consumes until ctx is cancelled.
func (c *LocationConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Warn("commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *LocationConsumer) handle(ctx context.Context, msg kafka.Message) {
	var upd models.CabLocationUpdate
	if err := json.Unmarshal(msg.Value, &upd); err != nil {
		c.logger.Warn("malformed location update, skipping",
			"offset", msg.Offset, "error", err)
		observability.LocationsDropped.Inc()
		return
	}
	if upd.CabID <= 0 {
		c.logger.Warn("location update without cab id, skipping", "offset", msg.Offset)
		observability.LocationsDropped.Inc()
		return
	}

	retries := c.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if err = c.apply(ctx, upd); err == nil {
			observability.LocationsApplied.Inc()
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Debug("location apply failed, retrying",
			"cab_id", upd.CabID, "attempt", attempt, "error", err)
		select {
		case <-time.After(c.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return
		}
	}
	c.logger.Error("location update dropped", "cab_id", upd.CabID, "error", err)
	observability.LocationsDropped.Inc()
}

func (c *LocationConsumer) apply(ctx context.Context, upd models.CabLocationUpdate) error {
	if err := c.store.UpdateCabLocation(ctx, upd.CabID, upd.Location); err != nil {
		return err
	}
	if c.index == nil {
		return nil
	}
	if upd.Status == models.CabOffline {
		return c.index.Remove(ctx, upd.CabID)
	}
	status := upd.Status
	if status == "" {
		status = models.CabAvailable
	}
	return c.index.Upsert(ctx, upd.CabID, upd.Location, status)
}

func (c *LocationConsumer) Close() error { return c.reader.Close() }
