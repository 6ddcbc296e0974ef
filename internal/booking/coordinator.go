// Package booking contains the transaction coordinator: the component that
// turns "pending request + candidate trips" into exactly one winner (or a
// clean rejection) under arbitrary concurrency.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

// Store is the transactional boundary the coordinator drives. Implemented
// by storage.Store against Postgres; faked in tests.
type Store interface {
	// GetRequest loads a ride request. ErrNotFound when absent.
	GetRequest(ctx context.Context, id int64) (*models.RideRequest, error)

	// FindCandidates returns qualifying trips for the request, nearest
	// first, ties broken by lower trip id. Read-only against committed
	// state; used by the Match dry run.
	FindCandidates(ctx context.Context, req *models.RideRequest) ([]models.Candidate, error)

	// Book runs the whole booking attempt in one atomic transaction:
	// request row locked, candidate trips locked in ascending id order,
	// capacity re-derived under lock, first fit reserved. fareCents is
	// the share added to the winning trip's fare aggregate.
	Book(ctx context.Context, requestID int64, fareCents int) (*models.BookingResult, error)
}

// Quoter supplies the fare share a booking contributes to the trip total.
type Quoter interface {
	QuoteShareCents(ctx context.Context, origin, destination models.Location) (int, error)
}

// Dispatcher delivers the committed assignment to the cab's driver.
type Dispatcher interface {
	Assign(driverID int64, res models.BookingResult) error
}

// EventPublisher emits committed bookings to the event stream.
type EventPublisher interface {
	PublishBooking(ctx context.Context, res models.BookingResult) error
}

// Coordinator wraps the store's booking transaction with fare quotation,
// bounded retry, timeout mapping and post-commit fan-out.
type Coordinator struct {
	Store    Store
	Quote    Quoter         // optional; zero fare share when nil
	Dispatch Dispatcher     // optional
	Events   EventPublisher // optional
	Logger   *slog.Logger

	// MaxAttempts bounds retries of the whole transaction on transient
	// conflicts. AttemptTimeout bounds each attempt including lock waits.
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryBackoff   time.Duration
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Book executes the booking algorithm for requestID. Exactly one of the
// concurrent callers racing for the last seat wins; the rest observe
// ErrNoCapacity or AlreadyProcessedError.
func (c *Coordinator) Book(ctx context.Context, requestID int64) (*models.BookingResult, error) {
	start := time.Now()
	res, err := c.book(ctx, requestID)
	observability.BookingLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		observability.BookingsWon.Inc()
	case errors.Is(err, ErrNoCapacity):
		observability.BookingsRejected.WithLabelValues("no_capacity").Inc()
	case isAlreadyProcessed(err):
		observability.BookingsRejected.WithLabelValues("already_processed").Inc()
	case errors.Is(err, ErrNotFound):
		observability.BookingsRejected.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrBookingTimeout), errors.Is(err, ErrLockTimeout):
		observability.BookingsRejected.WithLabelValues("timeout").Inc()
	default:
		observability.BookingsRejected.WithLabelValues("failed").Inc()
	}
	return res, err
}

func (c *Coordinator) book(ctx context.Context, requestID int64) (*models.BookingResult, error) {
	req, err := c.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	// Cheap pre-check against the transition table; the transaction
	// re-validates under the row lock.
	if !models.CanTransitionRequest(req.Status, models.RequestMatched) {
		return nil, &AlreadyProcessedError{RequestID: req.ID, Status: req.Status, TripID: req.TripID}
	}

	fareCents := 0
	if c.Quote != nil {
		fareCents, err = c.Quote.QuoteShareCents(ctx, req.Origin, req.Destination)
		if err != nil {
			// A fare quote failure must not block a seat: fall back to zero
			// and let reconciliation settle the aggregate.
			c.logger().Warn("fare quote failed, booking with zero share",
				"request_id", requestID, "error", err)
			fareCents = 0
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := c.bookOnce(ctx, requestID, fareCents)
		if err == nil {
			c.afterCommit(ctx, res)
			return res, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		// A timeout is only worth retrying while the caller is still
		// waiting; an expired parent context gets the outcome as is.
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		observability.BookingRetries.Inc()
		c.logger().Debug("booking attempt conflicted, retrying",
			"request_id", requestID, "attempt", attempt, "error", err)

		if attempt < attempts {
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return nil, ErrBookingTimeout
			}
		}
	}

	if errors.Is(lastErr, ErrLockTimeout) || errors.Is(lastErr, ErrBookingTimeout) {
		return nil, lastErr
	}
	return nil, errors.Join(ErrBookingFailed, lastErr)
}

func (c *Coordinator) bookOnce(ctx context.Context, requestID int64, fareCents int) (*models.BookingResult, error) {
	attemptCtx := ctx
	if c.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.AttemptTimeout)
		defer cancel()
	}
	res, err := c.Store.Book(attemptCtx, requestID, fareCents)
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return nil, ErrBookingTimeout
	}
	return res, err
}

// afterCommit fans the committed result out to the driver channel and the
// event stream. Both are best-effort: the commit already stands.
func (c *Coordinator) afterCommit(ctx context.Context, res *models.BookingResult) {
	if c.Dispatch != nil {
		if err := c.Dispatch.Assign(res.DriverID, *res); err != nil {
			c.logger().Debug("driver dispatch skipped", "driver_id", res.DriverID, "error", err)
		}
	}
	if c.Events != nil {
		if err := c.Events.PublishBooking(ctx, *res); err != nil {
			c.logger().Warn("booking event publish failed",
				"request_id", res.RequestID, "error", err)
		}
	}
}

// backoff returns a jittered delay growing with the attempt number, so
// colliding retriers spread out instead of re-colliding in lockstep.
func (c *Coordinator) backoff(attempt int) time.Duration {
	base := c.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	d := base * time.Duration(attempt)
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

// Match is the read-only dry run: reports whether a compatible trip exists
// right now without reserving anything.
func (c *Coordinator) Match(ctx context.Context, requestID int64) (*models.MatchReport, error) {
	req, err := c.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionRequest(req.Status, models.RequestMatched) {
		return nil, &AlreadyProcessedError{RequestID: req.ID, Status: req.Status, TripID: req.TripID}
	}

	cands, err := c.Store.FindCandidates(ctx, req)
	if err != nil {
		return nil, err
	}
	observability.CandidatesEvaluated.Observe(float64(len(cands)))

	report := &models.MatchReport{RequestID: req.ID, Candidates: len(cands)}
	if best, ok := matcher.Pick(req, cands); ok {
		report.Matchable = true
		report.TripID = best.TripID
		report.CabID = best.CabID
		report.DistanceMeters = best.DistanceMeters
	}
	return report, nil
}

func isAlreadyProcessed(err error) bool {
	var ap *AlreadyProcessedError
	return errors.As(err, &ap)
}
