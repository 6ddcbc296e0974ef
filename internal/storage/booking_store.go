package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/matcher"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
)

// candidateSQL is the proximity finder query: trips in the request's
// direction whose cab is bookable and within the tolerance radius of the
// request origin, with the committed load aggregated per trip. Ordered by
// ascending distance, then ascending trip id, so the ranking is
// deterministic across runs. Uses the GIST index on cabs(current_location).
const candidateSQL = `
	SELECT t.id, t.cab_id, c.driver_id, t.direction,
	       c.seat_capacity, c.luggage_capacity,
	       COALESCE(SUM(rr.seats_needed), 0)::int  AS seats_used,
	       COALESCE(SUM(rr.luggage_count), 0)::int AS luggage_used,
	       ST_Distance(
	           c.current_location::geography,
	           ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
	       ) AS distance_m
	FROM trips t
	JOIN cabs c ON c.id = t.cab_id
	LEFT JOIN ride_requests rr ON rr.trip_id = t.id AND rr.status = 'matched'
	WHERE t.status IN ('planned', 'en_route')
	  AND t.direction = $3
	  AND c.status IN ('available', 'en_route')
	  AND c.current_location IS NOT NULL
	  AND ST_DWithin(
	        c.current_location::geography,
	        ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
	        $4
	      )
	GROUP BY t.id, t.cab_id, c.driver_id, t.direction,
	         c.seat_capacity, c.luggage_capacity, c.current_location
	ORDER BY distance_m ASC, t.id ASC
	LIMIT $5
`

// FindCandidates runs the proximity query against committed state. Used by
// the Match dry run; the booking transaction re-runs it on its own
// connection so the candidates it locks were read under the same snapshot.
func (s *Store) FindCandidates(ctx context.Context, req *models.RideRequest) ([]models.Candidate, error) {
	return s.findCandidates(ctx, s.db, req)
}

func (s *Store) findCandidates(ctx context.Context, q querier, req *models.RideRequest) ([]models.Candidate, error) {
	radius := req.ToleranceMeters
	if radius <= 0 {
		radius = s.opts.DefaultToleranceM
	}

	rows, err := q.QueryContext(ctx, candidateSQL,
		req.Origin.Lon, req.Origin.Lat, // ST_MakePoint takes (lon, lat)
		req.Direction, radius, s.opts.MaxCandidates,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("find candidates: %w", err))
	}
	defer rows.Close()

	var cands []models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(
			&c.TripID, &c.CabID, &c.DriverID, &c.Direction,
			&c.SeatCapacity, &c.LuggageCapacity,
			&c.SeatsUsed, &c.LuggageUsed, &c.DistanceMeters,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		cands = append(cands, c)
	}
	return cands, rows.Err()
}

// Book performs the complete booking in a single transaction.
//
// Concurrency strategy: pessimistic row locks under a fixed acquisition
// order. The request row is locked first; candidate trip rows are then
// locked one at a time in ascending trip id, regardless of distance
// ranking, so transactions contending over overlapping candidate sets
// serialize instead of deadlocking. Capacity is re-derived from committed
// matched requests while the trip lock is held, never read in one
// transaction and reserved in another.
//
// SET LOCAL lock_timeout / statement_timeout bound the attempt so a stuck
// competitor cannot stall callers indefinitely; expiry surfaces as
// booking.ErrLockTimeout / booking.ErrBookingTimeout via classify.
func (s *Store) Book(ctx context.Context, requestID int64, fareCents int) (*models.BookingResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, classify(fmt.Errorf("booking: begin tx: %w", err))
	}
	defer tx.Rollback() // no-op once committed

	// SET does not take bind parameters; durations are trusted config.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.opts.LockTimeout.Milliseconds())); err != nil {
		return nil, classify(fmt.Errorf("booking: set lock_timeout: %w", err))
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.opts.StatementTimeout.Milliseconds())); err != nil {
		return nil, classify(fmt.Errorf("booking: set statement_timeout: %w", err))
	}

	// Step 1: lock the request row. Whoever holds this lock owns the
	// pending→matched transition for this request.
	req, err := s.lockRequest(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionRequest(req.Status, models.RequestMatched) {
		return nil, s.alreadyProcessed(ctx, tx, req)
	}

	// Step 2: candidate search inside the transaction.
	cands, err := s.findCandidates(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	observability.CandidatesEvaluated.Observe(float64(len(cands)))
	if len(cands) == 0 {
		return nil, booking.ErrNoCapacity
	}

	// Step 3: lock candidate trips in ascending id order and re-read
	// their state under the lock.
	locked := make(map[int64]lockedTrip, len(cands))
	for _, tripID := range matcher.LockOrder(cands) {
		lt, err := s.lockTrip(ctx, tx, tripID)
		if err != nil {
			if errors.Is(err, booking.ErrNotFound) {
				continue // trip vanished between query and lock
			}
			return nil, err
		}
		locked[tripID] = lt
	}

	// Step 4: nearest-first over the locked set; first fit wins.
	for _, cand := range matcher.Order(cands) {
		lt, ok := locked[cand.TripID]
		if !ok || !lt.tripStatus.Active() || !lt.cabStatus.Bookable() {
			continue
		}
		fresh := cand
		fresh.SeatCapacity = lt.seatCapacity
		fresh.LuggageCapacity = lt.luggageCapacity
		fresh.SeatsUsed = lt.seatsUsed
		fresh.LuggageUsed = lt.luggageUsed
		if !fresh.CanAccept(req.SeatsNeeded, req.LuggageCount) {
			continue
		}

		res, err := s.reserve(ctx, tx, req, fresh, lt, fareCents)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, classify(fmt.Errorf("booking: commit: %w", err))
		}
		return res, nil
	}

	return nil, booking.ErrNoCapacity
}

type lockedTrip struct {
	tripStatus      models.TripStatus
	cabStatus       models.CabStatus
	driverID        int64
	cabID           int64
	seatCapacity    int
	luggageCapacity int
	seatsUsed       int
	luggageUsed     int
}

func (s *Store) lockRequest(ctx context.Context, tx *sql.Tx, id int64) (*models.RideRequest, error) {
	req := &models.RideRequest{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id,
		       ST_Y(origin), ST_X(origin),
		       ST_Y(destination), ST_X(destination),
		       direction, seats_needed, luggage_count, tolerance_meters,
		       status, trip_id
		FROM ride_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&req.ID, &req.UserID,
		&req.Origin.Lat, &req.Origin.Lon,
		&req.Destination.Lat, &req.Destination.Lon,
		&req.Direction, &req.SeatsNeeded, &req.LuggageCount, &req.ToleranceMeters,
		&req.Status, &req.TripID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %d: %w", id, booking.ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("booking: lock request %d: %w", id, err))
	}
	return req, nil
}

// lockTrip takes the exclusive row lock on one trip and re-derives its
// committed load while the lock is held. FOR UPDATE OF t keeps the cab row
// unlocked; cab status is a filter, not contended state.
func (s *Store) lockTrip(ctx context.Context, tx *sql.Tx, tripID int64) (lockedTrip, error) {
	var lt lockedTrip
	err := tx.QueryRowContext(ctx, `
		SELECT t.status, t.cab_id, c.status, c.driver_id,
		       c.seat_capacity, c.luggage_capacity
		FROM trips t
		JOIN cabs c ON c.id = t.cab_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`, tripID).Scan(
		&lt.tripStatus, &lt.cabID, &lt.cabStatus, &lt.driverID,
		&lt.seatCapacity, &lt.luggageCapacity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return lt, fmt.Errorf("trip %d: %w", tripID, booking.ErrNotFound)
	}
	if err != nil {
		return lt, classify(fmt.Errorf("booking: lock trip %d: %w", tripID, err))
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(seats_needed), 0)::int,
		       COALESCE(SUM(luggage_count), 0)::int
		FROM ride_requests
		WHERE trip_id = $1 AND status = 'matched'
	`, tripID).Scan(&lt.seatsUsed, &lt.luggageUsed)
	if err != nil {
		return lt, classify(fmt.Errorf("booking: load trip %d: %w", tripID, err))
	}
	return lt, nil
}

// reserve commits the request to the chosen trip: status transition, trip
// aggregates, cab transition, plus the post-update integrity guard.
func (s *Store) reserve(ctx context.Context, tx *sql.Tx, req *models.RideRequest, cand models.Candidate, lt lockedTrip, fareCents int) (*models.BookingResult, error) {
	tag, err := tx.ExecContext(ctx, `
		UPDATE ride_requests
		SET status = 'matched', trip_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, req.ID, cand.TripID)
	if err != nil {
		return nil, classify(fmt.Errorf("booking: match request %d: %w", req.ID, err))
	}
	if n, _ := tag.RowsAffected(); n != 1 {
		// Unreachable while we hold the request lock.
		return nil, fmt.Errorf("booking: request %d slipped out of pending: %w", req.ID, booking.ErrBookingFailed)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE trips
		SET passenger_count = passenger_count + $2,
		    total_fare_cents = total_fare_cents + $3,
		    updated_at = now()
		WHERE id = $1
	`, cand.TripID, req.SeatsNeeded, fareCents); err != nil {
		return nil, classify(fmt.Errorf("booking: update trip %d: %w", cand.TripID, err))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cabs SET status = 'en_route', updated_at = now()
		WHERE id = $1 AND status = 'available'
	`, lt.cabID); err != nil {
		return nil, classify(fmt.Errorf("booking: update cab %d: %w", lt.cabID, err))
	}

	// Integrity guard: the derived load, now including this request, must
	// still fit. Tripping this under the row lock means a bug somewhere,
	// so fail the transaction rather than commit an over-allocation.
	var seatsUsed, luggageUsed int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(seats_needed), 0)::int,
		       COALESCE(SUM(luggage_count), 0)::int
		FROM ride_requests
		WHERE trip_id = $1 AND status = 'matched'
	`, cand.TripID).Scan(&seatsUsed, &luggageUsed); err != nil {
		return nil, classify(fmt.Errorf("booking: verify trip %d: %w", cand.TripID, err))
	}
	if seatsUsed > lt.seatCapacity || luggageUsed > lt.luggageCapacity {
		observability.CapacityViolations.Inc()
		return nil, fmt.Errorf("trip %d seats=%d/%d luggage=%d/%d: %w",
			cand.TripID, seatsUsed, lt.seatCapacity, luggageUsed, lt.luggageCapacity,
			booking.ErrCapacityExceeded)
	}

	return &models.BookingResult{
		RequestID:        req.ID,
		TripID:           cand.TripID,
		CabID:            lt.cabID,
		DriverID:         lt.driverID,
		SeatsBooked:      req.SeatsNeeded,
		LuggageBooked:    req.LuggageCount,
		RemainingSeats:   lt.seatCapacity - seatsUsed,
		RemainingLuggage: lt.luggageCapacity - luggageUsed,
		FareShareCents:   fareCents,
	}, nil
}

// alreadyProcessed builds the idempotent replay for a non-pending request,
// resolving the cab the prior booking landed on.
func (s *Store) alreadyProcessed(ctx context.Context, q querier, req *models.RideRequest) error {
	ap := &booking.AlreadyProcessedError{RequestID: req.ID, Status: req.Status, TripID: req.TripID}
	if req.TripID != nil {
		_ = q.QueryRowContext(ctx, `SELECT cab_id FROM trips WHERE id = $1`, *req.TripID).Scan(&ap.CabID)
	}
	return ap
}

// classify maps low-level driver errors to the booking taxonomy. Lock and
// statement timeouts become the timeout variants; serialization failures
// and deadlocks become the retryable conflict class.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(booking.ErrBookingTimeout, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03": // lock_not_available (lock_timeout expired)
			return errors.Join(booking.ErrLockTimeout, err)
		case "57014": // query_canceled (statement_timeout expired)
			return errors.Join(booking.ErrBookingTimeout, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return errors.Join(booking.ErrTxConflict, err)
		}
	}
	return err
}
