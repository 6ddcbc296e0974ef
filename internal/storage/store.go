package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/geo"
	"github.com/example/ride-pooling/internal/models"
)

// CreateRequest inserts a new pending ride request and fills in the
// generated id and timestamps.
func (s *Store) CreateRequest(ctx context.Context, req *models.RideRequest) error {
	if !models.ValidDirection(req.Direction) {
		return &models.ValidationError{Field: "direction", Reason: "must be to_airport or from_airport"}
	}
	if req.SeatsNeeded < models.MinSeatsPerRequest {
		return &models.ValidationError{Field: "seats_needed",
			Reason: fmt.Sprintf("must be >= %d", models.MinSeatsPerRequest)}
	}
	if req.LuggageCount < 0 || req.LuggageCount > models.MaxLuggagePerRequest {
		return &models.ValidationError{Field: "luggage_count",
			Reason: fmt.Sprintf("must be in [0, %d]", models.MaxLuggagePerRequest)}
	}
	if req.ToleranceMeters <= 0 {
		req.ToleranceMeters = s.opts.DefaultToleranceM
	}
	// The airport end of the ride must be near the configured anchor; the
	// other end is what the tolerance radius searches around.
	if a := s.opts.Airport; a != nil {
		switch req.Direction {
		case models.ToAirport:
			if !geo.WithinM(req.Destination, *a, s.opts.AirportRadiusM) {
				return &models.ValidationError{Field: "destination", Reason: "not near the airport"}
			}
		case models.FromAirport:
			if !geo.WithinM(req.Origin, *a, s.opts.AirportRadiusM) {
				return &models.ValidationError{Field: "origin", Reason: "not near the airport"}
			}
		}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ride_requests (
			user_id, origin, destination, direction,
			seats_needed, luggage_count, tolerance_meters, status
		) VALUES (
			$1,
			ST_SetSRID(ST_MakePoint($2, $3), 4326),
			ST_SetSRID(ST_MakePoint($4, $5), 4326),
			$6, $7, $8, $9, 'pending'
		)
		RETURNING id, created_at, updated_at
	`,
		req.UserID,
		req.Origin.Lon, req.Origin.Lat,
		req.Destination.Lon, req.Destination.Lat,
		req.Direction, req.SeatsNeeded, req.LuggageCount, req.ToleranceMeters,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Status = models.RequestPending
	return nil
}

// GetRequest fetches a ride request by id.
func (s *Store) GetRequest(ctx context.Context, id int64) (*models.RideRequest, error) {
	req := &models.RideRequest{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id,
		       ST_Y(origin), ST_X(origin),
		       ST_Y(destination), ST_X(destination),
		       direction, seats_needed, luggage_count, tolerance_meters,
		       status, trip_id, created_at, updated_at
		FROM ride_requests
		WHERE id = $1
	`, id).Scan(
		&req.ID, &req.UserID,
		&req.Origin.Lat, &req.Origin.Lon,
		&req.Destination.Lat, &req.Destination.Lon,
		&req.Direction, &req.SeatsNeeded, &req.LuggageCount, &req.ToleranceMeters,
		&req.Status, &req.TripID, &req.CreatedAt, &req.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %d: %w", id, booking.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	return req, nil
}

// CreateTrip binds a new planned trip to an available cab. The cab row is
// locked so two trips cannot be assigned to the same cab concurrently; a
// cab may carry at most one active trip.
func (s *Store) CreateTrip(ctx context.Context, cabID int64, direction models.Direction) (*models.Trip, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("create trip: begin tx: %w", err)
	}
	defer tx.Rollback()

	var cabStatus models.CabStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM cabs WHERE id = $1 FOR UPDATE`, cabID,
	).Scan(&cabStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cab %d: %w", cabID, booking.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("create trip: lock cab %d: %w", cabID, err)
	}
	if cabStatus != models.CabAvailable {
		return nil, fmt.Errorf("cab %d is %s: %w", cabID, cabStatus, booking.ErrCabUnavailable)
	}

	var active int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM trips
		WHERE cab_id = $1 AND status IN ('planned', 'en_route')
	`, cabID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("create trip: count active for cab %d: %w", cabID, err)
	}
	if active > 0 {
		return nil, fmt.Errorf("cab %d already has an active trip: %w", cabID, booking.ErrCabUnavailable)
	}

	trip := &models.Trip{CabID: cabID, Direction: direction, Status: models.TripPlanned}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO trips (cab_id, direction, total_fare_cents, passenger_count, status)
		VALUES ($1, $2, 0, 0, 'planned')
		RETURNING id, created_at, updated_at
	`, cabID, direction).Scan(&trip.ID, &trip.CreatedAt, &trip.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create trip: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create trip: commit: %w", err)
	}
	return trip, nil
}

// GetTrip fetches a trip with its matched passenger manifest.
func (s *Store) GetTrip(ctx context.Context, id int64) (*models.Trip, []models.RideRequest, error) {
	trip := &models.Trip{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cab_id, direction, total_fare_cents, passenger_count,
		       status, created_at, updated_at
		FROM trips
		WHERE id = $1
	`, id).Scan(
		&trip.ID, &trip.CabID, &trip.Direction,
		&trip.TotalFareCents, &trip.PassengerCount,
		&trip.Status, &trip.CreatedAt, &trip.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("trip %d: %w", id, booking.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get trip %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id,
		       ST_Y(origin), ST_X(origin),
		       ST_Y(destination), ST_X(destination),
		       direction, seats_needed, luggage_count, tolerance_meters,
		       status, trip_id, created_at, updated_at
		FROM ride_requests
		WHERE trip_id = $1 AND status = 'matched'
		ORDER BY created_at ASC
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get trip %d passengers: %w", id, err)
	}
	defer rows.Close()

	var passengers []models.RideRequest
	for rows.Next() {
		var rr models.RideRequest
		if err := rows.Scan(
			&rr.ID, &rr.UserID,
			&rr.Origin.Lat, &rr.Origin.Lon,
			&rr.Destination.Lat, &rr.Destination.Lon,
			&rr.Direction, &rr.SeatsNeeded, &rr.LuggageCount, &rr.ToleranceMeters,
			&rr.Status, &rr.TripID, &rr.CreatedAt, &rr.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("scan passenger: %w", err)
		}
		passengers = append(passengers, rr)
	}
	return trip, passengers, rows.Err()
}

// UpdateCabLocation writes the cab's latest position. The caller (HTTP
// ingest or the Kafka consumer) mirrors the same update into the Redis geo
// index.
func (s *Store) UpdateCabLocation(ctx context.Context, cabID int64, loc models.Location) error {
	tag, err := s.db.ExecContext(ctx, `
		UPDATE cabs
		SET current_location = ST_SetSRID(ST_MakePoint($2, $3), 4326),
		    updated_at = now()
		WHERE id = $1
	`, cabID, loc.Lon, loc.Lat)
	if err != nil {
		return fmt.Errorf("update cab %d location: %w", cabID, err)
	}
	if n, _ := tag.RowsAffected(); n == 0 {
		return fmt.Errorf("cab %d: %w", cabID, booking.ErrNotFound)
	}
	return nil
}

// DemandSupply counts pending requests (demand) and bookable cabs (supply)
// within radiusM of a point. The slow path behind the surge cache.
func (s *Store) DemandSupply(ctx context.Context, loc models.Location, radiusM int) (demand, supply int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*)
			 FROM ride_requests
			 WHERE status = 'pending'
			   AND ST_DWithin(
			         origin::geography,
			         ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
			         $3))::int,
			(SELECT COUNT(*)
			 FROM cabs
			 WHERE status IN ('available', 'en_route')
			   AND current_location IS NOT NULL
			   AND ST_DWithin(
			         current_location::geography,
			         ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
			         $3))::int
	`, loc.Lon, loc.Lat, radiusM).Scan(&demand, &supply)
	if err != nil {
		return 0, 0, fmt.Errorf("demand/supply: %w", err)
	}
	return demand, supply, nil
}
