// Package models contains the domain entities for the airport ride pooling
// engine. The structs map to the PostgreSQL schema in
// migrations/001_create_schema.sql.
package models

import (
	"fmt"
	"time"
)

// ValidationError reports input that fails a domain bound before it ever
// reaches the database.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type UserRole string

const (
	RolePassenger UserRole = "passenger"
	RoleDriver    UserRole = "driver"
)

type CabStatus string

const (
	CabAvailable CabStatus = "available"
	CabEnRoute   CabStatus = "en_route"
	CabOffline   CabStatus = "offline"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestMatched   RequestStatus = "matched"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

type TripStatus string

const (
	TripPlanned   TripStatus = "planned"
	TripEnRoute   TripStatus = "en_route"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

type Direction string

const (
	ToAirport   Direction = "to_airport"
	FromAirport Direction = "from_airport"
)

// Request-level bounds enforced at the boundary (and by DB CHECKs).
const (
	MinSeatsPerRequest   = 1
	MaxLuggagePerRequest = 8
)

// Location is a WGS-84 point (EPSG:4326).
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// User maps to the `users` table. Immutable from the engine's perspective.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Cab maps to the `cabs` table.
type Cab struct {
	ID              int64     `json:"id"`
	DriverID        int64     `json:"driver_id"`
	SeatCapacity    int       `json:"seat_capacity"`
	LuggageCapacity int       `json:"luggage_capacity"`
	Location        *Location `json:"location,omitempty"`
	Status          CabStatus `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Trip maps to the `trips` table. Bound to exactly one cab; shared by all
// ride requests matched to it.
type Trip struct {
	ID             int64      `json:"id"`
	CabID          int64      `json:"cab_id"`
	Direction      Direction  `json:"direction"`
	TotalFareCents int        `json:"total_fare_cents"`
	PassengerCount int        `json:"passenger_count"`
	Status         TripStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RideRequest maps to the `ride_requests` table. References its trip by id
// only once matched.
type RideRequest struct {
	ID              int64         `json:"id"`
	UserID          int64         `json:"user_id"`
	Origin          Location      `json:"origin"`
	Destination     Location      `json:"destination"`
	Direction       Direction     `json:"direction"`
	SeatsNeeded     int           `json:"seats_needed"`
	LuggageCount    int           `json:"luggage_count"`
	ToleranceMeters int           `json:"tolerance_meters"`
	Status          RequestStatus `json:"status"`
	TripID          *int64        `json:"trip_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CabLocationUpdate is the wire message on the cab-locations topic.
type CabLocationUpdate struct {
	CabID    int64     `json:"cab_id"`
	Location Location  `json:"location"`
	Status   CabStatus `json:"status,omitempty"`
}

// Candidate is the denormalized view the proximity finder returns: one
// qualifying trip with its cab's capacity and the load committed so far.
type Candidate struct {
	TripID          int64
	CabID           int64
	DriverID        int64
	Direction       Direction
	SeatCapacity    int
	LuggageCapacity int
	SeatsUsed       int
	LuggageUsed     int
	DistanceMeters  float64
}

// RemainingSeats reports how many seats are left on the candidate trip.
func (c Candidate) RemainingSeats() int { return c.SeatCapacity - c.SeatsUsed }

// RemainingLuggage reports how many luggage slots are left.
func (c Candidate) RemainingLuggage() int { return c.LuggageCapacity - c.LuggageUsed }

// CanAccept is the capacity-ledger check: true when the trip can take the
// request without violating seat or luggage capacity.
func (c Candidate) CanAccept(seatsNeeded, luggageCount int) bool {
	return seatsNeeded <= c.RemainingSeats() && luggageCount <= c.RemainingLuggage()
}

// BookingResult is the committed outcome of a successful booking.
type BookingResult struct {
	RequestID        int64 `json:"request_id"`
	TripID           int64 `json:"trip_id"`
	CabID            int64 `json:"cab_id"`
	DriverID         int64 `json:"driver_id"`
	SeatsBooked      int   `json:"seats_booked"`
	LuggageBooked    int   `json:"luggage_booked"`
	RemainingSeats   int   `json:"remaining_seats"`
	RemainingLuggage int   `json:"remaining_luggage"`
	FareShareCents   int   `json:"fare_share_cents"`
}

// MatchReport is the read-only answer to a Match dry run. Nothing is
// reserved; the booking transaction may still pick a different trip.
type MatchReport struct {
	RequestID      int64   `json:"request_id"`
	Matchable      bool    `json:"matchable"`
	TripID         int64   `json:"trip_id,omitempty"`
	CabID          int64   `json:"cab_id,omitempty"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
	Candidates     int     `json:"candidates_evaluated"`
}
