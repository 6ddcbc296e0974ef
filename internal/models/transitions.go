package models

// Status transitions are closed tables. Anything not listed is illegal and
// must be rejected at the boundary, not deep in business logic.

var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending: {RequestMatched, RequestExpired, RequestCancelled},
	// matched is terminal for the booking engine.
	RequestMatched:   {},
	RequestExpired:   {},
	RequestCancelled: {},
}

var tripTransitions = map[TripStatus][]TripStatus{
	TripPlanned:   {TripEnRoute, TripCancelled},
	TripEnRoute:   {TripCompleted, TripCancelled},
	TripCompleted: {},
	TripCancelled: {},
}

var cabTransitions = map[CabStatus][]CabStatus{
	CabAvailable: {CabEnRoute, CabOffline},
	CabEnRoute:   {CabAvailable, CabOffline},
	CabOffline:   {CabAvailable},
}

// CanTransitionRequest reports whether a ride request may move from -> to.
func CanTransitionRequest(from, to RequestStatus) bool {
	return contains(requestTransitions[from], to)
}

// CanTransitionTrip reports whether a trip may move from -> to.
func CanTransitionTrip(from, to TripStatus) bool {
	return contains(tripTransitions[from], to)
}

// CanTransitionCab reports whether a cab may move from -> to.
func CanTransitionCab(from, to CabStatus) bool {
	return contains(cabTransitions[from], to)
}

// Bookable reports whether a cab status admits new bookings.
func (s CabStatus) Bookable() bool {
	return s == CabAvailable || s == CabEnRoute
}

// Active reports whether a trip still accepts passengers.
func (s TripStatus) Active() bool {
	return s == TripPlanned || s == TripEnRoute
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// ValidDirection reports whether d names a known trip direction.
func ValidDirection(d Direction) bool {
	return d == ToAirport || d == FromAirport
}
