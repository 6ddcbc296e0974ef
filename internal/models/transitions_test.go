package models

import "testing"

func TestRequestTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		ok       bool
	}{
		{RequestPending, RequestMatched, true},
		{RequestPending, RequestExpired, true},
		{RequestPending, RequestCancelled, true},
		{RequestMatched, RequestPending, false},
		{RequestMatched, RequestCancelled, false},
		{RequestExpired, RequestMatched, false},
		{RequestCancelled, RequestPending, false},
		{RequestPending, RequestPending, false},
	}
	for _, c := range cases {
		if got := CanTransitionRequest(c.from, c.to); got != c.ok {
			t.Errorf("request %s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestTripTransitions(t *testing.T) {
	cases := []struct {
		from, to TripStatus
		ok       bool
	}{
		{TripPlanned, TripEnRoute, true},
		{TripPlanned, TripCancelled, true},
		{TripPlanned, TripCompleted, false},
		{TripEnRoute, TripCompleted, true},
		{TripEnRoute, TripCancelled, true},
		{TripEnRoute, TripPlanned, false},
		{TripCompleted, TripEnRoute, false},
		{TripCancelled, TripPlanned, false},
	}
	for _, c := range cases {
		if got := CanTransitionTrip(c.from, c.to); got != c.ok {
			t.Errorf("trip %s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestCabTransitions(t *testing.T) {
	cases := []struct {
		from, to CabStatus
		ok       bool
	}{
		{CabAvailable, CabEnRoute, true},
		{CabAvailable, CabOffline, true},
		{CabEnRoute, CabAvailable, true},
		{CabEnRoute, CabOffline, true},
		{CabOffline, CabAvailable, true},
		{CabOffline, CabEnRoute, false},
	}
	for _, c := range cases {
		if got := CanTransitionCab(c.from, c.to); got != c.ok {
			t.Errorf("cab %s -> %s: got %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestBookable(t *testing.T) {
	if !CabAvailable.Bookable() || !CabEnRoute.Bookable() {
		t.Error("available and en_route cabs must be bookable")
	}
	if CabOffline.Bookable() {
		t.Error("offline cab must not be bookable")
	}
}

func TestTripActive(t *testing.T) {
	if !TripPlanned.Active() || !TripEnRoute.Active() {
		t.Error("planned and en_route trips must accept passengers")
	}
	if TripCompleted.Active() || TripCancelled.Active() {
		t.Error("terminal trips must not accept passengers")
	}
}

func TestCandidateCapacity(t *testing.T) {
	c := Candidate{SeatCapacity: 4, LuggageCapacity: 3, SeatsUsed: 3, LuggageUsed: 1}
	if got := c.RemainingSeats(); got != 1 {
		t.Fatalf("remaining seats = %d, want 1", got)
	}
	if got := c.RemainingLuggage(); got != 2 {
		t.Fatalf("remaining luggage = %d, want 2", got)
	}
	if !c.CanAccept(1, 2) {
		t.Error("should accept a request that exactly fills the trip")
	}
	if c.CanAccept(2, 0) {
		t.Error("accepted a request past seat capacity")
	}
	if c.CanAccept(1, 3) {
		t.Error("accepted a request past luggage capacity")
	}
}

func TestValidDirection(t *testing.T) {
	if !ValidDirection(ToAirport) || !ValidDirection(FromAirport) {
		t.Error("known directions rejected")
	}
	if ValidDirection(Direction("sideways")) || ValidDirection(Direction("")) {
		t.Error("unknown direction accepted")
	}
}
