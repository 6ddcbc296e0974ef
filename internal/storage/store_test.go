package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ride-pooling/internal/models"
)

// The validation below rejects before any query runs, so a nil handle is
// safe here.
func validationStore(airport *models.Location) *Store {
	return NewStore(nil, Options{Airport: airport})
}

func validRequest() *models.RideRequest {
	return &models.RideRequest{
		UserID:       1,
		Direction:    models.ToAirport,
		Origin:       models.Location{Lat: 40.7580, Lon: -73.9855},
		Destination:  models.Location{Lat: 40.6413, Lon: -73.7781}, // JFK
		SeatsNeeded:  1,
		LuggageCount: 1,
	}
}

func assertValidation(t *testing.T, err error, field string) {
	t.Helper()
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Field != field {
		t.Fatalf("field = %q, want %q", ve.Field, field)
	}
}

func TestCreateRequestRejectsBadDirection(t *testing.T) {
	req := validRequest()
	req.Direction = "sideways"
	assertValidation(t, validationStore(nil).CreateRequest(context.Background(), req), "direction")
}

func TestCreateRequestRejectsZeroSeats(t *testing.T) {
	req := validRequest()
	req.SeatsNeeded = 0
	assertValidation(t, validationStore(nil).CreateRequest(context.Background(), req), "seats_needed")
}

func TestCreateRequestRejectsExcessLuggage(t *testing.T) {
	req := validRequest()
	req.LuggageCount = models.MaxLuggagePerRequest + 1
	assertValidation(t, validationStore(nil).CreateRequest(context.Background(), req), "luggage_count")
}

func TestCreateRequestToAirportMustEndNearAnchor(t *testing.T) {
	jfk := models.Location{Lat: 40.6413, Lon: -73.7781}
	req := validRequest()
	req.Destination = models.Location{Lat: 40.7580, Lon: -73.9855} // Times Square
	assertValidation(t, validationStore(&jfk).CreateRequest(context.Background(), req), "destination")
}

func TestCreateRequestFromAirportMustStartNearAnchor(t *testing.T) {
	jfk := models.Location{Lat: 40.6413, Lon: -73.7781}
	req := validRequest()
	req.Direction = models.FromAirport
	req.Origin = models.Location{Lat: 40.7580, Lon: -73.9855}
	assertValidation(t, validationStore(&jfk).CreateRequest(context.Background(), req), "origin")
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.MaxCandidates != 20 || o.DefaultToleranceM != 2000 {
		t.Fatalf("search defaults: %+v", o)
	}
	if o.LockTimeout <= 0 || o.StatementTimeout <= 0 || o.AirportRadiusM <= 0 {
		t.Fatalf("budget defaults: %+v", o)
	}
}
