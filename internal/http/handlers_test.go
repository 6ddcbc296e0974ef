package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/models"
)

type fakeEngine struct {
	bookRes  *models.BookingResult
	bookErr  error
	matchRes *models.MatchReport
	matchErr error
}

func (f *fakeEngine) Book(context.Context, int64) (*models.BookingResult, error) {
	return f.bookRes, f.bookErr
}

func (f *fakeEngine) Match(context.Context, int64) (*models.MatchReport, error) {
	return f.matchRes, f.matchErr
}

type fakeEntityStore struct {
	requests map[int64]*models.RideRequest
	trips    map[int64]*models.Trip

	getRequestErr error
	getTripErr    error
	createTripErr error
	locationCalls int
}

func (f *fakeEntityStore) CreateRequest(_ context.Context, req *models.RideRequest) error {
	if !models.ValidDirection(req.Direction) {
		return &models.ValidationError{Field: "direction", Reason: "must be to_airport or from_airport"}
	}
	if req.SeatsNeeded < models.MinSeatsPerRequest {
		return &models.ValidationError{Field: "seats_needed", Reason: "must be >= 1"}
	}
	req.ID = 101
	req.Status = models.RequestPending
	return nil
}

func (f *fakeEntityStore) GetRequest(_ context.Context, id int64) (*models.RideRequest, error) {
	if f.getRequestErr != nil {
		return nil, f.getRequestErr
	}
	req, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %d: %w", id, booking.ErrNotFound)
	}
	return req, nil
}

func (f *fakeEntityStore) CreateTrip(_ context.Context, cabID int64, dir models.Direction) (*models.Trip, error) {
	if f.createTripErr != nil {
		return nil, f.createTripErr
	}
	return &models.Trip{ID: 55, CabID: cabID, Direction: dir, Status: models.TripPlanned}, nil
}

func (f *fakeEntityStore) GetTrip(_ context.Context, id int64) (*models.Trip, []models.RideRequest, error) {
	if f.getTripErr != nil {
		return nil, nil, f.getTripErr
	}
	trip, ok := f.trips[id]
	if !ok {
		return nil, nil, fmt.Errorf("trip %d: %w", id, booking.ErrNotFound)
	}
	return trip, nil, nil
}

func (f *fakeEntityStore) UpdateCabLocation(_ context.Context, cabID int64, _ models.Location) error {
	f.locationCalls++
	if cabID == 404 {
		return fmt.Errorf("cab %d: %w", cabID, booking.ErrNotFound)
	}
	return nil
}

func newTestServer(engine Engine, store EntityStore) *Server {
	if store == nil {
		store = &fakeEntityStore{}
	}
	return NewServer(Deps{Engine: engine, Store: store})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestBookSuccessReturns200(t *testing.T) {
	engine := &fakeEngine{bookRes: &models.BookingResult{
		RequestID: 1, TripID: 9, CabID: 3, SeatsBooked: 2, FareShareCents: 8200,
	}}
	rec := doJSON(t, newTestServer(engine, nil), http.MethodPost, "/api/v1/book/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp bookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "booked" || resp.Booking == nil || resp.Booking.TripID != 9 {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestBookOutcomeStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"not found", booking.ErrNotFound, http.StatusNotFound, "not_found"},
		{"no capacity", booking.ErrNoCapacity, http.StatusConflict, "no_capacity"},
		{"lock timeout", booking.ErrLockTimeout, http.StatusServiceUnavailable, "timeout"},
		{"booking timeout", booking.ErrBookingTimeout, http.StatusServiceUnavailable, "timeout"},
		{"booking failed", booking.ErrBookingFailed, http.StatusInternalServerError, "booking_failed"},
		{"capacity violation", booking.ErrCapacityExceeded, http.StatusInternalServerError, "booking_failed"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := newTestServer(&fakeEngine{bookErr: c.err}, nil)
			rec := doJSON(t, srv, http.MethodPost, "/api/v1/book/1", nil)
			if rec.Code != c.want {
				t.Fatalf("status = %d, want %d", rec.Code, c.want)
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != c.code {
				t.Fatalf("code = %q, want %q", resp.Code, c.code)
			}
		})
	}
}

func TestBookAlreadyProcessedReplays200(t *testing.T) {
	tripID := int64(7)
	srv := newTestServer(&fakeEngine{bookErr: &booking.AlreadyProcessedError{
		RequestID: 1, Status: models.RequestMatched, TripID: &tripID, CabID: 3,
	}}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/book/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 replay", rec.Code)
	}
	var resp bookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "already_processed" || resp.TripID == nil || *resp.TripID != 7 {
		t.Fatalf("unexpected replay body: %+v", resp)
	}
}

func TestBookInvalidID(t *testing.T) {
	rec := doJSON(t, newTestServer(&fakeEngine{}, nil), http.MethodPost, "/api/v1/book/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMatchReturnsReport(t *testing.T) {
	engine := &fakeEngine{matchRes: &models.MatchReport{
		RequestID: 1, Matchable: true, TripID: 4, DistanceMeters: 320, Candidates: 2,
	}}
	rec := doJSON(t, newTestServer(engine, nil), http.MethodPost, "/api/v1/match/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var report models.MatchReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if !report.Matchable || report.TripID != 4 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/requests", createRequestBody{
		UserID: 1, Direction: models.ToAirport, SeatsNeeded: 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for zero seats", rec.Code)
	}
}

func TestCreateRequestSuccess(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/requests", createRequestBody{
		UserID: 1, Direction: models.ToAirport, SeatsNeeded: 2, LuggageCount: 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var req models.RideRequest
	if err := json.NewDecoder(rec.Body).Decode(&req); err != nil {
		t.Fatal(err)
	}
	if req.ID != 101 || req.Status != models.RequestPending {
		t.Fatalf("unexpected created request: %+v", req)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeEntityStore{})
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/requests/9", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

// CRUD read failures report a generic internal code; booking outcome codes
// belong to the match/book endpoints only.
func TestGetRequestStoreFailureIsInternal(t *testing.T) {
	store := &fakeEntityStore{getRequestErr: fmt.Errorf("connection reset")}
	srv := newTestServer(&fakeEngine{}, store)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/requests/9", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "internal" {
		t.Fatalf("code = %q, want internal", resp.Code)
	}
}

func TestGetTripStoreFailureIsInternal(t *testing.T) {
	store := &fakeEntityStore{getTripErr: fmt.Errorf("connection reset")}
	srv := newTestServer(&fakeEngine{}, store)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/trips/9", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "internal" {
		t.Fatalf("code = %q, want internal", resp.Code)
	}
}

func TestGetTripNotFound(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, &fakeEntityStore{})
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/trips/9", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateTripRejectsBadDirection(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/trips", map[string]any{
		"cab_id": 3, "direction": "sideways",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateTripCabUnavailable(t *testing.T) {
	store := &fakeEntityStore{createTripErr: fmt.Errorf("cab 3 is en_route: %w", booking.ErrCabUnavailable)}
	srv := newTestServer(&fakeEngine{}, store)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/trips", createTripBody{
		CabID: 3, Direction: models.ToAirport,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateTripSuccess(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/trips", createTripBody{
		CabID: 3, Direction: models.FromAirport,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var trip models.Trip
	if err := json.NewDecoder(rec.Body).Decode(&trip); err != nil {
		t.Fatal(err)
	}
	if trip.ID != 55 || trip.Status != models.TripPlanned {
		t.Fatalf("unexpected trip: %+v", trip)
	}
}

func TestCabLocationDirectApply(t *testing.T) {
	store := &fakeEntityStore{}
	srv := newTestServer(&fakeEngine{}, store)
	rec := doJSON(t, srv, http.MethodPost, "/internal/cab/locations", models.CabLocationUpdate{
		CabID:    3,
		Location: models.Location{Lat: 40.64, Lon: -73.78},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if store.locationCalls != 1 {
		t.Fatalf("location applied %d times, want 1", store.locationCalls)
	}
}

func TestCabLocationRequiresCabID(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/internal/cab/locations", models.CabLocationUpdate{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRequestIDHeaderPropagates(t *testing.T) {
	srv := newTestServer(&fakeEngine{matchRes: &models.MatchReport{}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/match/1", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	srv := newTestServer(&fakeEngine{matchRes: &models.MatchReport{}}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/match/1", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("no request id assigned")
	}
}

func TestHealthWithoutProbes(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, nil)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestFareEstimateUnconfigured(t *testing.T) {
	srv := newTestServer(&fakeEngine{}, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/fare/estimate", fareEstimateBody{})
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
