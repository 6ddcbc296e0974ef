package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/models"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// bookResponse is the envelope for /book and /match replays. Status is
// "booked" for a fresh commit and "already_processed" for an idempotent
// replay of a prior outcome.
type bookResponse struct {
	Status  string                `json:"status"`
	Booking *models.BookingResult `json:"booking,omitempty"`

	RequestStatus models.RequestStatus `json:"request_status,omitempty"`
	TripID        *int64               `json:"trip_id,omitempty"`
	CabID         int64                `json:"cab_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeBookingError maps the engine's outcome taxonomy onto HTTP status
// codes. AlreadyProcessed is not an error at this boundary: a duplicate
// Book replays the prior outcome with 200.
func (s *Server) writeBookingError(w http.ResponseWriter, err error) {
	var ap *booking.AlreadyProcessedError
	switch {
	case errors.As(err, &ap):
		writeJSON(w, http.StatusOK, bookResponse{
			Status:        "already_processed",
			RequestStatus: ap.Status,
			TripID:        ap.TripID,
			CabID:         ap.CabID,
		})
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, booking.ErrNoCapacity):
		writeError(w, http.StatusConflict, "no_capacity", err.Error())
	case errors.Is(err, booking.ErrCabUnavailable):
		writeError(w, http.StatusConflict, "cab_unavailable", err.Error())
	case errors.Is(err, booking.ErrLockTimeout), errors.Is(err, booking.ErrBookingTimeout):
		writeError(w, http.StatusServiceUnavailable, "timeout", err.Error())
	default:
		s.logger.Error("booking failed", "error", err)
		writeError(w, http.StatusInternalServerError, "booking_failed", "booking failed")
	}
}

// writeStoreError is the error path for plain CRUD lookups: a miss is 404,
// anything else a generic internal failure. Booking outcome codes stay on
// the match/book endpoints.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, booking.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	s.logger.Error(what+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", what+" failed")
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

type createRequestBody struct {
	UserID          int64            `json:"user_id"`
	Origin          models.Location  `json:"origin"`
	Destination     models.Location  `json:"destination"`
	Direction       models.Direction `json:"direction"`
	SeatsNeeded     int              `json:"seats_needed"`
	LuggageCount    int              `json:"luggage_count"`
	ToleranceMeters int              `json:"tolerance_meters"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	req := &models.RideRequest{
		UserID:          body.UserID,
		Origin:          body.Origin,
		Destination:     body.Destination,
		Direction:       body.Direction,
		SeatsNeeded:     body.SeatsNeeded,
		LuggageCount:    body.LuggageCount,
		ToleranceMeters: body.ToleranceMeters,
	}
	if err := s.store.CreateRequest(r.Context(), req); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "bad_request", ve.Error())
			return
		}
		s.logger.Error("create request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not create request")
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}
	req, err := s.store.GetRequest(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "get request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type createTripBody struct {
	CabID     int64            `json:"cab_id"`
	Direction models.Direction `json:"direction"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var body createTripBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if !models.ValidDirection(body.Direction) {
		writeError(w, http.StatusBadRequest, "bad_request", "direction must be to_airport or from_airport")
		return
	}
	trip, err := s.store.CreateTrip(r.Context(), body.CabID, body.Direction)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

type tripResponse struct {
	Trip       *models.Trip         `json:"trip"`
	Passengers []models.RideRequest `json:"passengers"`
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid trip id")
		return
	}
	trip, passengers, err := s.store.GetTrip(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "get trip")
		return
	}
	writeJSON(w, http.StatusOK, tripResponse{Trip: trip, Passengers: passengers})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "request_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}
	report, err := s.engine.Match(r.Context(), id)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "request_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request id")
		return
	}
	res, err := s.engine.Book(r.Context(), id)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookResponse{Status: "booked", Booking: res})
}

type fareEstimateBody struct {
	Origin      models.Location `json:"origin"`
	Destination models.Location `json:"destination"`
}

func (s *Server) handleFareEstimate(w http.ResponseWriter, r *http.Request) {
	if s.pricing == nil {
		writeError(w, http.StatusNotImplemented, "unavailable", "pricing is not configured")
		return
	}
	var body fareEstimateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, s.pricing.Estimate(r.Context(), body.Origin, body.Destination))
}

func (s *Server) handleNearbyCabs(w http.ResponseWriter, r *http.Request) {
	if s.cabIndex == nil {
		writeError(w, http.StatusNotImplemented, "unavailable", "cab index is not configured")
		return
	}
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "lat and lon are required")
		return
	}
	radius := 3000.0
	if v := q.Get("radius_m"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			radius = f
		}
	}
	cabs, err := s.cabIndex.Nearby(r.Context(), models.Location{Lat: lat, Lon: lon}, radius, 20)
	if err != nil {
		s.logger.Error("nearby lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "nearby lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cabs": cabs, "count": len(cabs)})
}

// handleCabLocation ingests a driver app position report. With Kafka wired
// the update goes through the stream and cmd/consumer applies it; without
// Kafka it is applied to the store directly.
func (s *Server) handleCabLocation(w http.ResponseWriter, r *http.Request) {
	var upd models.CabLocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if upd.CabID <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "cab_id is required")
		return
	}

	if s.kafka != nil {
		if err := s.kafka.PublishLocation(upd); err != nil {
			s.logger.Error("location publish failed", "cab_id", upd.CabID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "location ingest unavailable")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	if err := s.store.UpdateCabLocation(r.Context(), upd.CabID, upd.Location); err != nil {
		s.writeStoreError(w, err, "update cab location")
		return
	}
	if s.cabIndex != nil {
		status := upd.Status
		if status == "" {
			status = models.CabAvailable
		}
		if err := s.cabIndex.Upsert(r.Context(), upd.CabID, upd.Location, status); err != nil {
			s.logger.Warn("cab index upsert failed", "cab_id", upd.CabID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleDriverWS keeps a driver's assignment channel open. The server only
// pushes; inbound frames are drained and discarded.
func (s *Server) handleDriverWS(w http.ResponseWriter, r *http.Request) {
	driverID, err := pathID(r, "driver_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid driver id")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "driver_id", driverID, "error", err)
		return
	}
	s.wsReg.Add(driverID, conn)
	defer func() {
		s.wsReg.Remove(driverID, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
