// Package httpapi exposes the booking engine over HTTP. Transport framing
// only: all decisions live in the booking coordinator and the store.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/dispatch"
	"github.com/example/ride-pooling/internal/geo"
	"github.com/example/ride-pooling/internal/ingest"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/pricing"
)

// Engine is the booking API surface the handlers call.
type Engine interface {
	Book(ctx context.Context, requestID int64) (*models.BookingResult, error)
	Match(ctx context.Context, requestID int64) (*models.MatchReport, error)
}

// EntityStore covers the CRUD the boundary needs around the engine.
type EntityStore interface {
	CreateRequest(ctx context.Context, req *models.RideRequest) error
	GetRequest(ctx context.Context, id int64) (*models.RideRequest, error)
	CreateTrip(ctx context.Context, cabID int64, direction models.Direction) (*models.Trip, error)
	GetTrip(ctx context.Context, id int64) (*models.Trip, []models.RideRequest, error)
	UpdateCabLocation(ctx context.Context, cabID int64, loc models.Location) error
}

// Deps carries the wiring for NewServer. Kafka, CabIndex, Pricing and the
// health probes are optional.
type Deps struct {
	Engine   Engine
	Store    EntityStore
	Pricing  *pricing.Service
	CabIndex *geo.CabIndex
	Kafka    *ingest.KafkaProducer
	WSReg    *dispatch.Registry
	Logger   *slog.Logger

	DB    *sql.DB       // health probe
	Redis *redis.Client // health probe
}

type Server struct {
	engine   Engine
	store    EntityStore
	pricing  *pricing.Service
	cabIndex *geo.CabIndex
	kafka    *ingest.KafkaProducer
	wsReg    *dispatch.Registry
	logger   *slog.Logger

	db    *sql.DB
	redis *redis.Client

	mux *mux.Router
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wsReg := deps.WSReg
	if wsReg == nil {
		wsReg = dispatch.NewRegistry()
	}
	s := &Server{
		engine:   deps.Engine,
		store:    deps.Store,
		pricing:  deps.Pricing,
		cabIndex: deps.CabIndex,
		kafka:    deps.Kafka,
		wsReg:    wsReg,
		logger:   logger,
		db:       deps.DB,
		redis:    deps.Redis,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/requests", s.handleCreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}", s.handleGetRequest).Methods(http.MethodGet)
	api.HandleFunc("/trips", s.handleCreateTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}", s.handleGetTrip).Methods(http.MethodGet)
	api.HandleFunc("/match/{request_id}", s.handleMatch).Methods(http.MethodPost)
	api.HandleFunc("/book/{request_id}", s.handleBook).Methods(http.MethodPost)
	api.HandleFunc("/fare/estimate", s.handleFareEstimate).Methods(http.MethodPost)
	api.HandleFunc("/cabs/nearby", s.handleNearbyCabs).Methods(http.MethodGet)

	s.mux.HandleFunc("/internal/cab/locations", s.handleCabLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/ws/drivers/{driver_id}", s.handleDriverWS)
	s.mux.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Registry returns the driver session registry for wiring into the
// coordinator's dispatcher.
func (s *Server) Registry() *dispatch.Registry { return s.wsReg }

type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Services: map[string]string{}}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
