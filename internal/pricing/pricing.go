// Package pricing computes the fare share a booking contributes to its
// trip's aggregate. Distance/time base plus a tiered surge multiplier from
// the demand/supply ratio around the origin.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-pooling/internal/geo"
	"github.com/example/ride-pooling/internal/models"
)

// averageSpeedKmph approximates city driving for the time component.
const averageSpeedKmph = 30.0

// Surge tiers over the demand/supply ratio R:
//
//	R ≤ 1.5 → 1.0x, R > 1.5 → 1.2x, R > 2.0 → 1.5x
const (
	surgeThresholdModerate = 1.5
	surgeThresholdHigh     = 2.0

	surgeNone     = 1.0
	surgeModerate = 1.2
	surgeHigh     = 1.5
)

// Config holds the fare parameters.
type Config struct {
	BaseFareCents   int
	PerKmRateCents  int
	PerMinRateCents int
	MinFareCents    int
	SurgeRadiusM    int
	CacheTTL        time.Duration
}

// DemandSupplySource is the slow path for surge counters; implemented by
// the Postgres store.
type DemandSupplySource interface {
	DemandSupply(ctx context.Context, loc models.Location, radiusM int) (demand, supply int, err error)
}

// Service quotes fare shares. Safe for concurrent use.
type Service struct {
	cfg    Config
	source DemandSupplySource
	redis  *redis.Client // optional; nil skips the shared cache
	cells  *cellCache
	logger *slog.Logger
}

// Estimate is the full quote breakdown returned by the fare endpoint.
type Estimate struct {
	BaseFareCents     int     `json:"base_fare_cents"`
	DistanceFareCents int     `json:"distance_fare_cents"`
	TimeFareCents     int     `json:"time_fare_cents"`
	SurgeMultiplier   float64 `json:"surge_multiplier"`
	TotalFareCents    int     `json:"total_fare_cents"`
	DistanceKm        float64 `json:"distance_km"`
}

// NewService builds a pricing service. redisClient may be nil.
func NewService(cfg Config, source DemandSupplySource, redisClient *redis.Client, logger *slog.Logger) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		source: source,
		redis:  redisClient,
		cells:  newCellCache(ttl),
		logger: logger,
	}
}

// Estimate quotes the fare for a single passenger's leg.
func (s *Service) Estimate(ctx context.Context, origin, destination models.Location) Estimate {
	distanceKm := geo.HaversineKm(origin, destination)
	minutes := distanceKm / averageSpeedKmph * 60.0

	surge := s.surgeMultiplier(ctx, origin)

	distanceFare := int(math.Round(distanceKm * float64(s.cfg.PerKmRateCents)))
	timeFare := int(math.Round(minutes * float64(s.cfg.PerMinRateCents)))
	subtotal := s.cfg.BaseFareCents + distanceFare + timeFare
	total := int(math.Round(float64(subtotal) * surge))
	if total < s.cfg.MinFareCents {
		total = s.cfg.MinFareCents
	}

	return Estimate{
		BaseFareCents:     s.cfg.BaseFareCents,
		DistanceFareCents: distanceFare,
		TimeFareCents:     timeFare,
		SurgeMultiplier:   surge,
		TotalFareCents:    total,
		DistanceKm:        math.Round(distanceKm*100) / 100,
	}
}

// QuoteShareCents implements booking.Quoter: the amount added to the trip's
// fare aggregate when this booking commits.
func (s *Service) QuoteShareCents(ctx context.Context, origin, destination models.Location) (int, error) {
	return s.Estimate(ctx, origin, destination).TotalFareCents, nil
}

// surgeMultiplier resolves the demand/supply ratio for the origin cell:
// in-process cache → Redis → Postgres. Degrades to no surge on failure; a
// pricing hiccup must never block a booking.
func (s *Service) surgeMultiplier(ctx context.Context, origin models.Location) float64 {
	cell := geo.CellKey(origin)
	if ratio, ok := s.cells.get(cell); ok {
		return tier(ratio)
	}

	if s.redis != nil {
		if v, err := s.redis.Get(ctx, surgeKey(cell)).Float64(); err == nil {
			s.cells.set(cell, v)
			return tier(v)
		}
	}

	demand, supply, err := s.source.DemandSupply(ctx, origin, s.cfg.SurgeRadiusM)
	if err != nil {
		s.logger.Warn("demand/supply lookup failed, defaulting to no surge", "error", err)
		return surgeNone
	}
	ratio := ratioOf(demand, supply)
	s.cells.set(cell, ratio)
	if s.redis != nil {
		// Best effort; the in-process cache already has it.
		_ = s.redis.Set(ctx, surgeKey(cell), ratio, s.cells.ttl).Err()
	}
	return tier(ratio)
}

func ratioOf(demand, supply int) float64 {
	if supply > 0 {
		return float64(demand) / float64(supply)
	}
	if demand > 0 {
		return float64(demand)
	}
	return 0
}

func tier(ratio float64) float64 {
	switch {
	case ratio > surgeThresholdHigh:
		return surgeHigh
	case ratio > surgeThresholdModerate:
		return surgeModerate
	default:
		return surgeNone
	}
}

func surgeKey(cell string) string { return fmt.Sprintf("surge:ratio:%s", cell) }
