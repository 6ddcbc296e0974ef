package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsWon = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pooling", Name: "bookings_won_total",
		Help: "Bookings that committed a seat reservation",
	})
	BookingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ride_pooling", Name: "bookings_rejected_total",
			Help: "Booking attempts that ended in a non-success outcome",
		},
		[]string{"reason"},
	)
	BookingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pooling", Name: "booking_retries_total",
		Help: "Transaction attempts retried after a transient store conflict",
	})
	BookingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_pooling", Name: "booking_latency_seconds",
		Help:    "End-to-end booking latency including lock waits and retries",
		Buckets: prometheus.DefBuckets,
	})
	CandidatesEvaluated = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_pooling", Name: "candidates_evaluated",
		Help:    "Candidate trips considered per booking attempt",
		Buckets: []float64{0, 1, 2, 5, 10, 20},
	})
	CapacityViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pooling", Name: "capacity_violations_total",
		Help: "Integrity-guard trips: reserve attempted past capacity under lock",
	})

	LocationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pooling", Name: "cab_locations_applied_total",
		Help: "Cab location updates applied to the store and geo index",
	})
	LocationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ride_pooling", Name: "cab_locations_dropped_total",
		Help: "Cab location updates dropped after exhausting retries",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_pooling", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_pooling",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
