package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HoldsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qurban_holds_created_total",
		Help: "Reservations successfully created",
	})

	HoldsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qurban_holds_rejected_total",
		Help: "Hold attempts rejected for insufficient shares",
	})

	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qurban_reservations_expired_total",
		Help: "Reservations reclaimed after their TTL lapsed",
	})

	PurchasesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qurban_purchases_completed_total",
		Help: "Purchases that reached the completed state",
	})

	PurchasesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qurban_purchases_failed_total",
		Help: "Purchases that reached the failed state",
	})

	MintAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qurban_mint_attempts_total",
		Help: "Certificate mint attempts against the external collaborator",
	})

	MintFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qurban_mint_failures_total",
		Help: "Certificate mint attempts that failed",
	})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qurban_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "path"})
)
