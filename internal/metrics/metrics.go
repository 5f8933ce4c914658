package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCounter counts HTTP requests by route pattern.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	// LoaderBatchSize records how many keys each relation batch resolved.
	LoaderBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loader_batch_size",
			Help:    "Number of keys per relation loader batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"loader"},
	)

	BookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking attempt state transitions",
		},
		[]string{"from", "to"},
	)

	PaymentIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_total",
			Help: "Payment intents requested from the processor by outcome",
		},
		[]string{"outcome"},
	)

	// SweptAttempts counts stale booking attempts handled by the sweeper.
	SweptAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_sweeper_attempts_total",
			Help: "Stale booking attempts processed by the sweeper by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			LoaderBatchSize,
			BookingTransitions,
			PaymentIntents,
			SweptAttempts,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
