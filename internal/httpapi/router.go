// Package httpapi assembles the HTTP surface: the GraphQL endpoint, the
// checkout routes used by the payment client, health and metrics.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tutoring-api/internal/booking"
	"tutoring-api/internal/handler"
	"tutoring-api/internal/metrics"
	"tutoring-api/internal/middleware"
)

// Checkout starts bookings for the checkout routes.
type Checkout interface {
	StartBooking(ctx context.Context, in handler.StartBookingInput) (*booking.StartResult, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Service        string
	GraphQL        http.Handler
	Checkout       Checkout
	PublishableKey string
	DB             Pinger
	Limiter        *middleware.RateLimiter
	CORSOrigins    []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics(d.Service))
	r.Use(middleware.CORS(d.CORSOrigins))

	r.Get("/health", health(d.DB))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(d.RequestTimeout))
		if d.Limiter != nil {
			r.Use(middleware.RateLimit(d.Limiter))
		}
		r.Handle("/graphql", d.GraphQL)
		r.Route("/checkOut", func(r chi.Router) {
			r.Get("/config", checkoutConfig(d.PublishableKey))
			r.Post("/create-payment-intent", createPaymentIntent(d.Checkout))
		})
	})
	return r
}
