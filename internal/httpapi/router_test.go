package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/booking"
	"tutoring-api/internal/handler"
	"tutoring-api/internal/httpapi"
	"tutoring-api/internal/middleware"
	"tutoring-api/internal/model"
)

type fakeCheckout struct {
	got handler.StartBookingInput
	err error
}

func (f *fakeCheckout) StartBooking(_ context.Context, in handler.StartBookingInput) (*booking.StartResult, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &booking.StartResult{BookingID: in.IdempotencyKey, IntentID: "pi_1", ClientSecret: "pi_1_secret_x",
		Amount: 4550, Currency: "usd", State: model.BookingAwaitingConfirmation}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newServer(t *testing.T, c *fakeCheckout, db pinger, limiter *middleware.RateLimiter) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Service:        "httpapi-test",
		GraphQL:        http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }),
		Checkout:       c,
		PublishableKey: "pk_test_123",
		DB:             db,
		Limiter:        limiter,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestCheckout(t *testing.T) {
	t.Run("Should expose the publishable key", func(t *testing.T) {
		srv := newServer(t, &fakeCheckout{}, pinger{}, nil)
		resp, err := http.Get(srv.URL + "/checkOut/config")
		require.NoError(t, err)
		var body map[string]string
		decode(t, resp, &body)
		assert.Equal(t, "pk_test_123", body["publishableKey"])
		assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	})

	t.Run("Should start a booking and return the client secret", func(t *testing.T) {
		c := &fakeCheckout{}
		srv := newServer(t, c, pinger{}, nil)
		resp, err := http.Post(srv.URL+"/checkOut/create-payment-intent", "application/json", strings.NewReader(
			`{"userId":"s1","tutorId":"t1","postId":"p1","date":"2099-03-01","idempotencyKey":"6f1c2a7e-1d1e-4c55-9a57-3c1f0d3b9d11"}`))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]any
		decode(t, resp, &body)
		assert.Equal(t, "pi_1_secret_x", body["clientSecret"])
		assert.Equal(t, "6f1c2a7e-1d1e-4c55-9a57-3c1f0d3b9d11", body["bookingId"])
		assert.Equal(t, float64(4550), body["amount"])
		assert.Equal(t, "2099-03-01", c.got.Date)
	})

	t.Run("Should reject malformed bodies before starting anything", func(t *testing.T) {
		c := &fakeCheckout{}
		srv := newServer(t, c, pinger{}, nil)
		for _, body := range []string{"", "{", `{"userId":"s1","surprise":true}`} {
			resp, err := http.Post(srv.URL+"/checkOut/create-payment-intent", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
			var out map[string]string
			decode(t, resp, &out)
			assert.Equal(t, "VALIDATION_ERROR", out["error"])
		}
		assert.Empty(t, c.got.UserID)
	})

	t.Run("Should map error kinds onto statuses", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{apperr.Constraint("booking.Start", "slot already booked", nil), http.StatusConflict, "CONSTRAINT_VIOLATION"},
			{apperr.NotFound("booking.Start", "tutor"), http.StatusNotFound, "NOT_FOUND"},
			{apperr.Wrap(apperr.KindProcessorUnavailable, "payment.CreateIntent", errors.New("dial tcp: refused")),
				http.StatusServiceUnavailable, "PAYMENT_PROCESSOR_UNAVAILABLE"},
			{errors.New("pq: secret detail"), http.StatusInternalServerError, "INTERNAL"},
		}
		for _, tc := range cases {
			srv := newServer(t, &fakeCheckout{err: tc.err}, pinger{}, nil)
			resp, err := http.Post(srv.URL+"/checkOut/create-payment-intent", "application/json",
				strings.NewReader(`{"userId":"s1","tutorId":"t1","postId":"p1","date":"2099-03-01"}`))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			var out map[string]string
			decode(t, resp, &out)
			assert.Equal(t, tc.code, out["error"])
			assert.NotContains(t, out["message"], "secret detail")
			assert.NotContains(t, out["message"], "refused")
		}
	})

	t.Run("Should rate limit per client", func(t *testing.T) {
		srv := newServer(t, &fakeCheckout{}, pinger{}, middleware.NewRateLimiter(0.001, 1))
		first, err := http.Get(srv.URL + "/checkOut/config")
		require.NoError(t, err)
		first.Body.Close()
		second, err := http.Get(srv.URL + "/checkOut/config")
		require.NoError(t, err)
		second.Body.Close()
		assert.Equal(t, http.StatusOK, first.StatusCode)
		assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	})
}

func TestRoutes(t *testing.T) {
	t.Run("Should mount graphql", func(t *testing.T) {
		srv := newServer(t, &fakeCheckout{}, pinger{}, nil)
		resp, err := http.Post(srv.URL+"/graphql", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	})

	t.Run("Should report health from the store", func(t *testing.T) {
		for _, tc := range []struct {
			db     pinger
			status int
			want   string
		}{
			{pinger{}, http.StatusOK, "ok"},
			{pinger{err: errors.New("down")}, http.StatusServiceUnavailable, "degraded"},
		} {
			srv := newServer(t, &fakeCheckout{}, tc.db, nil)
			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			var body map[string]string
			decode(t, resp, &body)
			assert.Equal(t, tc.want, body["status"])
		}
	})

	t.Run("Should serve metrics", func(t *testing.T) {
		srv := newServer(t, &fakeCheckout{}, pinger{}, nil)
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
