package httpapi

import (
	"net/http"

	"tutoring-api/internal/handler"
)

type configResponse struct {
	PublishableKey string `json:"publishableKey"`
}

type intentResponse struct {
	ClientSecret string `json:"clientSecret"`
	BookingID    string `json:"bookingId"`
	IntentID     string `json:"intentId"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	State        string `json:"state"`
}

func checkoutConfig(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, configResponse{PublishableKey: key})
	}
}

func createPaymentIntent(c Checkout) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in handler.StartBookingInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := c.StartBooking(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, intentResponse{
			ClientSecret: res.ClientSecret,
			BookingID:    res.BookingID,
			IntentID:     res.IntentID,
			Amount:       res.Amount,
			Currency:     res.Currency,
			State:        string(res.State),
		})
	}
}
