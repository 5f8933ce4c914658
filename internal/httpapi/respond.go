package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/logger"
)

const maxBody = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {error, message} with its kind's status. Detail of
// unexpected failures is logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindStoreUnavailable, apperr.KindProcessorUnavailable, apperr.KindBookedPendingRetry:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
	}
	pub := apperr.Public(err)
	writeJSON(w, pub.Kind.HTTPStatus(), errorResponse{Error: pub.Kind.Code(), Message: pub.PublicMessage()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	const op = "httpapi.decode"
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation(op, "request body is empty")
		case errors.As(err, &tooBig):
			return apperr.Validation(op, "request body too large")
		default:
			return apperr.Validation(op, "malformed request body")
		}
	}
	return nil
}
