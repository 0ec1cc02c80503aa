package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	Outcome   any    `json:"outcome,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, outcome any) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("server.request.failed", "path", r.URL.Path, "req_id", common.RequestIDFromContext(r.Context()), "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, RequestID: common.RequestIDFromContext(r.Context()), Outcome: outcome})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrMalformedDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrEmptyBill), errors.Is(err, common.ErrIncompleteBill):
		return http.StatusConflict
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
