package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/proofledger/internal/ledger"
	"github.com/hazyhaar/proofledger/internal/service"
)

// statusFor maps a ledger failure onto the HTTP status clients act on.
func statusFor(k ledger.Kind) int {
	if k == ledger.InvalidSubmissionID {
		return http.StatusNotFound
	}
	switch k.Class() {
	case ledger.ClassAuthorization:
		return http.StatusForbidden
	case ledger.ClassValidation:
		return http.StatusBadRequest
	case ledger.ClassTemporal:
		return http.StatusGone
	case ledger.ClassBusiness:
		return http.StatusUnprocessableEntity
	case ledger.ClassCapacity:
		return http.StatusTooManyRequests
	}
	return http.StatusConflict
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  uint16 `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var body errorBody
	status := http.StatusInternalServerError

	var le *ledger.Error
	switch {
	case errors.As(err, &le):
		status = statusFor(le.Kind)
		body = errorBody{Error: err.Error(), Kind: le.Kind.String(), Code: uint16(le.Kind)}
	case errors.Is(err, ledger.ErrNotInitialized):
		status = http.StatusServiceUnavailable
		body.Error = "ledger not initialized"
	case errors.Is(err, service.ErrMalformed):
		status = http.StatusBadRequest
		body.Error = err.Error()
	default:
		slog.Error("request failed", "error", err)
		body.Error = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
