package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"tutord/internal/dispatcher"
	"tutord/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps dispatcher failures onto HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case dispatcher.IsTimeout(err):
		return http.StatusGatewayTimeout
	case dispatcher.IsBusy(err):
		return http.StatusTooManyRequests
	case dispatcher.IsStartupFailure(err), dispatcher.IsEngineClosed(err):
		return http.StatusServiceUnavailable
	case dispatcher.IsEngineError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeServiceError maps err and writes it. Nothing is written when the client
// is gone or the server is shutting down.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	if serverBaseCtx.Err() != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	status := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("engine_busy")
	}
	if zlog != nil {
		z := zlog.Warn().Int("status", status).Str("path", r.URL.Path)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Err(err).Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
