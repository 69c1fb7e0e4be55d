package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/oneone404/One-Shield-sub000/internal/apperror"
	"github.com/oneone404/One-Shield-sub000/internal/logging"
	"github.com/oneone404/One-Shield-sub000/pkg/agentapi"
)

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps an error chain onto the wire error shape. The internal
// cause is logged server-side; the client sees only the taxonomy message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperror.KindOf(err)
	status := apperror.HTTPStatus(kind)

	var appErr *apperror.Error
	hasCause := errors.As(err, &appErr) && appErr.Err != nil
	if hasCause || kind == apperror.KindInternal || kind == apperror.KindDatabase {
		log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Str("request_id", logging.RequestIDFrom(r.Context())).
			Msg("Request error")
	}

	writeJSON(w, status, agentapi.ErrorResponse{
		Error:  apperror.PublicMessage(err),
		Status: status,
	})
}

// storeErr passes categorized errors through and wraps raw storage
// failures as database errors.
func storeErr(err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Database(err)
}

// decodeJSON parses a JSON request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.Validation("Invalid request body")
	}
	return nil
}
