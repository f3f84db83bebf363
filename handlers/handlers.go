// Package handlers provides HTTP request handlers for the price-per-unit
// savings endpoints, with input validation and JSON response formatting.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/savings"
	"github.com/giygas/ppu-savings/store/postgres"
)

// RespondWithJSON writes a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	RespondWithJSON(w, code, errorResponse)
}

// errorStatus maps engine and store errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, savings.ErrDateNotFound), errors.Is(err, savings.ErrOrgNotFound):
		return http.StatusNotFound
	case errors.Is(err, savings.ErrNoMinimumSaving), errors.Is(err, orgs.ErrUnknownOrgType):
		return http.StatusBadRequest
	case errors.Is(err, postgres.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithEngineError logs server-side failures and hides their detail
func respondWithEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		logging.Error("Savings query failed", "path", r.URL.Path, "query", r.URL.RawQuery, "error", err)
		RespondWithError(w, code, "The savings could not be calculated, please try again later")
		return
	}
	RespondWithError(w, code, err.Error())
}
