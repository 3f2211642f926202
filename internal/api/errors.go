package api

import (
	"encoding/json"
	"net/http"

	"github.com/pagent-credits/backend/internal/errors"
	"github.com/pagent-credits/backend/internal/logging"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logging.WithError(err).Error("failed to encode response")
		}
	}
}

// respondSuccess sends a success envelope with the given payload fields
func respondSuccess(w http.ResponseWriter, statusCode int, payload map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	respondJSON(w, statusCode, body)
}

// respondError maps any error onto the taxonomy and sends the failure
// envelope. Internal causes are logged here and never serialized, so store
// and provider error text cannot leak to clients.
func respondError(w http.ResponseWriter, err error) {
	e := errors.AsError(err)
	if e.Cause != nil {
		logging.WithError(e.Cause).WithField("code", e.Code).Error("request failed")
	}
	respondJSON(w, e.StatusCode, map[string]interface{}{
		"success": false,
		"code":    e.Code,
		"error":   e.Message,
	})
}

// parseJSONBody parses a JSON request body
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(v)
}
