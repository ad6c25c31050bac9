package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/handlers/response"
)

func ResponseWithJson(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func ResponseError(w http.ResponseWriter, message string, code int) {
	response.WriteError(w, response.ErrorMessage{Message: message, StatusCode: code})
}

// ResponseServiceError writes the HTTP form of a service error, logging infrastructure failures
func ResponseServiceError(w http.ResponseWriter, logger primary.Logger, err error) {
	msg := response.FromError(err)
	if msg.StatusCode >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}
	response.WriteError(w, msg)
}

// DecodeJSON reads the request body into dst; an empty body leaves dst untouched
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
