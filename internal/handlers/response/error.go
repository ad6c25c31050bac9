package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"gitlab.com/savesync.net/internal/static/errs"
)

type ErrorMessage struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func WriteError(w http.ResponseWriter, err ErrorMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}

func WriteSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

var statusByError = []struct {
	err    error
	status int
}{
	{errs.ErrMissingClientID, http.StatusBadRequest},
	{errs.ErrInvalidClientID, http.StatusBadRequest},
	{errs.ErrInvalidOperation, http.StatusBadRequest},
	{errs.ErrMissingUserID, http.StatusBadRequest},
	{errs.ErrMissingToken, http.StatusUnauthorized},
	{errs.ErrInvalidToken, http.StatusUnauthorized},
	{errs.ErrForbidden, http.StatusForbidden},
	{errs.ErrWorkerNotFound, http.StatusNotFound},
	{errs.ErrOperationNotFound, http.StatusNotFound},
	{errs.ErrGameNotFound, http.StatusNotFound},
	{errs.ErrAccountNotFound, http.StatusNotFound},
	{errs.ErrWorkerClaimConflict, http.StatusConflict},
	{errs.ErrWorkerOffline, http.StatusConflict},
	{errs.ErrNoWorkerAvailable, http.StatusConflict},
}

// StatusFor maps a service error to its HTTP status; unknown errors are infrastructure failures
func StatusFor(err error) int {
	for _, entry := range statusByError {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusServiceUnavailable
}

// FromError builds the error body for err. Infrastructure details are not exposed.
func FromError(err error) ErrorMessage {
	status := StatusFor(err)
	message := err.Error()
	if status == http.StatusServiceUnavailable {
		message = "service temporarily unavailable"
	}
	return ErrorMessage{Message: message, StatusCode: status}
}
