package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/savesync.net/internal/static/errs"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.ErrInvalidOperation, http.StatusBadRequest},
		{fmt.Errorf("%w: remote_path is required", errs.ErrInvalidOperation), http.StatusBadRequest},
		{errs.ErrInvalidToken, http.StatusUnauthorized},
		{errs.ErrForbidden, http.StatusForbidden},
		{errs.ErrOperationNotFound, http.StatusNotFound},
		{errs.ErrWorkerClaimConflict, http.StatusConflict},
		{errs.ErrNoWorkerAvailable, http.StatusConflict},
		{errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteErrorHidesInfrastructureDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, FromError(errors.New("redis: connection pool timeout")))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotContains(t, body.Message, "redis")
}
