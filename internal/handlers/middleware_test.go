package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/savesync.net/internal/adapter/crypto"
	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/domain"
)

func callerEcho(seen *domain.Caller, found *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*seen, *found = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}
}

func TestJWTMiddleware(t *testing.T) {
	secrets := crypto.NewJWTService(&config.JwtConfig{Secret: "test", TokenHashCost: 4})
	mw := NewMiddleware(secrets)
	token, err := secrets.IssueAuthToken(context.Background(), domain.AuthPayload{UserID: "u1", Username: "alice", IsAdmin: true})
	require.NoError(t, err)

	var seen domain.Caller
	var found bool
	handler := mw.JWTMiddleware(callerEcho(&seen, &found))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"forged token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.True(t, found)
	assert.Equal(t, domain.Caller{UserID: "u1", Username: "alice", IsAdmin: true}, seen)
}

func TestOptionalJWT(t *testing.T) {
	secrets := crypto.NewJWTService(&config.JwtConfig{Secret: "test", TokenHashCost: 4})
	mw := NewMiddleware(secrets)

	var seen domain.Caller
	found := true
	handler := mw.OptionalJWT(callerEcho(&seen, &found))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, found)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
