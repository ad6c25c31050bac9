package handlers

import (
	"context"
	"net/http"
	"strings"

	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/domain"
)

type contextKey string

const callerKey contextKey = "caller"

type MiddlewareProvider struct {
	secrets primary.JWTService
}

func NewMiddleware(secrets primary.JWTService) *MiddlewareProvider {
	return &MiddlewareProvider{secrets: secrets}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	// Extract token from "Bearer <token>"
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// JWTMiddleware rejects requests without a valid bearer token and stores the caller in the context
func (m *MiddlewareProvider) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			ResponseError(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}

		payload, err := m.secrets.ParseAuthPayload(r.Context(), token)
		if err != nil {
			ResponseError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), payload.Caller())))
	})
}

// OptionalJWT attaches the caller when a token is sent; an invalid token is still rejected
func (m *MiddlewareProvider) OptionalJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		m.JWTMiddleware(next).ServeHTTP(w, r)
	})
}

// Protect wraps a handler function with JWTMiddleware
func (m *MiddlewareProvider) Protect(fn http.HandlerFunc) http.Handler {
	return m.JWTMiddleware(fn)
}

func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(domain.Caller)
	return caller, ok
}
