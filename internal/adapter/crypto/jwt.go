package crypto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"gitlab.com/savesync.net/internal/config"
	"gitlab.com/savesync.net/internal/core/ports/primary"
	"gitlab.com/savesync.net/internal/domain"
	"gitlab.com/savesync.net/internal/static/errs"
)

var _ primary.JWTService = (*JWTServiceImpl)(nil)

const defaultTokenLifetime = time.Hour

type JWTServiceImpl struct {
	HMACSecretKey string
	HashCost      int
}

func NewJWTService(jwtConfig *config.JwtConfig) *JWTServiceImpl {
	cost := jwtConfig.TokenHashCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &JWTServiceImpl{
		HMACSecretKey: jwtConfig.Secret,
		HashCost:      cost,
	}
}

func (J JWTServiceImpl) GenerateTokenHMAC(ctx context.Context, method string, claims map[string]interface{}) (string, error) {
	signingMethod := jwt.GetSigningMethod(method)
	if signingMethod == nil {
		return "", fmt.Errorf("unsupported signing method: %s", method)
	}

	if _, exists := claims["exp"]; !exists {
		claims["exp"] = time.Now().Add(defaultTokenLifetime).Unix()
	}

	tok := jwt.NewWithClaims(signingMethod, jwt.MapClaims(claims))
	return tok.SignedString([]byte(J.HMACSecretKey))
}

func (J JWTServiceImpl) VerifyTokenHMAC(ctx context.Context, token string, method string) (bool, error) {
	parsed, err := J.parse(token, method)
	if err != nil {
		return false, err
	}
	return parsed.Valid, nil
}

// IssueAuthToken signs an HS256 token carrying payload
func (J JWTServiceImpl) IssueAuthToken(ctx context.Context, payload domain.AuthPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth payload: %w", err)
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", fmt.Errorf("failed to build claims: %w", err)
	}
	return J.GenerateTokenHMAC(ctx, jwt.SigningMethodHS256.Name, claims)
}

// ParseAuthPayload verifies token and decodes its claims
func (J JWTServiceImpl) ParseAuthPayload(ctx context.Context, token string) (domain.AuthPayload, error) {
	if token == "" {
		return domain.AuthPayload{}, errs.ErrMissingToken
	}
	parsed, err := J.parse(token, jwt.SigningMethodHS256.Name)
	if err != nil || !parsed.Valid {
		return domain.AuthPayload{}, errs.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.AuthPayload{}, errs.ErrInvalidToken
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return domain.AuthPayload{}, fmt.Errorf("failed to decode token payload: %w", err)
	}
	var payload domain.AuthPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.AuthPayload{}, fmt.Errorf("failed to parse AuthPayload: %w", err)
	}
	if payload.UserID == "" {
		return domain.AuthPayload{}, errs.ErrInvalidToken
	}
	return payload, nil
}

func (J JWTServiceImpl) parse(token string, method string) (*jwt.Token, error) {
	if jwt.GetSigningMethod(method) == nil {
		return nil, fmt.Errorf("unsupported signing method: %s", method)
	}
	return jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(J.HMACSecretKey), nil
	}, jwt.WithValidMethods([]string{method}))
}

// HashSecret hashes a worker transport token for storage
func (J JWTServiceImpl) HashSecret(ctx context.Context, secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), J.HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (J JWTServiceImpl) VerifySecret(ctx context.Context, secretHash string, secret string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
