package primary

import (
	"context"

	"gitlab.com/savesync.net/internal/domain"
)

// JWTService signs and verifies caller tokens and hashes worker transport secrets
type JWTService interface {
	GenerateTokenHMAC(ctx context.Context, method string, claims map[string]interface{}) (string, error)
	VerifyTokenHMAC(ctx context.Context, token string, method string) (bool, error)
	ParseAuthPayload(ctx context.Context, token string) (domain.AuthPayload, error)
	IssueAuthToken(ctx context.Context, payload domain.AuthPayload) (string, error)
	HashSecret(ctx context.Context, secret string) (string, error)
	VerifySecret(ctx context.Context, secretHash string, secret string) (bool, error)
}
