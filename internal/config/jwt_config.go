package config

import "os"

type JwtConfig struct {
	Secret string
	// TokenHashCost is the bcrypt cost used for worker transport tokens
	TokenHashCost int
}

func NewJwtConfig() *JwtConfig {
	return &JwtConfig{
		Secret:        os.Getenv("JWT_SECRET"),
		TokenHashCost: getIntEnv("WORKER_TOKEN_HASH_COST", 10),
	}
}
