package config

import (
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	DebugMode      bool
	// CatalogBackend selects the catalog store: "postgres" or "memory"
	CatalogBackend string
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	JwtConfig      *JwtConfig
	RegistryConfig *RegistryConfig
	HTTPConfig     *HTTPConfig
	SweepConfig    *SweepConfig
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		CatalogBackend: getEnv("CATALOG_BACKEND", "postgres"),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		JwtConfig:      NewJwtConfig(),
		RegistryConfig: NewRegistryConfig(),
		HTTPConfig:     NewHTTPConfig(),
		SweepConfig:    NewSweepConfig(),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func getSecondsEnv(key string, fallback int) time.Duration {
	return time.Duration(getIntEnv(key, fallback)) * time.Second
}
