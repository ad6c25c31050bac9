package config

import (
	"os"
	"time"
)

type RegistryConfig struct {
	// WorkerTTL is how long a worker stays online without any sign of life
	WorkerTTL time.Duration
	// TokenTTL bounds the lifetime of an unused transport token
	TokenTTL time.Duration
	// MarkOfflineOnDisconnect treats a closed transport session as an immediate offline signal
	MarkOfflineOnDisconnect bool
}

func NewRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		WorkerTTL:               getSecondsEnv("WORKER_TTL_SEC", 60),
		TokenTTL:                getSecondsEnv("WORKER_TOKEN_TTL_SEC", 300),
		MarkOfflineOnDisconnect: os.Getenv("MARK_OFFLINE_ON_DISCONNECT") != "false",
	}
}
