package config

type HTTPConfig struct {
	Port        int
	ServiceName string
	// AllowedOrigins restricts websocket upgrades; empty allows any origin
	AllowedOrigins []string
}

func NewHTTPConfig() *HTTPConfig {
	cfg := &HTTPConfig{
		Port:        getIntEnv("HTTP_PORT", 8082),
		ServiceName: getEnv("SERVICE_NAME", "savesync-coordinator"),
	}
	if origin := getEnv("WS_ALLOWED_ORIGIN", ""); origin != "" {
		cfg.AllowedOrigins = []string{origin}
	}
	return cfg
}
