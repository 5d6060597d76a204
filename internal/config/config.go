package config

import (
	"os"
	"time"
)

type Config struct {
	HTTPPort      string
	GRPCPort      string
	DatabaseDSN   string
	RedisURL      string
	AuthURL       string
	ViewCacheTTL  time.Duration
	SweepInterval time.Duration
}

func Load() *Config {
	return &Config{
		HTTPPort:      getEnv("HTTP_PORT", "8080"),
		GRPCPort:      getEnv("GRPC_PORT", "50051"),
		DatabaseDSN:   getEnv("DATABASE_DSN", "planner:planner@tcp(localhost:3306)/planner?parseTime=true&loc=UTC"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AuthURL:       getEnv("AUTH_URL", ""),
		ViewCacheTTL:  getDuration("VIEW_CACHE_TTL", 2*time.Minute),
		SweepInterval: getDuration("SWEEP_INTERVAL", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
