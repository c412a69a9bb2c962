package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	NumWorkers        int
	FanoutConcurrency int

	FailureWindow    time.Duration
	FailureThreshold int

	MaxRetryAttempts   int
	RetryBaseDelay     time.Duration
	RetryDrainInterval time.Duration

	HTTPTimeout          time.Duration
	SubscriptionCacheTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return &Config{
		Port:        port,
		DatabaseURL: dbURL,
		RedisURL:    redisURL,

		NumWorkers:        getEnvInt("NUM_WORKERS", 50),
		FanoutConcurrency: getEnvInt("FANOUT_CONCURRENCY", 32),

		FailureWindow:    time.Duration(getEnvInt("FAILURE_WINDOW_SECONDS", 3600)) * time.Second,
		FailureThreshold: getEnvInt("FAILURE_THRESHOLD", 3),

		MaxRetryAttempts:   getEnvInt("MAX_RETRY_ATTEMPTS", 5),
		RetryBaseDelay:     time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		RetryDrainInterval: time.Duration(getEnvInt("RETRY_DRAIN_INTERVAL_MS", 5000)) * time.Millisecond,

		HTTPTimeout:          time.Duration(getEnvInt("HTTP_TIMEOUT_MS", 10000)) * time.Millisecond,
		SubscriptionCacheTTL: time.Duration(getEnvInt("SUBSCRIPTION_CACHE_TTL_SECONDS", 3600)) * time.Second,
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
