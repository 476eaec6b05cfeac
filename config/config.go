// Package config loads the application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	Environment string

	// Local document store
	MongoURI      string
	MongoDatabase string

	// Remote todo service
	TodoAPIBaseURL string
	TodoAPITimeout time.Duration

	// Rate limiting
	RateLimit      float64
	RateBurst      int

	// CORS
	AllowedOrigins []string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	originsEnv := getEnv("ALLOWED_ORIGINS", "")
	var origins []string
	if originsEnv != "" {
		origins = strings.Split(originsEnv, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	return &Config{
		Port:        getEnv("PORT", "3000"),
		Environment: getEnv("APP_ENV", "development"),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/taskdb"),
		MongoDatabase: getEnv("MONGO_DATABASE", "taskdb"),

		TodoAPIBaseURL: getEnv("TODO_API_BASE_URL", "https://jsonplaceholder.typicode.com"),
		TodoAPITimeout: getDurationEnv("TODO_API_TIMEOUT", 10*time.Second),

		RateLimit: getFloatEnv("RATE_LIMIT", 2),
		RateBurst: getIntEnv("RATE_BURST", 20),

		AllowedOrigins: origins,
	}
}

// IsProduction reports whether the service runs in a production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
