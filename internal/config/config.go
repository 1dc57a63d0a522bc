// Package config handles loading and validation of application configuration
// from environment variables. Supports .env files via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        int
	Environment string // "development" | "staging" | "production"

	// Record store
	StoreDriver string // "postgres" | "sqlite" | "memory"
	DatabaseURL string
	SQLitePath  string

	// Security
	JWTSecret      string
	AllowedOrigins []string
	RateLimitRPM   int

	// Redis (for rate limiting)
	RedisURL string

	// Bootstrap admin (seeded when the user table is empty)
	AdminEmail    string
	AdminPassword string

	// Priority scoring weights override (YAML); empty uses built-ins
	PriorityWeightsFile string

	// Chain auditor
	AuditIntervalMinutes int

	// Frontend build to serve at /
	StaticDir string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: getEnv("ENVIRONMENT", "development"),

		StoreDriver: getEnv("STORE_DRIVER", "sqlite"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "data/custody.db"),

		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"), ","),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 120),

		RedisURL: getEnv("REDIS_URL", ""),

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@fasttrack.local"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "ChangeMe123!"),

		PriorityWeightsFile: getEnv("PRIORITY_WEIGHTS_FILE", ""),

		AuditIntervalMinutes: getEnvInt("AUDIT_INTERVAL_MINUTES", 15),

		StaticDir: getEnv("STATIC_DIR", "../dist"),
	}

	switch cfg.StoreDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be postgres, sqlite or memory, got %q", cfg.StoreDriver)
	}

	// Validate required fields in production
	if cfg.Environment == "production" {
		if cfg.StoreDriver == "postgres" && cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required in production")
		}
		if cfg.StoreDriver == "memory" {
			return nil, fmt.Errorf("memory store is not allowed in production")
		}
		if cfg.JWTSecret == "dev-secret-change-in-production" {
			return nil, fmt.Errorf("JWT_SECRET must be set in production")
		}
		if cfg.AdminPassword == "ChangeMe123!" {
			return nil, fmt.Errorf("ADMIN_PASSWORD must be set in production")
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}
