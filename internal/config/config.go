package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Booking transaction configuration
	Booking BookingConfig

	// Redis configuration (seat events + advisory availability cache)
	Redis RedisConfig

	// Inventory audit configuration
	Audit AuditConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	Driver             string // "postgres" (lib/pq) or "pgx" (jackc/pgx stdlib)
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds the retry policy for seat reservation transactions
type BookingConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxTotalWait time.Duration
	LockTimeout  time.Duration // per-attempt lock_timeout, 0 disables
	EventTimeout time.Duration // budget for publishing one seat event
}

// RedisConfig holds Redis connection settings. An empty URL disables events and caching.
type RedisConfig struct {
	URL           string
	ChannelPrefix string
	CacheTTL      time.Duration
}

// AuditConfig holds the inventory audit schedule
type AuditConfig struct {
	Enabled  bool
	CronSpec string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 20),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			MaxRetries:   getEnvAsInt("BOOKING_TX_MAX_RETRIES", 5),
			BaseDelay:    time.Duration(getEnvAsInt("BOOKING_TX_BASE_DELAY_MS", 20)) * time.Millisecond,
			MaxDelay:     time.Duration(getEnvAsInt("BOOKING_TX_MAX_DELAY_MS", 500)) * time.Millisecond,
			MaxTotalWait: time.Duration(getEnvAsInt("BOOKING_TX_MAX_TOTAL_WAIT_MS", 2000)) * time.Millisecond,
			LockTimeout:  time.Duration(getEnvAsInt("BOOKING_TX_LOCK_TIMEOUT_MS", 3000)) * time.Millisecond,
			EventTimeout: time.Duration(getEnvAsInt("BOOKING_EVENT_TIMEOUT_MS", 2000)) * time.Millisecond,
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", ""),
			ChannelPrefix: getEnv("REDIS_SEAT_CHANNEL_PREFIX", "seats:"),
			CacheTTL:      time.Duration(getEnvAsInt("AVAILABILITY_CACHE_TTL_SECONDS", 5)) * time.Second,
		},
		Audit: AuditConfig{
			Enabled:  getEnvAsBool("AUDIT_ENABLED", true),
			CronSpec: getEnv("AUDIT_CRON", "0 */15 * * * *"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'pgx')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.MaxRetries < 0 {
		return fmt.Errorf("BOOKING_TX_MAX_RETRIES cannot be negative")
	}

	if c.Booking.BaseDelay <= 0 {
		return fmt.Errorf("BOOKING_TX_BASE_DELAY_MS must be positive")
	}

	if c.Booking.MaxDelay < c.Booking.BaseDelay {
		return fmt.Errorf("BOOKING_TX_MAX_DELAY_MS must be >= BOOKING_TX_BASE_DELAY_MS")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
