package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // DISPLAY_TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	NewRelic     NewRelicConfig
	Auth         AuthConfig
	Cancellation CancellationConfig
	Display      DisplayConfig
	NSQ          NSQConfig
	Log          LogConfig
}

// Record store backends.
const (
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AllowedOrigins empty means every origin is allowed.
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// AuthConfig holds bearer token validation settings.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// CancellationConfig holds the cancellation rules.
type CancellationConfig struct {
	Window          time.Duration
	RefundPolicy    string
	LockTTL         time.Duration
	ProfileCacheTTL time.Duration
	IdempotencyTTL  time.Duration
	EffectTimeout   time.Duration
}

// DisplayConfig holds presentation settings.
type DisplayConfig struct {
	Timezone string
}

// NSQConfig holds the event publisher address. Empty disables publishing.
type NSQConfig struct {
	Addr string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
}

// Load reads an optional .env file, then loads configuration from environment
// variables. Variables already set in the environment win over the file.
func Load() *Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),

			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", StoreBackendRedis),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ridebook"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ridebook"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
		},
		Cancellation: CancellationConfig{
			Window:          getDurationEnv("CANCELLATION_WINDOW", 15*time.Minute),
			RefundPolicy:    getEnv("REFUND_POLICY", "all-or-nothing"),
			LockTTL:         getDurationEnv("CANCELLATION_LOCK_TTL", 30*time.Second),
			ProfileCacheTTL: getDurationEnv("PROFILE_CACHE_TTL", 5*time.Minute),
			IdempotencyTTL:  getDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour),
			EffectTimeout:   getDurationEnv("EFFECT_TIMEOUT", 10*time.Second),
		},
		Display: DisplayConfig{
			Timezone: getEnv("DISPLAY_TIMEZONE", "Africa/Cairo"),
		},
		NSQ: NSQConfig{
			Addr: getEnv("NSQ_ADDR", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Store.Backend {
	case StoreBackendRedis, StoreBackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}
	switch c.Cancellation.RefundPolicy {
	case "all-or-nothing", "per-seat":
	default:
		errs = append(errs, fmt.Errorf("unknown REFUND_POLICY %q", c.Cancellation.RefundPolicy))
	}
	if c.Cancellation.Window <= 0 {
		errs = append(errs, errors.New("CANCELLATION_WINDOW must be positive"))
	}
	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
