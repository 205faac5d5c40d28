package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Auth store kinds.
const (
	AuthStoreMemory   = "memory"
	AuthStorePostgres = "postgres"
)

// Config holds the application configuration with validation
type Config struct {
	// Application settings
	Port     int    `validate:"required,min=1,max=65535"`
	LogLevel string `validate:"required,oneof=debug info warn error"`

	// Upstream telemetry API
	Upstream UpstreamConfig `validate:"required"`

	// Dashboard behaviour
	Dashboard DashboardConfig `validate:"required"`

	// Auth placeholder
	AuthStore string `validate:"required,oneof=memory postgres"`

	// Database settings, used only by the postgres auth store
	Database DatabaseConfig

	// Security settings
	Security SecurityConfig `validate:"required"`

	// Performance settings
	Server ServerConfig `validate:"required"`
}

// UpstreamConfig holds telemetry API client configuration
type UpstreamConfig struct {
	URL            string        `validate:"required,url"`
	Timeout        time.Duration `validate:"required"`
	RetryAttempts  int           `validate:"min=0,max=10"`
	RetryDelay     time.Duration
	MaxPayloadSize int64 `validate:"min=1024"`
	Concurrency    int   `validate:"min=1"`
}

// DashboardConfig holds settings for the derived views
type DashboardConfig struct {
	CrashSource       string `validate:"oneof=payload synthetic"`
	CrashLookbackDays int    `validate:"min=1"`
	TrendPoints       int    `validate:"min=1"`
	CacheTTL          time.Duration
	RefreshInterval   time.Duration `validate:"required"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"required,min=1,max=65535"`
	User            string `validate:"required"`
	Password        string `validate:"required"`
	Name            string `validate:"required"`
	SSLMode         string `validate:"required,oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int    `validate:"min=1"`
	MaxIdleConns    int    `validate:"min=1"`
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimitRPS    int           `validate:"min=1"`
	RateLimitBurst  int           `validate:"min=1"`
	RequestTimeout  time.Duration `validate:"required"`
	ShutdownTimeout time.Duration `validate:"required"`
	EnableCORS      bool
	AllowedOrigins  []string
	TrustedProxies  []string
}

// ServerConfig holds server performance configuration
type ServerConfig struct {
	ReadTimeout    time.Duration `validate:"required"`
	WriteTimeout   time.Duration `validate:"required"`
	IdleTimeout    time.Duration `validate:"required"`
	MaxHeaderBytes int           `validate:"min=1024"`
}

// LoadConfig loads and validates the configuration from environment variables.
// Variables from a .env file in the working directory are applied first when
// the file exists; real environment variables take precedence.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates the configuration from the current
// environment only.
func FromEnv() (*Config, error) {
	config := &Config{
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Upstream: UpstreamConfig{
			URL:            getEnv("UPSTREAM_API_URL", ""),
			Timeout:        getEnvAsDuration("UPSTREAM_TIMEOUT", 10*time.Second),
			RetryAttempts:  getEnvAsInt("UPSTREAM_RETRY_ATTEMPTS", 2),
			RetryDelay:     getEnvAsDuration("UPSTREAM_RETRY_DELAY", 500*time.Millisecond),
			MaxPayloadSize: getEnvAsInt64("UPSTREAM_MAX_PAYLOAD_SIZE", 10*1024*1024),
			Concurrency:    getEnvAsInt("UPSTREAM_CONCURRENCY", 4),
		},

		Dashboard: DashboardConfig{
			CrashSource:       getEnv("CRASH_SOURCE", "payload"),
			CrashLookbackDays: getEnvAsInt("CRASH_LOOKBACK_DAYS", 30),
			TrendPoints:       getEnvAsInt("TREND_POINTS", 10),
			CacheTTL:          getEnvAsDuration("CACHE_TTL", 15*time.Second),
			RefreshInterval:   getEnvAsDuration("DASHBOARD_REFRESH", 60*time.Second),
		},

		AuthStore: getEnv("AUTH_STORE", AuthStoreMemory),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},

		Security: SecurityConfig{
			RateLimitRPS:    getEnvAsInt("RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 200),
			RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			EnableCORS:      getEnvAsBool("ENABLE_CORS", true),
			AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
			TrustedProxies:  getEnvAsSlice("TRUSTED_PROXIES", []string{}),
		},

		Server: ServerConfig{
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxHeaderBytes: getEnvAsInt("SERVER_MAX_HEADER_BYTES", 1<<20), // 1MB
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// validateConfig performs basic validation on the configuration
func validateConfig(config *Config) error {
	var errors []string

	// Validate upstream URL
	if config.Upstream.URL == "" {
		errors = append(errors, "upstream API URL is required")
	} else if u, err := url.Parse(config.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "upstream API URL must be an absolute URL")
	}
	if config.Upstream.RetryAttempts < 0 || config.Upstream.RetryAttempts > 10 {
		errors = append(errors, "upstream retry attempts must be between 0 and 10")
	}
	if config.Upstream.Concurrency < 1 {
		errors = append(errors, "upstream concurrency must be at least 1")
	}

	switch config.Dashboard.CrashSource {
	case "payload", "synthetic":
	default:
		errors = append(errors, "crash source must be payload or synthetic")
	}
	if config.Dashboard.CrashLookbackDays < 1 {
		errors = append(errors, "crash lookback must be at least 1 day")
	}
	if config.Dashboard.TrendPoints < 1 {
		errors = append(errors, "trend points must be at least 1")
	}
	if config.Dashboard.RefreshInterval <= 0 {
		errors = append(errors, "dashboard refresh interval must be positive")
	}

	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, "log level must be one of debug, info, warn, error")
	}

	// Database fields are only required when users live in postgres
	switch config.AuthStore {
	case AuthStoreMemory:
	case AuthStorePostgres:
		if config.Database.User == "" {
			errors = append(errors, "database user is required")
		}
		if config.Database.Password == "" {
			errors = append(errors, "database password is required in production")
		}
		if config.Database.Name == "" {
			errors = append(errors, "database name is required")
		}
		if config.Database.Port < 1 || config.Database.Port > 65535 {
			errors = append(errors, "database port must be between 1 and 65535")
		}
	default:
		errors = append(errors, "auth store must be memory or postgres")
	}

	// Validate port ranges
	if config.Port < 1 || config.Port > 65535 {
		errors = append(errors, "port must be between 1 and 65535")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
