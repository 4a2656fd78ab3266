package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stationauth/stationauth/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// SSO configuration
	SSO SSOConfig

	// Cascade configuration
	Cascade CascadeConfig

	// Notifier configuration
	Notify NotifyConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// RedisConfig holds the tier cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	CacheTTL time.Duration
}

// SSOConfig holds OIDC settings for the game SSO
type SSOConfig struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// CascadeConfig holds propagator concurrency settings
type CascadeConfig struct {
	Workers      int
	QueueSize    int
	BatchWorkers int
}

// NotifyConfig holds dependent notifier settings
type NotifyConfig struct {
	ConfigPath      string
	MaxAttempts     int
	InitialDelay    time.Duration
	DeliveryTimeout time.Duration

	// ForumURL enables the forum service when set.
	ForumURL   string
	ForumToken string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("STATIONAUTH_HOST", "0.0.0.0"),
			Port:            getEnv("STATIONAUTH_PORT", "8080"),
			ReadTimeout:     getEnvDuration("STATIONAUTH_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("STATIONAUTH_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("STATIONAUTH_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("STATIONAUTH_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("STATIONAUTH_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("STATIONAUTH_POSTGRES_URL", ""),
			MaxConns: getEnvInt("STATIONAUTH_POSTGRES_MAX_CONNS", 25),
			MinConns: getEnvInt("STATIONAUTH_POSTGRES_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("STATIONAUTH_REDIS_ENABLED", false),
			Addr:     getEnv("STATIONAUTH_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("STATIONAUTH_REDIS_PASSWORD", ""),
			CacheTTL: getEnvDuration("STATIONAUTH_REDIS_CACHE_TTL", 5*time.Minute),
		},
		SSO: SSOConfig{
			Enabled:      getEnvBool("STATIONAUTH_SSO_ENABLED", false),
			IssuerURL:    getEnv("STATIONAUTH_SSO_ISSUER_URL", ""),
			ClientID:     getEnv("STATIONAUTH_SSO_CLIENT_ID", ""),
			ClientSecret: getEnv("STATIONAUTH_SSO_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("STATIONAUTH_SSO_REDIRECT_URL", ""),
			Scopes:       getEnvList("STATIONAUTH_SSO_SCOPES", []string{"openid"}),
		},
		Cascade: CascadeConfig{
			Workers:      getEnvInt("STATIONAUTH_CASCADE_WORKERS", 2),
			QueueSize:    getEnvInt("STATIONAUTH_CASCADE_QUEUE_SIZE", 256),
			BatchWorkers: getEnvInt("STATIONAUTH_CASCADE_BATCH_WORKERS", 8),
		},
		Notify: NotifyConfig{
			ConfigPath:      getEnv("STATIONAUTH_NOTIFY_CONFIG", ""),
			MaxAttempts:     getEnvInt("STATIONAUTH_NOTIFY_MAX_ATTEMPTS", 5),
			InitialDelay:    getEnvDuration("STATIONAUTH_NOTIFY_INITIAL_DELAY", time.Second),
			DeliveryTimeout: getEnvDuration("STATIONAUTH_NOTIFY_DELIVERY_TIMEOUT", 10*time.Minute),
			ForumURL:        getEnv("STATIONAUTH_FORUM_URL", ""),
			ForumToken:      getEnv("STATIONAUTH_FORUM_TOKEN", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("STATIONAUTH_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("STATIONAUTH_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required when the tier cache is enabled")
	}

	if c.SSO.Enabled {
		if c.SSO.IssuerURL == "" {
			return fmt.Errorf("SSO issuer URL is required when SSO is enabled")
		}
		if c.SSO.ClientID == "" || c.SSO.ClientSecret == "" {
			return fmt.Errorf("SSO client credentials are required when SSO is enabled")
		}
		if c.SSO.RedirectURL == "" {
			return fmt.Errorf("SSO redirect URL is required when SSO is enabled")
		}
	}

	if c.Cascade.Workers <= 0 {
		return fmt.Errorf("cascade workers must be positive")
	}
	if c.Cascade.BatchWorkers <= 0 {
		return fmt.Errorf("cascade batch workers must be positive")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
