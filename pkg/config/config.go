package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strideworks/stride/pkg/observability"
)

// Config holds all application configuration. Values come from an optional
// YAML file pointed at by STRIDE_CONFIG_FILE, overridden by STRIDE_*
// environment variables.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Cache         CacheConfig         `yaml:"cache"`
	Audit         AuditConfig         `yaml:"audit"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection settings. An empty URL disables the
// shared cache tier; the in-process tier still works.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// CacheConfig holds user-context cache settings
type CacheConfig struct {
	ContextTTL time.Duration `yaml:"context_ttl"`
	LocalSize  int           `yaml:"local_size"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// FilePath enables a secondary JSON-lines audit sink when set.
	FilePath    string        `yaml:"file_path"`
	FileMaxSize int64         `yaml:"file_max_size"`
	Retention   time.Duration `yaml:"retention"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled     bool `yaml:"enabled"`
	Distributed bool `yaml:"distributed"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// SweeperConfig is derived, not stored: the expired-grant sweeper schedule.
const DefaultSweepSchedule = "*/5 * * * *"

// LoadConfig loads configuration from the optional YAML file and the
// environment.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("STRIDE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize: 10,
		},
		Cache: CacheConfig{
			ContextTTL: 5 * time.Minute,
			LocalSize:  10000,
		},
		Audit: AuditConfig{
			FileMaxSize: 100 * 1024 * 1024,
			Retention:   90 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Server.Host = getEnv("STRIDE_HOST", c.Server.Host)
	c.Server.Port = getEnv("STRIDE_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("STRIDE_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("STRIDE_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("STRIDE_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("STRIDE_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("STRIDE_HEALTH_PORT", c.Server.HealthPort)

	c.Database.URL = getEnv("STRIDE_POSTGRES_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("STRIDE_POSTGRES_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("STRIDE_POSTGRES_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("STRIDE_POSTGRES_CONN_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.URL = getEnv("STRIDE_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("STRIDE_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("STRIDE_REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = getEnvInt("STRIDE_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Cache.ContextTTL = getEnvDuration("STRIDE_CACHE_CONTEXT_TTL", c.Cache.ContextTTL)
	c.Cache.LocalSize = getEnvInt("STRIDE_CACHE_LOCAL_SIZE", c.Cache.LocalSize)

	c.Audit.FilePath = getEnv("STRIDE_AUDIT_FILE_PATH", c.Audit.FilePath)
	c.Audit.FileMaxSize = getEnvInt64("STRIDE_AUDIT_FILE_MAX_SIZE", c.Audit.FileMaxSize)
	c.Audit.Retention = getEnvDuration("STRIDE_AUDIT_RETENTION", c.Audit.Retention)

	c.RateLimit.Enabled = getEnvBool("STRIDE_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.Distributed = getEnvBool("STRIDE_RATE_LIMIT_DISTRIBUTED", c.RateLimit.Distributed)

	c.Observability.LogLevel = getEnv("STRIDE_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("STRIDE_METRICS_ENABLED", c.Observability.MetricsEnabled)
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
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("idle connections (%d) cannot exceed open connections (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.RateLimit.Distributed && c.Redis.URL == "" {
		return fmt.Errorf("distributed rate limiting requires a redis URL")
	}

	if c.Cache.ContextTTL <= 0 {
		return fmt.Errorf("cache context TTL must be positive")
	}

	return nil
}

// LogLevel returns the parsed logging level.
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
