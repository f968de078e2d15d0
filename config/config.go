package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"learnsync/adapters/redis"
	"learnsync/adapters/sqlx"
	"learnsync/registry"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"LEARNSYNC_ENV"`
	Profile     string      `json:"profile" env:"LEARNSYNC_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Real-time subsystem tuning
	Realtime RealtimeConfig `json:"realtime"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Security configuration
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"LEARNSYNC_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"LEARNSYNC_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"LEARNSYNC_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"LEARNSYNC_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"LEARNSYNC_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"LEARNSYNC_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"LEARNSYNC_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"LEARNSYNC_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"LEARNSYNC_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	SeedPath          string `json:"seed_path" env:"LEARNSYNC_STORAGE_SEED_PATH"`
	NotificationsPath string `json:"notifications_path" env:"LEARNSYNC_STORAGE_NOTIFICATIONS_PATH"`
}

// RealtimeConfig tunes the registry reaper, replay buffer, and event bus
type RealtimeConfig struct {
	ReapInterval    time.Duration `json:"reap_interval" env:"LEARNSYNC_REALTIME_REAP_INTERVAL"`
	LivenessTimeout time.Duration `json:"liveness_timeout" env:"LEARNSYNC_REALTIME_LIVENESS_TIMEOUT"`
	BufferCapacity  int           `json:"buffer_capacity" env:"LEARNSYNC_REALTIME_BUFFER_CAPACITY"`
	Dispatch        string        `json:"dispatch" env:"LEARNSYNC_REALTIME_DISPATCH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"LEARNSYNC_LOG_LEVEL"`
	Format     string            `json:"format" env:"LEARNSYNC_LOG_FORMAT"`
	Output     string            `json:"output" env:"LEARNSYNC_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"LEARNSYNC_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"LEARNSYNC_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"LEARNSYNC_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int           `json:"burst_size" env:"LEARNSYNC_SECURITY_RATE_LIMIT_BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"LEARNSYNC_SECURITY_RATE_LIMIT_CLEANUP"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load from environment variables
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	// Validate the path for security
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	// Open the file safely after validation
	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Environment variables override file values
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				SeedPath:          "./data/seed.json",
				NotificationsPath: "./data/notifications.json",
			},
		},
		Realtime: RealtimeConfig{
			ReapInterval:    registry.DefaultReapInterval,
			LivenessTimeout: registry.DefaultLivenessTimeout,
			BufferCapacity:  100,
			Dispatch:        "async",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	// Validate environment
	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	// Validate server config
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	// Validate storage config
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	// Validate realtime config
	if err := c.Realtime.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("realtime config: %v", err))
	}

	// Validate logging config
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	// Validate security config
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	// Create a copy for redaction
	cfg := *c

	// Redact sensitive information
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
