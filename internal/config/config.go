// Package config provides configuration management for FormBridge.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like SERVER_PORT, LOG_LEVEL)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/delivery"
	"github.com/amitpaz1/formbridge-sub001/internal/upload"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Events     EventsConfig     `mapstructure:"events"`
	Log        LogConfig        `mapstructure:"log"`
	Security   SecurityConfig   `mapstructure:"security"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SubmissionConfig governs the submission store and lifecycle.
type SubmissionConfig struct {
	// BaseURL is the public origin used when minting handoff links.
	BaseURL string `mapstructure:"base_url"`

	// TokenTTL bounds how long a resume token stays usable.
	TokenTTL time.Duration `mapstructure:"token_ttl"`

	// MaxEntries caps the in-memory store; 0 disables eviction.
	MaxEntries     int           `mapstructure:"max_entries"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`

	// IntakeDir holds intake definition files loaded at boot.
	IntakeDir string `mapstructure:"intake_dir"`
}

// DeliveryConfig contains webhook delivery settings.
type DeliveryConfig struct {
	Retry         delivery.RetryPolicy `mapstructure:"retry"`
	RetryInterval time.Duration        `mapstructure:"retry_interval"`
	Timeout       time.Duration        `mapstructure:"timeout"`
}

// StorageConfig selects the file-upload backend.
type StorageConfig struct {
	// Backend is "memory" or "s3".
	Backend string          `mapstructure:"backend"`
	S3      upload.S3Config `mapstructure:"s3"`
}

// EventsConfig selects the event store backend.
type EventsConfig struct {
	// Backend is "memory" or "bolt".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// SecurityConfig contains security-related settings.
// The webhook signing secret is auto-generated on first boot if missing.
type SecurityConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize  int `mapstructure:"general_pool_size"`
	DeliveryPoolSize int `mapstructure:"delivery_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix: SERVER_PORT, LOG_LEVEL,
// SECURITY_SIGNING_SECRET and friends; nested keys map dots to underscores.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/formbridge")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Security.SigningSecret == "" {
		return fmt.Errorf("security.signing_secret must not be empty")
	}
	if len(c.Security.SigningSecret) < 32 {
		return fmt.Errorf("security.signing_secret must be at least 32 characters")
	}
	switch c.Storage.Backend {
	case "memory":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when storage.backend is s3")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or s3, got %q", c.Storage.Backend)
	}
	switch c.Events.Backend {
	case "memory":
	case "bolt":
		if c.Events.Path == "" {
			return fmt.Errorf("events.path is required when events.backend is bolt")
		}
	default:
		return fmt.Errorf("events.backend must be memory or bolt, got %q", c.Events.Backend)
	}
	if c.Delivery.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("delivery.retry.backoff_multiplier must be >= 1")
	}
	return nil
}

// ensureSecrets auto-generates a signing secret on first boot if missing.
func (c *Config) ensureSecrets() error {
	if c.Security.SigningSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate signing secret: %w", err)
		}
		c.Security.SigningSecret = secret
		logBootstrapWarn(
			"auto-generated signing_secret; set SECURITY_SIGNING_SECRET env var so receivers can verify across restarts",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})

	// Submission lifecycle
	v.SetDefault("submission.base_url", "http://localhost:8080")
	v.SetDefault("submission.token_ttl", "168h")
	v.SetDefault("submission.max_entries", 0)
	v.SetDefault("submission.expiry_interval", "60s")
	v.SetDefault("submission.intake_dir", "")

	// Delivery
	v.SetDefault("delivery.retry.max_retries", 5)
	v.SetDefault("delivery.retry.initial_delay", "1s")
	v.SetDefault("delivery.retry.max_delay", "5m")
	v.SetDefault("delivery.retry.backoff_multiplier", 2.0)
	v.SetDefault("delivery.retry_interval", "30s")
	v.SetDefault("delivery.timeout", "30s")

	// Storage
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.url_ttl", "15m")

	// Events
	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.path", "formbridge-events.db")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.delivery_pool_size", 50)
}
