// Package config loads the layered application configuration: compiled-in
// defaults, an optional YAML file, then environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	tserrors "github.com/tenantsync/engine/internal/errors"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
	// AppBaseURL is the public base URL the SPA runs on; OAuth callbacks and
	// change-notification redirects are built against it.
	AppBaseURL string `yaml:"app_base_url" env:"APP_BASE_URL"`
}

// DatabaseConfig controls the relational store.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"DATABASE_URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// RedisConfig controls the job queue transport.
type RedisConfig struct {
	// URL is the queue broker URL, e.g. redis://localhost:6379/0. Empty means
	// use the in-memory queue implementation (tests, local dev without Redis).
	URL string `yaml:"url" env:"QUEUE_BROKER_URL"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// SecurityConfig controls authentication/authorisation behaviour.
type SecurityConfig struct {
	// APITokens authenticate service-to-service and scheduler-triggered calls.
	APITokens []string `yaml:"api_tokens" env:"API_TOKENS"`
	JWTSecret string   `yaml:"jwt_secret" env:"JWT_SECRET"`
	// SchedulerSharedSecret authenticates the authenticated cron endpoint.
	SchedulerSharedSecret string `yaml:"scheduler_shared_secret" env:"SCHEDULER_SHARED_SECRET"`
	// AllowOAuthSoftMatch gates the OAuth-callback soft-match fallback
	// (Design decision D-2: default false, explicit opt-in required).
	AllowOAuthSoftMatch bool `yaml:"allow_oauth_soft_match" env:"ALLOW_OAUTH_SOFT_MATCH"`
}

// SourceConfig holds the credentials and scopes for one external source
// adapter (e.g. the commerce OAuth provider).
type SourceConfig struct {
	ClientID     string `yaml:"client_id" env:"SOURCE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"SOURCE_CLIENT_SECRET"`
	// Scopes is comma-separated per the environment contract in spec §6.
	Scopes string `yaml:"scopes" env:"SOURCE_SCOPES"`
	// WebhookSecret verifies inbound change-notification HMAC signatures.
	WebhookSecret string `yaml:"webhook_secret" env:"SOURCE_WEBHOOK_SECRET"`
}

// SchedulerConfig controls the cron-based job emitter.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" env:"SCHEDULER_ENABLED"`
}

// BlobConfig controls raw-payload storage.
type BlobConfig struct {
	// Driver selects "local" (default) or "s3".
	Driver string `yaml:"driver" env:"BLOB_DRIVER"`
	// Root is the local filesystem root; default ./storage/raw.
	Root string `yaml:"root" env:"BLOB_ROOT"`
	// Bucket/Region/Endpoint configure the S3-compatible driver.
	Bucket   string `yaml:"bucket" env:"BLOB_S3_BUCKET"`
	Region   string `yaml:"region" env:"BLOB_S3_REGION"`
	Endpoint string `yaml:"endpoint" env:"BLOB_S3_ENDPOINT"`
}

// Config is the top-level, layered application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Source    SourceConfig    `yaml:"source"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Blob      BlobConfig      `yaml:"blob"`
}

// New returns a Config populated with compiled-in defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "tenantsync",
		},
		Scheduler: SchedulerConfig{Enabled: true},
		Blob: BlobConfig{
			Driver: "local",
			Root:   "./storage/raw",
		},
	}
}

// Load loads configuration in the documented order: defaults, YAML file
// (CONFIG_FILE or configs/config.yaml), .env (local dev), then environment
// variable overrides. DATABASE_URL always wins over a file-provided DSN.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, tserrors.Config("env_decode_failed", "failed decoding environment overrides", err)
		}
	}

	return cfg, cfg.Validate()
}

// LoadFile reads configuration from a YAML file, applying no environment
// overrides. Used by tests.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return tserrors.Config("bad_config_path", "invalid config path", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return tserrors.Config("config_read_failed", "failed reading config file", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return tserrors.Config("config_parse_failed", "failed parsing config file", err)
	}
	return nil
}

// ConnectionString is a passthrough accessor kept for callers that want a
// label without retaining the full DSN in logs.
func (c DatabaseConfig) ConnectionString() string { return c.DSN }

// Validate returns a startup-fatal ConfigError when DATABASE_URL or
// APP_BASE_URL is empty. It checks no other setting: the queue URL, blob
// root, source credentials, scopes and scheduler secret may all be empty.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Database.DSN) == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if strings.TrimSpace(c.Server.AppBaseURL) == "" {
		missing = append(missing, "APP_BASE_URL")
	}
	if len(missing) > 0 {
		return tserrors.Config("missing_config", fmt.Sprintf("missing required configuration: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}

// ScopesList returns the comma-separated source scopes as a slice.
func (s SourceConfig) ScopesList() []string {
	if strings.TrimSpace(s.Scopes) == "" {
		return nil
	}
	parts := strings.Split(s.Scopes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
