package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Documents DocumentsConfig `yaml:"documents"`
	Events    EventsConfig    `yaml:"events"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// DocumentsConfig contains uploaded document storage settings.
type DocumentsConfig struct {
	// Backend is "local" or "s3".
	Backend        string   `yaml:"backend"`
	LocalPath      string   `yaml:"local_path"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	S3             S3Config `yaml:"s3"`
}

// S3Config contains S3-compatible object storage settings.
// Credentials are env-only and never serialized to YAML.
type S3Config struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	AccessKey string   `yaml:"-"`
	SecretKey string   `yaml:"-"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// EventsConfig contains change notification settings.
type EventsConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis pub/sub settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"` // env-only, never in YAML
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// WorkflowConfig contains phase workflow behaviour.
type WorkflowConfig struct {
	// AutoAdvance moves a property to the next phase as soon as a write
	// completes its current phase.
	AutoAdvance   bool     `yaml:"auto_advance"`
	AutosaveDelay Duration `yaml:"autosave_delay"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	// ReportInterval is how often the board export is written to document
	// storage. Zero disables the worker.
	ReportInterval Duration `yaml:"report_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("RENTOPS_CONFIG_PATH", "config/rentops.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DevMode reports whether RENTOPS_DEV_MODE is enabled.
func DevMode() bool {
	return os.Getenv("RENTOPS_DEV_MODE") == "true"
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "data/rentops.db",
		},
		Documents: DocumentsConfig{
			Backend:        "local",
			LocalPath:      "data/documents",
			MaxUploadBytes: 20 << 20,
			S3: S3Config{
				Region:    "us-east-1",
				UseSSL:    &useSSL,
				URLExpiry: Duration(15 * time.Minute),
			},
		},
		Events: EventsConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "rentops:events",
			},
		},
		Workflow: WorkflowConfig{
			AutoAdvance:   false,
			AutosaveDelay: Duration(time.Second),
		},
		Worker: WorkerConfig{
			ReportInterval: Duration(24 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("RENTOPS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("RENTOPS_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("RENTOPS_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("RENTOPS_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	if v := os.Getenv("RENTOPS_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("RENTOPS_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Auth
	if v := os.Getenv("RENTOPS_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Documents
	if v := os.Getenv("RENTOPS_DOCUMENTS_BACKEND"); v != "" {
		cfg.Documents.Backend = v
	}
	if v := os.Getenv("RENTOPS_DOCUMENTS_PATH"); v != "" {
		cfg.Documents.LocalPath = v
	}
	if v := os.Getenv("RENTOPS_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Documents.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("RENTOPS_S3_BUCKET"); v != "" {
		cfg.Documents.S3.Bucket = v
	}
	if v := os.Getenv("RENTOPS_S3_ENDPOINT"); v != "" {
		cfg.Documents.S3.Endpoint = v
	}
	if v := os.Getenv("RENTOPS_S3_REGION"); v != "" {
		cfg.Documents.S3.Region = v
	}
	if v := os.Getenv("RENTOPS_S3_ACCESS_KEY"); v != "" {
		cfg.Documents.S3.AccessKey = v
	}
	if v := os.Getenv("RENTOPS_S3_SECRET_KEY"); v != "" {
		cfg.Documents.S3.SecretKey = v
	}
	if v := os.Getenv("RENTOPS_S3_USE_SSL"); v != "" {
		b := v == "true" || v == "1"
		cfg.Documents.S3.UseSSL = &b
	}
	envDuration("RENTOPS_S3_URL_EXPIRY", &cfg.Documents.S3.URLExpiry)

	// Events
	if v := os.Getenv("RENTOPS_EVENTS_BACKEND"); v != "" {
		cfg.Events.Backend = v
	}
	if v := os.Getenv("RENTOPS_REDIS_ADDR"); v != "" {
		cfg.Events.Redis.Addr = v
	}
	if v := os.Getenv("RENTOPS_REDIS_PASSWORD"); v != "" {
		cfg.Events.Redis.Password = v
	}
	if v := os.Getenv("RENTOPS_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Events.Redis.DB = n
		}
	}
	if v := os.Getenv("RENTOPS_REDIS_CHANNEL"); v != "" {
		cfg.Events.Redis.Channel = v
	}

	// Workflow
	if v := os.Getenv("RENTOPS_AUTO_ADVANCE"); v != "" {
		cfg.Workflow.AutoAdvance = v == "true" || v == "1"
	}
	envDuration("RENTOPS_AUTOSAVE_DELAY", &cfg.Workflow.AutosaveDelay)

	// Worker
	envDuration("RENTOPS_REPORT_INTERVAL", &cfg.Worker.ReportInterval)

	// Log
	if v := os.Getenv("RENTOPS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RENTOPS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks that configuration values are consistent.
// In dev mode (RENTOPS_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	switch c.Documents.Backend {
	case "local":
		if c.Documents.LocalPath == "" {
			return errors.New("documents.local_path is required for the local backend")
		}
	case "s3":
		if c.Documents.S3.Bucket == "" || c.Documents.S3.Endpoint == "" {
			return errors.New("documents.s3.bucket and documents.s3.endpoint are required for the s3 backend")
		}
	default:
		return fmt.Errorf("documents.backend must be local or s3, got %q", c.Documents.Backend)
	}
	if c.Documents.MaxUploadBytes <= 0 {
		return errors.New("documents.max_upload_bytes must be positive")
	}

	switch c.Events.Backend {
	case "memory":
	case "redis":
		if c.Events.Redis.Addr == "" {
			return errors.New("events.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("events.backend must be memory or redis, got %q", c.Events.Backend)
	}

	if c.Workflow.AutosaveDelay < 0 {
		return errors.New("workflow.autosave_delay must not be negative")
	}
	if c.Worker.ReportInterval < 0 {
		return errors.New("worker.report_interval must not be negative")
	}

	if DevMode() {
		return nil
	}
	if c.Auth.APIKey == "" {
		return errors.New("RENTOPS_API_KEY is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
