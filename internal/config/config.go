package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage modes
const (
	StorageModeLocal  = "local"
	StorageModeHybrid = "hybrid"
)

// Archive drivers
const (
	ArchiveNone       = "none"
	ArchiveFilesystem = "filesystem"
	ArchiveS3         = "s3"
)

// Config holds application configuration
type Config struct {
	ServerPort string `yaml:"server_port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	DatabaseType string `yaml:"database_type"` // sqlite, postgres, mysql
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`

	StorageMode      string `yaml:"storage_mode"` // local or hybrid
	MaxDocumentBytes int    `yaml:"max_document_bytes"`

	Remote  RemoteConfig  `yaml:"remote"`
	Archive ArchiveConfig `yaml:"archive"`

	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

// RemoteConfig configures the hosted backend used in hybrid mode.
type RemoteConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	OutboxSize     int           `yaml:"outbox_size"`
}

// ArchiveConfig configures where export snapshots are archived.
type ArchiveConfig struct {
	Driver   string        `yaml:"driver"`
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
	S3       S3Config      `yaml:"s3"`
}

// S3Config holds the S3-compatible bucket settings for the archive.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Prefix    string `yaml:"prefix"`
	PathStyle bool   `yaml:"path_style"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		ServerPort:       "8080",
		LogLevel:         "info",
		LogFormat:        "text",
		DatabaseType:     "sqlite",
		DatabasePath:     "./habits.db",
		StorageMode:      StorageModeLocal,
		MaxDocumentBytes: 5 * 1024 * 1024, // 5MB, the usual browser localStorage quota
		Remote: RemoteConfig{
			ProbeTimeout:   5 * time.Second,
			RequestTimeout: 10 * time.Second,
			ProbeInterval:  30 * time.Second,
			OutboxSize:     256,
		},
		Archive: ArchiveConfig{
			Driver:   ArchiveNone,
			Dir:      "./backups",
			Interval: 24 * time.Hour,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "habits/",
			},
		},
		RateLimit:  120,
		RateWindow: time.Minute,
	}
}

// Load reads configuration from an optional YAML file and then from
// environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DatabaseType) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	switch c.StorageMode {
	case StorageModeLocal:
	case StorageModeHybrid:
		if c.Remote.URL == "" {
			return fmt.Errorf("REMOTE_URL is required when STORAGE_MODE is %s", StorageModeHybrid)
		}
	default:
		return fmt.Errorf("unsupported storage mode: %s", c.StorageMode)
	}

	switch c.Archive.Driver {
	case ArchiveNone, ArchiveFilesystem:
	case ArchiveS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("ARCHIVE_S3_BUCKET is required for the s3 archive driver")
		}
	default:
		return fmt.Errorf("unsupported archive driver: %s", c.Archive.Driver)
	}

	if c.MaxDocumentBytes <= 0 {
		return fmt.Errorf("max document bytes must be positive, got %d", c.MaxDocumentBytes)
	}
	return nil
}

// IsHybrid reports whether the remote backend should be used.
func (c *Config) IsHybrid() bool {
	return c.StorageMode == StorageModeHybrid
}

func (c *Config) applyEnvOverrides() error {
	c.ServerPort = getEnv("PORT", c.ServerPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.DatabaseType = getEnv("DATABASE_TYPE", c.DatabaseType)
	c.DatabasePath = getEnv("DB_PATH", c.DatabasePath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.StorageMode = strings.ToLower(getEnv("STORAGE_MODE", c.StorageMode))
	c.Remote.URL = getEnv("REMOTE_URL", c.Remote.URL)
	c.Remote.APIKey = getEnv("REMOTE_API_KEY", c.Remote.APIKey)

	c.Archive.Driver = strings.ToLower(getEnv("ARCHIVE_DRIVER", c.Archive.Driver))
	c.Archive.Dir = getEnv("ARCHIVE_DIR", c.Archive.Dir)
	c.Archive.S3.Bucket = getEnv("ARCHIVE_S3_BUCKET", c.Archive.S3.Bucket)
	c.Archive.S3.Region = getEnv("ARCHIVE_S3_REGION", c.Archive.S3.Region)
	c.Archive.S3.Endpoint = getEnv("ARCHIVE_S3_ENDPOINT", c.Archive.S3.Endpoint)
	c.Archive.S3.Prefix = getEnv("ARCHIVE_S3_PREFIX", c.Archive.S3.Prefix)
	if v := os.Getenv("ARCHIVE_S3_PATH_STYLE"); v != "" {
		c.Archive.S3.PathStyle = strings.EqualFold(v, "true")
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"MAX_DOCUMENT_BYTES", &c.MaxDocumentBytes},
		{"REMOTE_OUTBOX_SIZE", &c.Remote.OutboxSize},
		{"RATE_LIMIT", &c.RateLimit},
	}
	for _, v := range ints {
		if err := getEnvInt(v.key, v.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REMOTE_PROBE_TIMEOUT", &c.Remote.ProbeTimeout},
		{"REMOTE_REQUEST_TIMEOUT", &c.Remote.RequestTimeout},
		{"REMOTE_PROBE_INTERVAL", &c.Remote.ProbeInterval},
		{"ARCHIVE_INTERVAL", &c.Archive.Interval},
		{"RATE_WINDOW", &c.RateWindow},
	}
	for _, v := range durations {
		if err := getEnvDuration(v.key, v.dst); err != nil {
			return err
		}
	}

	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, dst *int) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func getEnvDuration(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
