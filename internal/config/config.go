// Package config provides unified configuration for litekeep tooling.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the defaults applied to litekeep operations. Every field can
// be overridden per call; the config only supplies the baseline.
type Config struct {
	// DataDir is the base directory for backups and local object storage
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Pragmas holds the connection open defaults
	Pragmas PragmaConfig `json:"pragmas" yaml:"pragmas"`

	// Query holds query execution defaults
	Query QueryConfig `json:"query" yaml:"query"`

	// Backup holds backup and restore defaults
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Storage holds backup replication storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging holds log output configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// PragmaConfig holds the pragma values applied when opening a database.
type PragmaConfig struct {
	// JournalMode is the journal mode: DELETE, TRUNCATE, PERSIST, MEMORY, WAL, OFF
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`

	// Synchronous is the durability level: OFF, NORMAL, FULL, EXTRA
	Synchronous string `json:"synchronous" yaml:"synchronous"`

	// ForeignKeys enables foreign key enforcement
	ForeignKeys bool `json:"foreign_keys" yaml:"foreign_keys"`

	// CacheSize is the page cache size in pages; negative values are KiB
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// BusyTimeout is how long a connection waits on a locked database
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout"`

	// TempStore is where temporary tables live: DEFAULT, FILE, MEMORY
	TempStore string `json:"temp_store" yaml:"temp_store"`

	// MmapSize is the memory-map window in bytes, 0 to disable
	MmapSize int64 `json:"mmap_size" yaml:"mmap_size"`
}

// QueryConfig holds query execution defaults.
type QueryConfig struct {
	// MaxRetries is the retry budget for busy databases
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
}

// BackupConfig holds backup and restore defaults.
type BackupConfig struct {
	// Dir is the default directory for backup artifacts
	Dir string `json:"dir" yaml:"dir"`

	// Codec is the default compression codec: gzip, snappy, xz, zstd
	Codec string `json:"codec" yaml:"codec"`

	// Verify controls post-backup verification by default
	Verify bool `json:"verify" yaml:"verify"`

	// KeepCount is how many artifacts rotation retains
	KeepCount int `json:"keep_count" yaml:"keep_count"`

	// SafetyBackup controls whether restore snapshots the previous
	// destination before replacing it
	SafetyBackup bool `json:"safety_backup" yaml:"safety_backup"`
}

// StorageConfig holds replication storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every replicated object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Format is the output format: text, json
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/litekeep",
		Pragmas: PragmaConfig{
			JournalMode: "WAL",
			Synchronous: "NORMAL",
			ForeignKeys: true,
			CacheSize:   -2000,
			BusyTimeout: 5 * time.Second,
			TempStore:   "MEMORY",
			MmapSize:    256 * 1024 * 1024,
		},
		Query: QueryConfig{
			MaxRetries:     3,
			RetryBaseDelay: 100 * time.Millisecond,
		},
		Backup: BackupConfig{
			Dir:          "",
			Codec:        "gzip",
			Verify:       true,
			KeepCount:    5,
			SafetyBackup: false,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/litekeep"
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.DataDir, "backups")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch strings.ToUpper(c.Pragmas.JournalMode) {
	case "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF":
	default:
		return fmt.Errorf("invalid journal_mode: %s", c.Pragmas.JournalMode)
	}

	switch strings.ToUpper(c.Pragmas.Synchronous) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("invalid synchronous: %s", c.Pragmas.Synchronous)
	}

	switch strings.ToUpper(c.Pragmas.TempStore) {
	case "", "DEFAULT", "FILE", "MEMORY":
	default:
		return fmt.Errorf("invalid temp_store: %s", c.Pragmas.TempStore)
	}

	if c.Pragmas.BusyTimeout < 0 {
		return fmt.Errorf("busy_timeout must not be negative")
	}

	switch c.Backup.Codec {
	case "", "none", "gzip", "snappy", "xz", "zstd":
	default:
		return fmt.Errorf("invalid backup codec: %s (must be none, gzip, snappy, xz, or zstd)", c.Backup.Codec)
	}

	if c.Backup.KeepCount < 1 {
		return fmt.Errorf("backup keep_count must be at least 1, got %d", c.Backup.KeepCount)
	}

	if c.Query.MaxRetries < 0 {
		return fmt.Errorf("query max_retries must not be negative")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadEnvFile loads a dotenv file into the process environment before
// LoadFromEnv runs. With an empty path the default ".env" is tried and a
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the LITEKEEP_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LITEKEEP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Pragma configuration
	if v := os.Getenv("LITEKEEP_JOURNAL_MODE"); v != "" {
		cfg.Pragmas.JournalMode = v
	}
	if v := os.Getenv("LITEKEEP_SYNCHRONOUS"); v != "" {
		cfg.Pragmas.Synchronous = v
	}
	if v := os.Getenv("LITEKEEP_FOREIGN_KEYS"); v != "" {
		cfg.Pragmas.ForeignKeys = v == "true" || v == "1"
	}
	if v := os.Getenv("LITEKEEP_CACHE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pragmas.CacheSize)
	}
	if v := os.Getenv("LITEKEEP_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pragmas.BusyTimeout = d
		}
	}
	if v := os.Getenv("LITEKEEP_TEMP_STORE"); v != "" {
		cfg.Pragmas.TempStore = v
	}
	if v := os.Getenv("LITEKEEP_MMAP_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pragmas.MmapSize)
	}

	// Query configuration
	if v := os.Getenv("LITEKEEP_QUERY_MAX_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.MaxRetries)
	}
	if v := os.Getenv("LITEKEEP_QUERY_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.RetryBaseDelay = d
		}
	}

	// Backup configuration
	if v := os.Getenv("LITEKEEP_BACKUP_DIR"); v != "" {
		cfg.Backup.Dir = v
	}
	if v := os.Getenv("LITEKEEP_BACKUP_CODEC"); v != "" {
		cfg.Backup.Codec = v
	}
	if v := os.Getenv("LITEKEEP_BACKUP_VERIFY"); v != "" {
		cfg.Backup.Verify = v == "true" || v == "1"
	}
	if v := os.Getenv("LITEKEEP_BACKUP_KEEP"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Backup.KeepCount)
	}
	if v := os.Getenv("LITEKEEP_BACKUP_SAFETY"); v != "" {
		cfg.Backup.SafetyBackup = v == "true" || v == "1"
	}

	// Storage configuration
	if v := os.Getenv("LITEKEEP_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("LITEKEEP_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LITEKEEP_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("LITEKEEP_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("LITEKEEP_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("LITEKEEP_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}

	// Logging configuration
	if v := os.Getenv("LITEKEEP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LITEKEEP_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Backup.Dir,
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
