package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dshills/modelstore/internal/capability"
)

const (
	// DefaultDataDir is the root of the private file area
	DefaultDataDir = "~/.modelstore"
	// DefaultDatabaseName is the database file inside the data subdirectory
	DefaultDatabaseName = "modelstore.db"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "MODELSTORE_"
)

// Config holds every setting of the store
type Config struct {
	// DataDir is the root directory; DataSubdir is created inside it
	DataDir      string                 `json:"data_dir" yaml:"data_dir"`
	DataSubdir   string                 `json:"data_subdir" yaml:"data_subdir"`
	DatabaseName string                 `json:"database_name" yaml:"database_name"`
	StorageMode  capability.StorageMode `json:"storage_mode" yaml:"storage_mode"`

	Log    LogConfig    `json:"log" yaml:"log"`
	Sync   SyncConfig   `json:"sync" yaml:"sync"`
	Backup BackupConfig `json:"backup" yaml:"backup"`
}

// LogConfig selects the log level and output format (text or json)
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// SyncConfig controls periodic reconciliation and file watching
type SyncConfig struct {
	Interval     time.Duration `json:"interval" yaml:"interval"`
	WatchDir     string        `json:"watch_dir" yaml:"watch_dir"`
	SnapshotPath string        `json:"snapshot_path" yaml:"snapshot_path"`
	PruneMissing bool          `json:"prune_missing" yaml:"prune_missing"`
}

// BackupConfig controls how many database backups are kept
type BackupConfig struct {
	Retention int `json:"retention" yaml:"retention"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:      DefaultDataDir,
		DataSubdir:   "data",
		DatabaseName: DefaultDatabaseName,
		StorageMode:  capability.StorageModeAuto,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Sync: SyncConfig{
			Interval: 30 * time.Second,
		},
		Backup: BackupConfig{
			Retention: 5,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then variables from .env files, then MODELSTORE_*
// environment overrides. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadDotEnv reads .env files without overriding variables that are
// already set. A missing default .env is not an error.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadFromEnv applies MODELSTORE_* overrides
func (c *Config) LoadFromEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	str("DATA_DIR", &c.DataDir)
	str("DATA_SUBDIR", &c.DataSubdir)
	str("DATABASE_NAME", &c.DatabaseName)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("WATCH_DIR", &c.Sync.WatchDir)
	str("SNAPSHOT_PATH", &c.Sync.SnapshotPath)

	if v := os.Getenv(EnvPrefix + "STORAGE_MODE"); v != "" {
		mode, err := capability.ParseStorageMode(v)
		if err != nil {
			return fmt.Errorf("%sSTORAGE_MODE: %w", EnvPrefix, err)
		}
		c.StorageMode = mode
	}
	if v := os.Getenv(EnvPrefix + "SYNC_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSYNC_INTERVAL: %w", EnvPrefix, err)
		}
		c.Sync.Interval = d
	}
	if v := os.Getenv(EnvPrefix + "PRUNE_MISSING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sPRUNE_MISSING: %w", EnvPrefix, err)
		}
		c.Sync.PruneMissing = b
	}
	if v := os.Getenv(EnvPrefix + "BACKUP_RETENTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sBACKUP_RETENTION: %w", EnvPrefix, err)
		}
		c.Backup.Retention = n
	}
	return nil
}

// Resolve expands a leading ~ in paths
func (c *Config) Resolve() error {
	var err error
	if c.DataDir, err = expandHome(c.DataDir); err != nil {
		return err
	}
	if c.Sync.WatchDir, err = expandHome(c.Sync.WatchDir); err != nil {
		return err
	}
	if c.Sync.SnapshotPath, err = expandHome(c.Sync.SnapshotPath); err != nil {
		return err
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.DataSubdir == "" || strings.ContainsAny(c.DataSubdir, `/\`) {
		return fmt.Errorf("data_subdir must be a plain directory name, got %q", c.DataSubdir)
	}
	if c.DatabaseName == "" || strings.ContainsAny(c.DatabaseName, `/\`) {
		return fmt.Errorf("database_name must be a plain file name, got %q", c.DatabaseName)
	}
	if _, err := capability.ParseStorageMode(string(c.StorageMode)); err != nil {
		return fmt.Errorf("storage_mode: %w", err)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Backup.Retention < 0 {
		return fmt.Errorf("backup.retention must not be negative, got %d", c.Backup.Retention)
	}
	return nil
}

// DataPath is the directory holding the database file
func (c *Config) DataPath() string {
	return filepath.Join(c.DataDir, c.DataSubdir)
}
