package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/backup"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BUYBUY_"

type Config struct {
	StorePath string `yaml:"store_path"`

	Log LogConfig `yaml:"log"`

	// TrashRetention is how long trashed items survive a clean.
	TrashRetention time.Duration `yaml:"trash_retention"`
	// QueueSize is how many writes may wait in the serializer.
	QueueSize int `yaml:"queue_size"`

	Backup BackupConfig `yaml:"backup"`
	Watch  WatchConfig  `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type BackupConfig struct {
	Dir        string          `yaml:"dir"`
	Passphrase string          `yaml:"passphrase"`
	Interval   time.Duration   `yaml:"interval"`
	Retention  time.Duration   `yaml:"retention"`
	S3         backup.S3Config `yaml:"s3"`
}

type WatchConfig struct {
	Addr    string   `yaml:"addr"`
	Origins []string `yaml:"origins"`
	// WriteLimit is the number of writes one client may send per minute.
	// Zero turns the limit off.
	WriteLimit int `yaml:"write_limit"`
}

func Default() *Config {
	dataDir := "."
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "buybuy")
	}
	return &Config{
		StorePath:      filepath.Join(dataDir, "buybuy.db"),
		Log:            LogConfig{Level: "info", Format: "text"},
		TrashRetention: 30 * 24 * time.Hour,
		QueueSize:      64,
		Backup: BackupConfig{
			Dir:       filepath.Join(dataDir, "backups"),
			Retention: 14 * 24 * time.Hour,
		},
		Watch: WatchConfig{Addr: "127.0.0.1:8765", WriteLimit: 120},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $BUYBUY_CONFIG when path is empty), then BUYBUY_* environment
// variables. A .env file in the working directory is read first. A missing
// YAML file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.StorePath = getEnv("STORE_PATH", c.StorePath)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Backup.Dir = getEnv("BACKUP_DIR", c.Backup.Dir)
	c.Backup.Passphrase = getEnv("BACKUP_PASSPHRASE", c.Backup.Passphrase)
	c.Backup.S3.Endpoint = getEnv("S3_ENDPOINT", c.Backup.S3.Endpoint)
	c.Backup.S3.Bucket = getEnv("S3_BUCKET", c.Backup.S3.Bucket)
	c.Backup.S3.Region = getEnv("S3_REGION", c.Backup.S3.Region)
	c.Backup.S3.Prefix = getEnv("S3_PREFIX", c.Backup.S3.Prefix)
	c.Backup.S3.AccessKey = getEnv("S3_ACCESS_KEY", c.Backup.S3.AccessKey)
	c.Backup.S3.SecretKey = getEnv("S3_SECRET_KEY", c.Backup.S3.SecretKey)
	c.Watch.Addr = getEnv("WATCH_ADDR", c.Watch.Addr)
	if origins := getEnv("WATCH_ORIGINS", ""); origins != "" {
		c.Watch.Origins = strings.Split(origins, ",")
	}

	var err error
	if c.QueueSize, err = getEnvAsInt("QUEUE_SIZE", c.QueueSize); err != nil {
		return err
	}
	if c.Watch.WriteLimit, err = getEnvAsInt("WATCH_WRITE_LIMIT", c.Watch.WriteLimit); err != nil {
		return err
	}
	if c.TrashRetention, err = getEnvAsDuration("TRASH_RETENTION", c.TrashRetention); err != nil {
		return err
	}
	if c.Backup.Interval, err = getEnvAsDuration("BACKUP_INTERVAL", c.Backup.Interval); err != nil {
		return err
	}
	if c.Backup.Retention, err = getEnvAsDuration("BACKUP_RETENTION", c.Backup.Retention); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.StorePath) == "" {
		return fmt.Errorf("store path is required")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("invalid queue size: %d", c.QueueSize)
	}
	if c.Watch.WriteLimit < 0 {
		return fmt.Errorf("invalid write limit: %d", c.Watch.WriteLimit)
	}
	if c.TrashRetention < 0 {
		return fmt.Errorf("invalid trash retention: %s", c.TrashRetention)
	}
	if c.Backup.Interval < 0 || c.Backup.Retention < 0 {
		return fmt.Errorf("backup interval and retention must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Log.Format)
	}

	s3 := c.Backup.S3
	if s3.Bucket != "" && (s3.AccessKey == "" || s3.SecretKey == "") {
		return fmt.Errorf("s3 bucket %q needs an access key and secret key", s3.Bucket)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(envPrefix + key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return value, nil
}

// Durations also accept a plain number of days, e.g. "30".
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(envPrefix + key)
	if valueStr == "" {
		return defaultValue, nil
	}
	if days, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(days) * 24 * time.Hour, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return value, nil
}
