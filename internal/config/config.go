// Package config loads vistoria settings from .vistoria/config.toml, a .env
// file and VISTORIA_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultDir is the per-workspace state directory.
const DefaultDir = ".vistoria"

// FileName is the config file inside DefaultDir.
const FileName = "config.toml"

type Config struct {
	DB           DBConfig           `mapstructure:"db"`
	Media        MediaConfig        `mapstructure:"media"`
	User         UserConfig         `mapstructure:"user"`
	Remote       RemoteConfig       `mapstructure:"remote"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Daemon       DaemonConfig       `mapstructure:"daemon"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
	Log          LogConfig          `mapstructure:"log"`

	out    io.Writer
	rotate *lumberjack.Logger
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type MediaConfig struct {
	Dir string `mapstructure:"dir"`
}

type UserConfig struct {
	ID string `mapstructure:"id"`
}

type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ConnectivityConfig struct {
	// ProbeURL is checked with HEAD; empty means always online.
	ProbeURL string        `mapstructure:"probe_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	RetentionDays int           `mapstructure:"retention_days"`
	StaleGrace    time.Duration `mapstructure:"stale_grace"`
}

type DaemonConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	Debounce      time.Duration `mapstructure:"debounce"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	// File enables rotated file logging in addition to stderr.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// defaults is the single source of default values. Keys are viper keys.
var defaults = map[string]any{
	"db.path":                filepath.Join(DefaultDir, "offline.db"),
	"media.dir":              filepath.Join(DefaultDir, "media"),
	"user.id":                "",
	"remote.base_url":        "",
	"remote.token":           "",
	"remote.timeout":         "30s",
	"connectivity.probe_url": "",
	"connectivity.timeout":   "3s",
	"sync.retention_days":    7,
	"sync.stale_grace":       "2m",
	"daemon.interval":        "5m",
	"daemon.probe_interval":  "15s",
	"daemon.debounce":        "2s",
	"dashboard.port":         0,
	"log.file":               "",
	"log.max_size_mb":        10,
	"log.max_backups":        3,
	"log.max_age_days":       28,
}

// Load reads configuration from dir/config.toml (optional), the .env file
// in the working directory (optional) and VISTORIA_* variables.
//
// Example: VISTORIA_REMOTE_BASE_URL overrides remote.base_url.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("VISTORIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail far from their source.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	if c.Sync.RetentionDays < 0 {
		return fmt.Errorf("sync.retention_days must be >= 0, got %d", c.Sync.RetentionDays)
	}
	if c.Daemon.Interval <= 0 || c.Daemon.ProbeInterval <= 0 {
		return fmt.Errorf("daemon intervals must be positive")
	}
	return nil
}

// WriteDefault writes a config file with every default value to
// dir/config.toml. It refuses to overwrite an existing file unless force
// is set.
func WriteDefault(dir string, force bool) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return path, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tree := make(map[string]map[string]any)
	for k, val := range defaults {
		section, key, _ := strings.Cut(k, ".")
		if tree[section] == nil {
			tree[section] = make(map[string]any)
		}
		tree[section][key] = val
	}

	f, err := os.Create(path)
	if err != nil {
		return path, fmt.Errorf("failed to create config: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# vistoria configuration. VISTORIA_<SECTION>_<KEY> overrides any value.")
	fmt.Fprintln(f)
	if err := toml.NewEncoder(f).Encode(tree); err != nil {
		return path, fmt.Errorf("failed to encode config: %w", err)
	}
	return path, nil
}

// Writer returns the log destination: stderr, plus a rotated file when
// log.file is set.
func (c LogConfig) Writer() io.Writer {
	w, _ := c.writer()
	return w
}

func (c LogConfig) writer() (io.Writer, *lumberjack.Logger) {
	if c.File == "" {
		return os.Stderr, nil
	}
	rotate := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, rotate), rotate
}

// Logger returns a component logger writing to the configured destination.
// All loggers of one Config share the same rotated file.
func (c *Config) Logger(prefix string) *log.Logger {
	if c.out == nil {
		c.out, c.rotate = c.Log.writer()
	}
	return log.New(c.out, prefix, log.LstdFlags)
}

// Close releases the rotated log file, if one was opened. Loggers created
// earlier fall back to reopening the file on their next write.
func (c *Config) Close() error {
	if c.rotate == nil {
		return nil
	}
	return c.rotate.Close()
}
