// Package config loads countsync settings from defaults, a config file and
// COUNTSYNC_* environment variables, in increasing priority. Command-line
// flags bound by the CLI override all three.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fieldcount/countsync/internal/capture"
	"github.com/fieldcount/countsync/internal/logging"
)

// FileName is the config file searched for, without extension.
const FileName = "countsync"

// EnvPrefix prefixes environment overrides, e.g. COUNTSYNC_SERVER_URL.
const EnvPrefix = "COUNTSYNC"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" toml:"server" yaml:"server"`
	API       APIConfig       `mapstructure:"api" toml:"api" yaml:"api"`
	DB        DBConfig        `mapstructure:"db" toml:"db" yaml:"db"`
	Sync      SyncConfig      `mapstructure:"sync" toml:"sync" yaml:"sync"`
	Retry     RetryConfig     `mapstructure:"retry" toml:"retry" yaml:"retry"`
	Capture   capture.Options `mapstructure:"capture" toml:"capture" yaml:"capture"`
	RFID      RFIDConfig      `mapstructure:"rfid" toml:"rfid" yaml:"rfid"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard" yaml:"dashboard"`
	Log       logging.Config  `mapstructure:"log" toml:"log" yaml:"log"`
}

// ServerConfig locates the central server
type ServerConfig struct {
	URL string `mapstructure:"url" toml:"url" yaml:"url"`
}

// APIConfig tunes remote calls
type APIConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" toml:"timeout" yaml:"timeout"`
	PageSize int           `mapstructure:"page_size" toml:"page_size" yaml:"page_size"`
}

// DBConfig locates the local store
type DBConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

// SyncConfig schedules background syncs
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval" toml:"interval" yaml:"interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" toml:"probe_interval" yaml:"probe_interval"`
}

// RetryConfig bounds retries of a failed sync
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" toml:"max_attempts" yaml:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" toml:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" toml:"max_backoff" yaml:"max_backoff"`
}

// RFIDConfig connects the tag reader
type RFIDConfig struct {
	// ReaderURL is the reader's WebSocket endpoint; empty disables RFID.
	ReaderURL string `mapstructure:"reader_url" toml:"reader_url" yaml:"reader_url"`
	SessionID int64  `mapstructure:"session_id" toml:"session_id" yaml:"session_id"`
	Buffer    int    `mapstructure:"buffer" toml:"buffer" yaml:"buffer"`
}

// DashboardConfig serves the monitoring dashboard
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" toml:"host" yaml:"host"`
	Port    int    `mapstructure:"port" toml:"port" yaml:"port"`
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://localhost:8000")

	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.page_size", 500)

	v.SetDefault("db.path", defaultDBPath())

	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.probe_interval", "30s")

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "10s")
	v.SetDefault("retry.max_backoff", "2m")

	v.SetDefault("capture.use_lot", false)
	v.SetDefault("capture.use_expiry", false)
	v.SetDefault("capture.use_multiplier", false)
	v.SetDefault("capture.use_serial", false)
	v.SetDefault("capture.one_shot", false)
	v.SetDefault("capture.require_catalog", true)
	v.SetDefault("capture.force_accept", false)

	v.SetDefault("rfid.reader_url", "")
	v.SetDefault("rfid.session_id", 0)
	v.SetDefault("rfid.buffer", 256)

	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 8080)

	logs := logging.DefaultConfig()
	v.SetDefault("log.level", logs.Level)
	v.SetDefault("log.file", logs.File)
	v.SetDefault("log.max_size_mb", logs.MaxSizeMB)
	v.SetDefault("log.max_backups", logs.MaxBackups)
	v.SetDefault("log.max_age_days", logs.MaxAgeDays)
	v.SetDefault("log.format", logs.Format)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "countsync.db"
	}
	return filepath.Join(home, ".countsync", "countsync.db")
}

// New returns a viper instance with defaults, search paths and environment
// overrides set up. file, when not empty, replaces the search.
func New(file string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".countsync"))
		}
		v.AddConfigPath("/etc/countsync")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the config file into v. A missing file is not an error when the
// path was searched rather than given.
func Read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads file (or the searched config file) and returns the decoded
// configuration together with the viper instance it came from.
func Load(file string) (*Config, *viper.Viper, error) {
	v := New(file)
	if err := Read(v); err != nil {
		return nil, nil, err
	}
	cfg, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks if the Config has usable values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.url must be an absolute URL (got %q)", c.Server.URL)
	}
	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be positive")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		return fmt.Errorf("retry.max_backoff must not be shorter than retry.initial_backoff")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range (got %d)", c.Dashboard.Port)
	}
	if c.RFID.ReaderURL != "" && c.RFID.SessionID <= 0 {
		return fmt.Errorf("rfid.session_id is required when rfid.reader_url is set")
	}
	return nil
}

// Watch calls onChange with the re-decoded configuration whenever the config
// file changes on disk. Invalid edits are reported to onError and otherwise
// ignored.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// WriteTOML encodes cfg as a config file.
func WriteTOML(w io.Writer, cfg *Config) error {
	if _, err := fmt.Fprintln(w, "# countsync configuration"); err != nil {
		return err
	}
	return toml.NewEncoder(w).Encode(cfg)
}

// WriteYAML encodes cfg for display.
func WriteYAML(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// Init writes the default configuration to path. It refuses to overwrite an
// existing file unless force is set.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := WriteTOML(f, Default()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}
