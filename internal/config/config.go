// Package config loads and writes the linsync configuration file.
//
// Values come from, in increasing precedence: built-in defaults, the YAML
// file (~/.config/linsync/config.yaml by default), and LINSYNC_* environment
// variables (LINSYNC_API_ENDPOINT, LINSYNC_LOG_LEVEL, ...).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/toba/linsync/internal/constants"
)

// Config is the top-level application configuration.
type Config struct {
	API         APIConfig         `mapstructure:"api" yaml:"api"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	Sync        SyncConfig        `mapstructure:"sync" yaml:"sync"`
	Webhook     WebhookConfig     `mapstructure:"webhook" yaml:"webhook"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`

	// path is the file this config was loaded from; empty for defaults.
	path string
}

// APIConfig controls the Linear client.
type APIConfig struct {
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxInterval time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// StoreConfig locates the local task list.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SyncConfig holds sync defaults.
type SyncConfig struct {
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// WebhookConfig holds webhook receiver settings.
type WebhookConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	Path string `mapstructure:"path" yaml:"path"`
}

// CredentialsConfig locates the credential store.
type CredentialsConfig struct {
	Path    string `mapstructure:"path" yaml:"path"`
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Dir returns the default configuration directory, ~/.config/linsync.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+constants.AppName)
	}
	return filepath.Join(home, ".config", constants.AppName)
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), constants.ConfigFileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := Dir()
	return &Config{
		API: APIConfig{
			Endpoint:    constants.DefaultEndpoint,
			Timeout:     30 * time.Second,
			Interval:    100 * time.Millisecond,
			MaxInterval: 5 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, constants.TasksFileName),
		},
		Sync: SyncConfig{
			Limit: 100,
		},
		Webhook: WebhookConfig{
			Addr: ":8787",
			Path: constants.DefaultWebhookPath,
		},
		Credentials: CredentialsConfig{
			Path:    filepath.Join(dir, constants.CredentialsFileName),
			Backend: constants.BackendFile,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.path = path

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file omits them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.endpoint", d.API.Endpoint)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.interval", d.API.Interval)
	v.SetDefault("api.max_interval", d.API.MaxInterval)
	v.SetDefault("api.max_attempts", d.API.MaxAttempts)
	v.SetDefault("api.base_delay", d.API.BaseDelay)
	v.SetDefault("api.max_delay", d.API.MaxDelay)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("sync.limit", d.Sync.Limit)
	v.SetDefault("webhook.addr", d.Webhook.Addr)
	v.SetDefault("webhook.path", d.Webhook.Path)
	v.SetDefault("credentials.path", d.Credentials.Path)
	v.SetDefault("credentials.backend", d.Credentials.Backend)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.API.Endpoint == "" {
		errs = append(errs, errors.New("api.endpoint is required"))
	}
	if c.API.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("api.max_attempts must be at least 1, got %d", c.API.MaxAttempts))
	}
	if c.API.MaxInterval > 0 && c.API.Interval > c.API.MaxInterval {
		errs = append(errs, fmt.Errorf("api.interval %s exceeds api.max_interval %s", c.API.Interval, c.API.MaxInterval))
	}
	if c.Sync.Limit < 1 {
		errs = append(errs, fmt.Errorf("sync.limit must be positive, got %d", c.Sync.Limit))
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		errs = append(errs, fmt.Errorf("webhook.path must start with /, got %q", c.Webhook.Path))
	}
	switch c.Credentials.Backend {
	case constants.BackendFile, constants.BackendKeyring:
	default:
		errs = append(errs, fmt.Errorf("credentials.backend must be %q or %q, got %q", constants.BackendFile, constants.BackendKeyring, c.Credentials.Backend))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

const fileHeader = "# linsync configuration. Environment variables prefixed with LINSYNC_ override these values.\n"

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
