// Package config provides configuration management for tvgrid using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultHTTPTimeout   = 60 * time.Second
	defaultMaxConcurrent = 3
	defaultRetryAttempts = 3
	defaultRetryDelay    = 5 * time.Second
	defaultRefreshCron   = "@every 6h"
	defaultWatchDebounce = 500 * time.Millisecond

	defaultFuzzyMaxDistance = 2

	defaultLogoConcurrency = 10
	defaultLogoTimeout     = 30 * time.Second
	defaultLogoStatusCodes = "200-299,404"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Guide    GuideConfig    `mapstructure:"guide"`
	Logos    LogosConfig    `mapstructure:"logos"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	LogoDir   string `mapstructure:"logo_dir"`
	ExportDir string `mapstructure:"export_dir"`
	// LogoRetention is how long a cached logo is kept after its last use.
	// Supports human-readable values like "30d" or "2w".
	LogoRetention Duration `mapstructure:"logo_retention"`
	// MaxLogoSize is the maximum allowed size for logo files.
	// Supports human-readable values like "5MB", "1GB", or raw byte counts.
	MaxLogoSize ByteSize `mapstructure:"max_logo_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SourcesConfig holds playlist and guide download configuration.
type SourcesConfig struct {
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// MaxResponseSize caps a downloaded playlist or guide after
	// decompression. Supports human-readable values like "100MB".
	MaxResponseSize ByteSize `mapstructure:"max_response_size"`
	// RefreshCron is the schedule applied to sources that do not declare
	// their own. Accepts cron expressions and @every descriptors.
	RefreshCron string `mapstructure:"refresh_cron"`
	// WatchLocalFiles reloads sources backed by local files when the
	// file changes on disk.
	WatchLocalFiles bool          `mapstructure:"watch_local_files"`
	WatchDebounce   time.Duration `mapstructure:"watch_debounce"`
}

// GuideConfig holds channel-to-guide matching configuration.
type GuideConfig struct {
	// FuzzyMatching enables the edit-distance fallback tier for channels
	// with no tvg-id and no exact name match. Off by default.
	FuzzyMatching    bool `mapstructure:"fuzzy_matching"`
	FuzzyMaxDistance int  `mapstructure:"fuzzy_max_distance"`
}

// LogosConfig holds logo cache configuration.
type LogosConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Concurrency   int           `mapstructure:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	// AcceptableStatusCodes lists responses that do not trip the logo
	// circuit breaker. A 404 for a missing logo is not a provider failure.
	AcceptableStatusCodes string `mapstructure:"acceptable_status_codes"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TVGRID_ and use underscores for
// nesting. Example: TVGRID_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tvgrid")
		v.AddConfigPath("$HOME/.tvgrid")
	}

	// Environment variable settings
	v.SetEnvPrefix("TVGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	// ByteSize and Duration fields unmarshal from their text forms; the
	// stock hook chain only understands time.Duration.
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))

	var cfg Config
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "tvgrid.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.logo_dir", "logos")
	v.SetDefault("storage.export_dir", "export")
	v.SetDefault("storage.logo_retention", "30d")
	v.SetDefault("storage.max_logo_size", "5MB")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Source download defaults
	v.SetDefault("sources.http_timeout", defaultHTTPTimeout)
	v.SetDefault("sources.max_concurrent", defaultMaxConcurrent)
	v.SetDefault("sources.retry_attempts", defaultRetryAttempts)
	v.SetDefault("sources.retry_delay", defaultRetryDelay)
	v.SetDefault("sources.max_response_size", "100MB")
	v.SetDefault("sources.refresh_cron", defaultRefreshCron)
	v.SetDefault("sources.watch_local_files", true)
	v.SetDefault("sources.watch_debounce", defaultWatchDebounce)

	// Guide matching defaults
	v.SetDefault("guide.fuzzy_matching", false)
	v.SetDefault("guide.fuzzy_max_distance", defaultFuzzyMaxDistance)

	// Logo cache defaults
	v.SetDefault("logos.enabled", true)
	v.SetDefault("logos.concurrency", defaultLogoConcurrency)
	v.SetDefault("logos.timeout", defaultLogoTimeout)
	v.SetDefault("logos.retry_attempts", defaultRetryAttempts)
	v.SetDefault("logos.acceptable_status_codes", defaultLogoStatusCodes)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	validDBLevels := map[string]bool{"silent": true, "error": true, "warn": true, "info": true}
	if !validDBLevels[c.Database.LogLevel] {
		return fmt.Errorf("database.log_level must be one of: silent, error, warn, info")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns must not be negative")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Source download validation
	const maxConcurrent = 100
	if c.Sources.MaxConcurrent < 1 || c.Sources.MaxConcurrent > maxConcurrent {
		return fmt.Errorf("sources.max_concurrent must be between 1 and %d", maxConcurrent)
	}
	if c.Sources.RetryAttempts < 0 {
		return fmt.Errorf("sources.retry_attempts must not be negative")
	}
	if c.Sources.HTTPTimeout < time.Second {
		return fmt.Errorf("sources.http_timeout must be at least 1s")
	}

	// Guide matching validation
	const maxFuzzyDistance = 10
	if c.Guide.FuzzyMaxDistance < 0 || c.Guide.FuzzyMaxDistance > maxFuzzyDistance {
		return fmt.Errorf("guide.fuzzy_max_distance must be between 0 and %d", maxFuzzyDistance)
	}

	// Logo cache validation
	const maxLogoConcurrency = 100
	if c.Logos.Concurrency < 1 || c.Logos.Concurrency > maxLogoConcurrency {
		return fmt.Errorf("logos.concurrency must be between 1 and %d", maxLogoConcurrency)
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogoPath returns the full path to the logo cache directory.
func (c *StorageConfig) LogoPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.LogoDir)
}

// ExportPath returns the full path to the export directory.
func (c *StorageConfig) ExportPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.ExportDir)
}
