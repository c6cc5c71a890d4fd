// Package config provides configuration structs and utilities for the
// projectgate gateway.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents the root configuration of the gateway.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Cache         CacheConfig         `yaml:"cache"`
	Commands      CommandsConfig      `yaml:"commands"`
	Sync          SyncConfig          `yaml:"sync"`
	Storage       StorageConfig       `yaml:"storage"`
	Remote        RemoteConfig        `yaml:"remote"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// CacheConfig sizes the per-project workspace handle cache.
type CacheConfig struct {
	MaxCachedFixedVersions int `yaml:"max_cached_fixed_versions"`
}

// CommandsConfig bounds the undo and redo stacks.
type CommandsConfig struct {
	MaxUndoRedoDepth int `yaml:"max_undo_redo_depth"`
}

// SyncConfig controls automatic synchronization.
type SyncConfig struct {
	// DebounceDelay is the quiet period after the last edit before an
	// automatic sync runs. Zero disables automatic sync.
	DebounceDelay time.Duration `yaml:"debounce_delay"`
	// SizeThreshold is the largest project pushed automatically.
	SizeThreshold ByteSize `yaml:"size_threshold"`
	// DisposeOnThreshold turns automatic sync off for a project whose
	// automatic sync exceeded the threshold.
	DisposeOnThreshold bool `yaml:"dispose_on_threshold"`
}

// StorageConfig locates local persistence.
type StorageConfig struct {
	Path     string `yaml:"path"`      // SQLite database file
	WatchDir string `yaml:"watch_dir"` // directory of importable <project>.json files; empty disables
}

// RemoteConfig selects and configures the remote uploader.
type RemoteConfig struct {
	Kind     string        `yaml:"kind"` // none, http
	Endpoint string        `yaml:"endpoint"`
	TokenEnv string        `yaml:"token_env"` // environment variable holding the bearer token
	Timeout  time.Duration `yaml:"timeout"`
	MaxTries uint          `yaml:"max_tries"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ObservabilityConfig holds configuration for metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds configuration for metrics collection.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // HTTP path of the Prometheus endpoint
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // Whether tracing is enabled
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // OTLP collector endpoint
	SampleRate   float64 `yaml:"sample_rate"`   // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"`  // Service name for traces
}

// Default configuration values.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultMaxCachedFixedVersions = 5
	DefaultMaxUndoRedoDepth       = 5

	DefaultSyncDebounceDelay = 2 * time.Second
	DefaultSyncSizeThreshold = ByteSize(10 * 1000 * 1000) // 10 MB

	DefaultStoragePath = "~/.projectgate/projectgate.db"

	DefaultRemoteKind     = RemoteKindNone
	DefaultRemoteTimeout  = 30 * time.Second
	DefaultRemoteMaxTries = 3

	DefaultServerAddress   = "127.0.0.1:8470"
	DefaultShutdownTimeout = 10 * time.Second

	DefaultMetricsEnabled      = true
	DefaultMetricsPath         = "/metrics"
	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "projectgate"
)

// Remote uploader kinds.
const (
	RemoteKindNone = "none"
	RemoteKindHTTP = "http"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// NewDefaultConfig creates a new Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Cache: CacheConfig{
			MaxCachedFixedVersions: DefaultMaxCachedFixedVersions,
		},
		Commands: CommandsConfig{
			MaxUndoRedoDepth: DefaultMaxUndoRedoDepth,
		},
		Sync: SyncConfig{
			DebounceDelay:      DefaultSyncDebounceDelay,
			SizeThreshold:      DefaultSyncSizeThreshold,
			DisposeOnThreshold: true,
		},
		Storage: StorageConfig{
			Path: DefaultStoragePath,
		},
		Remote: RemoteConfig{
			Kind:     DefaultRemoteKind,
			Timeout:  DefaultRemoteTimeout,
			MaxTries: DefaultRemoteMaxTries,
		},
		Server: ServerConfig{
			Address:         DefaultServerAddress,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		err  error
	}{
		{"logging", c.Logging.Validate()},
		{"cache", c.Cache.Validate()},
		{"commands", c.Commands.Validate()},
		{"sync", c.Sync.Validate()},
		{"storage", c.Storage.Validate()},
		{"remote", c.Remote.Validate()},
		{"server", c.Server.Validate()},
		{"observability", c.Observability.Validate()},
	}

	var errs []error
	for _, s := range sections {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, s.err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}
	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	return errors.Join(errs...)
}

// Validate checks if the CacheConfig is valid.
func (c *CacheConfig) Validate() error {
	if c.MaxCachedFixedVersions < 1 {
		return errors.New("max_cached_fixed_versions must be at least 1")
	}
	return nil
}

// Validate checks if the CommandsConfig is valid.
func (c *CommandsConfig) Validate() error {
	if c.MaxUndoRedoDepth < 1 {
		return errors.New("max_undo_redo_depth must be at least 1")
	}
	return nil
}

// Validate checks if the SyncConfig is valid.
func (s *SyncConfig) Validate() error {
	var errs []error

	if s.DebounceDelay < 0 {
		errs = append(errs, errors.New("debounce_delay must be non-negative"))
	}
	if s.SizeThreshold < 0 {
		errs = append(errs, errors.New("size_threshold must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the StorageConfig is valid.
func (s *StorageConfig) Validate() error {
	if s.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

// Validate checks if the RemoteConfig is valid.
func (r *RemoteConfig) Validate() error {
	var errs []error

	switch r.Kind {
	case "", RemoteKindNone:
	case RemoteKindHTTP:
		if r.Endpoint == "" {
			errs = append(errs, errors.New("endpoint is required for the http remote"))
		} else if u, err := url.Parse(r.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid endpoint: %w", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, errors.New("endpoint must use http or https scheme"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid kind %q: must be one of none, http", r.Kind))
	}

	if r.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the ServerConfig is valid.
func (s *ServerConfig) Validate() error {
	var errs []error

	if s.Address == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdown_timeout must be non-negative"))
	}

	return errors.Join(errs...)
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	var errs []error

	if o.Metrics.Enabled && !strings.HasPrefix(o.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics: path %q must start with /", o.Metrics.Path))
	}
	if err := o.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	return errors.Join(errs...)
}

// ExpandHome replaces a leading ~ in path with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
