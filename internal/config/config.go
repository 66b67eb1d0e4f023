// Package config handles cheerfeed configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tOgg1/cheerfeed/internal/quota"
	"github.com/tOgg1/cheerfeed/internal/timeline"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Generator backends.
const (
	LLMProxy  = "proxy"
	LLMGemini = "gemini"
	LLMStatic = "static"
)

// Config is the root configuration structure for cheerfeed.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Storage selects where the timeline and counters are kept.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// LLM selects and tunes the reply generator.
	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`

	// Quota rations generation calls.
	Quota quota.Config `yaml:"quota" mapstructure:"quota"`

	// Timeline tunes reveal and quote-repost timing and paging.
	Timeline timeline.Config `yaml:"timeline" mapstructure:"timeline"`

	// Server settings for `cheerfeed serve`.
	Server ServerConfig `yaml:"server" mapstructure:"server"`
}

// GlobalConfig contains global cheerfeed settings.
type GlobalConfig struct {
	// DataDir is where cheerfeed stores its data (default: ~/.local/share/cheerfeed).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/cheerfeed).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	// Backend is one of memory, file, sqlite, postgres.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Path is the file or SQLite database path. Defaults under DataDir.
	Path string `yaml:"path" mapstructure:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" mapstructure:"dsn"`

	// BusyTimeoutMs is how long to wait for a locked SQLite database.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`

	// EventRetention is how many activity events the SQLite log keeps.
	EventRetention int `yaml:"event_retention" mapstructure:"event_retention"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// LLMConfig contains generator settings.
type LLMConfig struct {
	// Backend is one of proxy, gemini, static.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// ProxyURL is the endpoint speaking the proxy protocol.
	ProxyURL string `yaml:"proxy_url" mapstructure:"proxy_url"`

	// APIKeyEnv names the environment variable holding the Gemini key.
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`

	// Model is the Gemini model name.
	Model string `yaml:"model" mapstructure:"model"`

	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	BreakerFailures int           `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" mapstructure:"breaker_timeout"`
}

// APIKey resolves the key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// ProxyPath is where the generator proxy endpoint is mounted.
	ProxyPath string `yaml:"proxy_path" mapstructure:"proxy_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "cheerfeed"),
			ConfigDir: filepath.Join(homeDir, ".config", "cheerfeed"),
		},
		Storage: StorageConfig{
			Backend:        BackendSQLite,
			Path:           "", // Will be set to DataDir/cheerfeed.db
			BusyTimeoutMs:  5000,
			EventRetention: 5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		LLM: LLMConfig{
			Backend:         LLMGemini,
			APIKeyEnv:       "GEMINI_API_KEY",
			Model:           "gemini-2.5-flash",
			Timeout:         30 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Quota:    quota.DefaultConfig(),
		Timeline: timeline.DefaultConfig(),
		Server: ServerConfig{
			Addr:         "127.0.0.1:8787",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			ProxyPath:    "/.netlify/functions/gemini-proxy",
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSQLite:
	case BackendPostgres:
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of memory, file, sqlite, postgres (got %q)", c.Storage.Backend))
	}
	if c.Storage.BusyTimeoutMs < 0 {
		errs = append(errs, errors.New("storage.busy_timeout_ms must be >= 0"))
	}

	switch c.LLM.Backend {
	case LLMGemini, LLMStatic:
	case LLMProxy:
		if c.LLM.ProxyURL == "" {
			errs = append(errs, errors.New("llm.proxy_url is required for the proxy backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.backend must be one of proxy, gemini, static (got %q)", c.LLM.Backend))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.BreakerFailures < 1 {
		errs = append(errs, errors.New("llm.breaker_failures must be at least 1"))
	}

	if err := c.Quota.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("quota: %w", err))
	}
	if err := c.Timeline.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("timeline: %w", err))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// StoragePath returns the full path of the file or SQLite backend.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == BackendFile {
		return filepath.Join(c.Global.DataDir, "cheerfeed.json")
	}
	return filepath.Join(c.Global.DataDir, "cheerfeed.db")
}
