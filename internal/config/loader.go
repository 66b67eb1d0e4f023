package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CHEERFEED"

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFiles   []string
}

// NewLoader creates a new configuration loader. A .env file in the working
// directory is read before environment overrides are resolved.
func NewLoader() *Loader {
	return &Loader{
		v:        viper.New(),
		envFiles: []string{".env"},
	}
}

// SetConfigFile sets an explicit config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetEnvFiles replaces the dotenv files read before loading. Variables
// already present in the process environment are never overwritten.
func (l *Loader) SetEnvFiles(paths ...string) {
	l.envFiles = paths
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	// Start with defaults
	cfg := DefaultConfig()

	// Set up Viper
	l.setupViper(cfg)

	// Load config file
	if err := l.loadConfigFile(); err != nil {
		// Config file is optional, only error if explicitly specified
		if l.configFile != "" {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply env var overrides (Viper's Unmarshal doesn't properly merge env vars for nested structs)
	l.applyEnvOverrides(cfg)

	// Expand ~ in paths
	expandPaths(cfg)

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadEnvFiles reads dotenv files that exist. Missing files are skipped.
func (l *Loader) loadEnvFiles() error {
	for _, path := range l.envFiles {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// expandPaths expands ~ in all path-related config fields.
func expandPaths(cfg *Config) {
	cfg.Global.DataDir = expandTilde(cfg.Global.DataDir)
	cfg.Global.ConfigDir = expandTilde(cfg.Global.ConfigDir)
	cfg.Storage.Path = expandTilde(cfg.Storage.Path)
	cfg.Logging.File = expandTilde(cfg.Logging.File)
}

// setupViper configures Viper with defaults and environment bindings.
func (l *Loader) setupViper(cfg *Config) {
	v := l.v

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		v.AddConfigPath(filepath.Join(xdgConfig, "cheerfeed"))
	}

	homeDir, _ := os.UserHomeDir()
	if homeDir != "" {
		v.AddConfigPath(filepath.Join(homeDir, ".config", "cheerfeed"))
	}

	// Current directory
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults from config struct
	l.setDefaults(cfg)

	// Explicitly bind environment variables (Viper's Unmarshal has issues without this)
	bindEnvVars(v)

	// AutomaticEnv for any keys not explicitly bound
	v.AutomaticEnv()
}

// setDefaults sets all default values in Viper.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v

	// Global
	v.SetDefault("global.data_dir", cfg.Global.DataDir)
	v.SetDefault("global.config_dir", cfg.Global.ConfigDir)

	// Storage
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("storage.busy_timeout_ms", cfg.Storage.BusyTimeoutMs)
	v.SetDefault("storage.event_retention", cfg.Storage.EventRetention)

	// Logging
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.enable_caller", cfg.Logging.EnableCaller)

	// LLM
	v.SetDefault("llm.backend", cfg.LLM.Backend)
	v.SetDefault("llm.proxy_url", cfg.LLM.ProxyURL)
	v.SetDefault("llm.api_key_env", cfg.LLM.APIKeyEnv)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)
	v.SetDefault("llm.breaker_failures", cfg.LLM.BreakerFailures)
	v.SetDefault("llm.breaker_timeout", cfg.LLM.BreakerTimeout)

	// Quota
	v.SetDefault("quota.burst_threshold", cfg.Quota.BurstThreshold)
	v.SetDefault("quota.burst_window", cfg.Quota.BurstWindow)
	v.SetDefault("quota.block_duration", cfg.Quota.BlockDuration)
	v.SetDefault("quota.daily_limit", cfg.Quota.DailyLimit)

	// Timeline
	v.SetDefault("timeline.reveal_cap", cfg.Timeline.RevealCap)
	v.SetDefault("timeline.reveal_min", cfg.Timeline.RevealMin)
	v.SetDefault("timeline.reveal_max", cfg.Timeline.RevealMax)
	v.SetDefault("timeline.quote_delay_min", cfg.Timeline.QuoteDelayMin)
	v.SetDefault("timeline.quote_delay_max", cfg.Timeline.QuoteDelayMax)
	v.SetDefault("timeline.quote_offset", cfg.Timeline.QuoteOffset)
	v.SetDefault("timeline.page_size", cfg.Timeline.PageSize)
	v.SetDefault("timeline.page_increment", cfg.Timeline.PageIncrement)
	v.SetDefault("timeline.recent_context_posts", cfg.Timeline.RecentContextPosts)

	// Server
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.proxy_path", cfg.Server.ProxyPath)
}

// loadConfigFile attempts to load the configuration file.
func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return nil
		}
		return err
	}

	return nil
}

// ConfigFileUsed returns the config file that was loaded.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Get returns a Viper value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a Viper value by key.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// Viper returns the underlying Viper instance for advanced use.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	loader := NewLoader()
	return loader.Load()
}

// envBindings lists every key that supports an environment override.
var envBindings = []string{
	// Global
	"global.data_dir",
	"global.config_dir",
	// Storage
	"storage.backend",
	"storage.path",
	"storage.dsn",
	"storage.busy_timeout_ms",
	"storage.event_retention",
	// Logging
	"logging.level",
	"logging.format",
	"logging.file",
	"logging.enable_caller",
	// LLM
	"llm.backend",
	"llm.proxy_url",
	"llm.api_key_env",
	"llm.model",
	"llm.timeout",
	"llm.breaker_failures",
	"llm.breaker_timeout",
	// Quota
	"quota.burst_threshold",
	"quota.burst_window",
	"quota.block_duration",
	"quota.daily_limit",
	// Timeline
	"timeline.reveal_cap",
	"timeline.reveal_min",
	"timeline.reveal_max",
	"timeline.quote_delay_min",
	"timeline.quote_delay_max",
	"timeline.quote_offset",
	"timeline.page_size",
	"timeline.page_increment",
	"timeline.recent_context_posts",
	// Server
	"server.addr",
	"server.read_timeout",
	"server.write_timeout",
	"server.proxy_path",
}

// EnvVar returns the environment variable bound to a config key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// bindEnvVars binds environment variables for config keys.
// Viper's Unmarshal has issues with env vars on nested structs unless explicitly bound.
func bindEnvVars(v *viper.Viper) {
	for _, key := range envBindings {
		_ = v.BindEnv(key, EnvVar(key))
	}
}

// applyEnvOverrides manually applies env var overrides to the config struct.
// This is needed because Viper's Unmarshal doesn't properly merge env vars
// for nested struct fields when a config file is present.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	v := l.v

	// Global
	if dataDir := v.GetString("global.data_dir"); dataDir != "" {
		cfg.Global.DataDir = dataDir
	}
	if configDir := v.GetString("global.config_dir"); configDir != "" {
		cfg.Global.ConfigDir = configDir
	}

	// Storage
	if backend := v.GetString("storage.backend"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := v.GetString("storage.path"); path != "" {
		cfg.Storage.Path = path
	}
	if dsn := v.GetString("storage.dsn"); dsn != "" {
		cfg.Storage.DSN = dsn
	}

	// Logging
	if level := v.GetString("logging.level"); level != "" && level != "info" { // "info" is default
		cfg.Logging.Level = level
	}
	if format := v.GetString("logging.format"); format != "" && format != "console" { // "console" is default
		cfg.Logging.Format = format
	}
	if file := v.GetString("logging.file"); file != "" {
		cfg.Logging.File = file
	}

	// LLM
	if backend := v.GetString("llm.backend"); backend != "" {
		cfg.LLM.Backend = backend
	}
	if proxyURL := v.GetString("llm.proxy_url"); proxyURL != "" {
		cfg.LLM.ProxyURL = proxyURL
	}
	if model := v.GetString("llm.model"); model != "" {
		cfg.LLM.Model = model
	}

	// Quota
	if limit := v.GetInt("quota.daily_limit"); limit > 0 {
		cfg.Quota.DailyLimit = limit
	}

	// Server
	if addr := v.GetString("server.addr"); addr != "" {
		cfg.Server.Addr = addr
	}
}
