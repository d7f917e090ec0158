// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Layouts is the path of the persisted layout store.
	Layouts string `mapstructure:"layouts"`

	// ApplyCommand is a shell string run after each successful apply or
	// save. Empty disables it.
	ApplyCommand string `mapstructure:"apply_command"`

	// DebounceMs coalesces bursts of output events into one decision.
	DebounceMs int `mapstructure:"debounce_ms"`

	// WatchLayouts reloads the store when the file is edited externally.
	WatchLayouts bool `mapstructure:"watch_layouts"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

// DefaultConfig provides sensible defaults
var DefaultConfig = Config{
	Layouts:      defaultLayoutsPath(),
	ApplyCommand: "",
	DebounceMs:   500,
	WatchLayouts: true,
	Logging: LoggingConfig{
		LogLevel: "", // Empty means use LOG_LEVEL env var
	},
}

var (
	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("waykeep")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
			viper.AddConfigPath(filepath.Join(dir, "waykeep"))
		} else if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "waykeep"))
		}
		viper.AddConfigPath("/etc/waykeep")
	}

	// Set defaults - individual keys so a partial file merges cleanly
	viper.SetDefault("layouts", DefaultConfig.Layouts)
	viper.SetDefault("apply_command", DefaultConfig.ApplyCommand)
	viper.SetDefault("debounce_ms", DefaultConfig.DebounceMs)
	viper.SetDefault("watch_layouts", DefaultConfig.WatchLayouts)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// LayoutsPath returns the store path with a leading ~ expanded.
func (c *Config) LayoutsPath() (string, error) {
	return expandUser(c.Layouts)
}

// Debounce returns the debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	if c.DebounceMs <= 0 {
		return 0
	}
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func expandUser(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %q: %w", path, err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

func defaultLayoutsPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "waykeep", "layouts.json")
	}
	return "~/.local/state/waykeep/layouts.json"
}
