package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration struct for the application.
// It holds settings for logging, the optional HTTP sidecar, and the
// detection rule document. Tags are used by Viper to map YAML keys to
// struct fields.
type Config struct {
	LogLevel   string `mapstructure:"log_level"`
	APIPort    string `mapstructure:"api_port"` // empty disables the HTTP sidecar
	RulesPath  string `mapstructure:"rules_path"`
	WatchRules bool   `mapstructure:"watch_rules"`
	ServerName string `mapstructure:"server_name"`
}

// LoadConfig reads the configuration from a YAML file (e.g., config.yaml) and
// environment variables. It uses Viper for robust configuration management,
// allowing for defaults and environment variable overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")           // Search in current directory
	v.AddConfigPath("/etc/ntomb/") // Search in /etc/ntomb/

	// Set default values
	v.SetDefault("log_level", "info")
	v.SetDefault("api_port", "") // Sidecar disabled unless a port is given
	v.SetDefault("rules_path", "rules/suspicious_detection.yaml")
	v.SetDefault("watch_rules", true)
	v.SetDefault("server_name", "ntomb-os-intel")

	// Read environment variables
	v.SetEnvPrefix("NTOMB")                            // Look for NTOMB_ prefix
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores for nested keys
	v.AutomaticEnv()                                   // Automatically bind environment variables to config keys

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: defaults and environment variables apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
