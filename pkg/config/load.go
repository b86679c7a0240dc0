package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies JANUS_* environment variable overrides. The environment always
// takes precedence over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides using the
// JANUS_SECTION_FIELD naming convention.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("JANUS_ADMIN_ADDRESS"); val != "" {
		cfg.Admin.Address = val
	}
	if val := os.Getenv("JANUS_RUNTIME_ROOT"); val != "" {
		cfg.Runtime.Root = val
	}
	if val := os.Getenv("JANUS_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("JANUS_LOG_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("JANUS_ACCESS_LOG_PATH"); val != "" {
		cfg.AccessLog.Path = val
	}
	if val := os.Getenv("JANUS_ACCESS_LOG_SQLITE_PATH"); val != "" {
		cfg.AccessLog.SQLitePath = val
	}
	if val := os.Getenv("JANUS_ACCESS_LOG_RETENTION_MAX_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.AccessLog.RetentionMaxAge = d
		}
	}
}
