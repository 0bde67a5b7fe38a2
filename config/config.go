// Package config provides YAML configuration parsing for SMSHog.
//
// This package enables running SMSHog as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// Every key is optional.
//
// Example configuration:
//
//	port: 3000
//	log_level: info
//
//	persistence:
//	  enabled: true
//	  path: ${SMSHOG_DATA_DIR:-.}/smshog-data.json
//	  flush_interval: 30s
//
//	cors_origins: ["http://localhost:5173"]
//	admitted_attributes: [MonthlySpendLimit]
//	unique_request_ids: false
//
//	metrics:
//	  enabled: true
//
// After the file is parsed, the SMSHOG_PERSIST, SMSHOG_PERSIST_PATH and PORT
// environment variables override it. See [Config.ApplyEnv].
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the listen port when none is configured.
	DefaultPort = 3000

	// DefaultPersistPath is the snapshot file used when persistence is on
	// and no path is configured.
	DefaultPersistPath = "smshog-data.json"

	// DefaultFlushInterval is the periodic snapshot interval.
	DefaultFlushInterval = 30 * time.Second
)

// Environment variables read by [Config.ApplyEnv].
const (
	EnvPersist     = "SMSHOG_PERSIST"
	EnvPersistPath = "SMSHOG_PERSIST_PATH"
	EnvPort        = "PORT"
)

// Config is the root configuration structure for SMSHog.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML, or [Default] when there
// is no file.
type Config struct {
	// Port is the HTTP server port. Defaults to 3000.
	Port int `yaml:"port"`

	// LogLevel is one of debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Persistence controls the snapshot file.
	Persistence PersistenceConfig `yaml:"persistence"`

	// CORSOrigins lists the browser origins allowed to call the server.
	// Defaults to ["*"]. An explicit empty list disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`

	// AdmittedAttributes are extra SMS attribute names SetSMSAttributes may
	// store.
	AdmittedAttributes []string `yaml:"admitted_attributes"`

	// UniqueRequestIDs replaces the fixed placeholder RequestId with a
	// fresh id per response.
	UniqueRequestIDs bool `yaml:"unique_request_ids"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// PersistenceConfig defines where and how often the store is written to disk.
type PersistenceConfig struct {
	// Enabled turns persistence on. Defaults to false.
	Enabled bool `yaml:"enabled"`

	// Path is the snapshot file. Supports environment variable
	// substitution: ${VAR} or ${VAR:-default}. Defaults to smshog-data.json.
	Path string `yaml:"path"`

	// FlushInterval is the periodic snapshot interval. Defaults to 30s.
	FlushInterval Duration `yaml:"flush_interval"`
}

// MetricsConfig defines the Prometheus endpoint settings.
type MetricsConfig struct {
	// Enabled serves /metrics. Defaults to true.
	Enabled bool `yaml:"enabled"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Port:        DefaultPort,
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
		Persistence: PersistenceConfig{
			Path:          DefaultPersistPath,
			FlushInterval: Duration(DefaultFlushInterval),
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data on top of [Default].
//
// Environment variables are expanded in persistence.path and cors_origins.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expand applies environment substitution and fills blank values.
func (c *Config) expand() error {
	path, err := expandEnvVars(c.Persistence.Path)
	if err != nil {
		return fmt.Errorf("persistence.path: %w", err)
	}
	c.Persistence.Path = strings.TrimSpace(path)
	if c.Persistence.Path == "" {
		c.Persistence.Path = DefaultPersistPath
	}
	if c.Persistence.FlushInterval == 0 {
		c.Persistence.FlushInterval = Duration(DefaultFlushInterval)
	}

	for i, origin := range c.CORSOrigins {
		expanded, err := expandEnvVars(origin)
		if err != nil {
			return fmt.Errorf("cors_origins[%d]: %w", i, err)
		}
		c.CORSOrigins[i] = expanded
	}
	return nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Persistence.FlushInterval.Duration() < 0 {
		return fmt.Errorf("persistence.flush_interval cannot be negative, got %s", c.Persistence.FlushInterval.Duration())
	}
	if c.Persistence.Enabled && c.Persistence.Path == "" {
		return fmt.Errorf("persistence.path is required when persistence is enabled")
	}

	for i, origin := range c.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("cors_origins[%d]: origin cannot be empty", i)
		}
	}

	seen := make(map[string]struct{}, len(c.AdmittedAttributes))
	for i, name := range c.AdmittedAttributes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("admitted_attributes[%d]: name cannot be empty", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("admitted_attributes[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}
	}

	return nil
}

// ApplyEnv overrides the configuration from environment variables read
// through lookup (os.LookupEnv in production):
//
//   - SMSHOG_PERSIST turns persistence on for true, 1, yes or on and off for
//     any other value
//   - SMSHOG_PERSIST_PATH replaces the snapshot path
//   - PORT replaces the listen port
//
// The result is validated again.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPersist); ok {
		c.Persistence.Enabled = truthy(v)
	}
	if v, ok := lookup(EnvPersistPath); ok && strings.TrimSpace(v) != "" {
		c.Persistence.Path = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Port = port
	}
	return c.Validate()
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
