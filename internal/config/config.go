package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/agent462/drove/internal/telemetry"
)

// EnvPrefix marks environment variables that override file settings.
const EnvPrefix = "DROVE_"

// LegacyConfigFile is picked up from the working directory when no
// --config flag is given.
const LegacyConfigFile = "config.json"

// Config represents the top-level drove configuration.
type Config struct {
	Groups    map[string][]string `koanf:"groups"`
	Defaults  Defaults            `koanf:"defaults"`
	Telemetry telemetry.Config    `koanf:"telemetry"`
	History   History             `koanf:"history"`
}

// Defaults holds run settings that flags may override.
type Defaults struct {
	Concurrency int           `koanf:"concurrency"`
	Retries     int           `koanf:"retries"`
	Timeout     time.Duration `koanf:"timeout"`
	RunTimeout  time.Duration `koanf:"run_timeout"`
	Port        int           `koanf:"port"` // 0 defers to ~/.ssh/config, then 22
	Insecure    bool          `koanf:"insecure"`
	KnownHosts  string        `koanf:"known_hosts"`
}

// History configures the run history database.
type History struct {
	Path string `koanf:"path"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Groups: make(map[string][]string),
		Defaults: Defaults{
			Concurrency: 20,
			Retries:     3,
			Timeout:     5 * time.Minute,
			KnownHosts:  "~/.ssh/known_hosts",
		},
	}
}

// DefaultConfigPath returns the default config file path.
// Respects $XDG_CONFIG_HOME if set, otherwise falls back to ~/.config.
func DefaultConfigPath() string {
	if dir := configDir(); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return ""
}

// DefaultHistoryPath returns where the history database lives unless
// history.path says otherwise.
func DefaultHistoryPath() string {
	if dir := configDir(); dir != "" {
		return filepath.Join(dir, "history.db")
	}
	return "drove-history.db"
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "drove")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "drove")
}

// ResolvePath picks the config file to load. An explicit path always wins,
// then ./config.json, then the XDG location. required reports whether the
// file must exist.
func ResolvePath(explicit string) (path string, required bool) {
	if explicit != "" {
		return explicit, true
	}
	if _, err := os.Stat(LegacyConfigFile); err == nil {
		return LegacyConfigFile, true
	}
	return DefaultConfigPath(), false
}

// Load reads the config file at path, layered over built-in defaults and
// under DROVE_ environment overrides. Files ending in .json are parsed as
// JSON, anything else as YAML.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}

	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: fmt.Errorf("parse config file: %w", err)}
	}

	if err := loadEnvOverrides(k); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}

	cfg, err := unmarshalAndValidate(k)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// LoadOptional loads path if it exists and otherwise returns the defaults
// with environment overrides applied.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	if err := loadEnvOverrides(k); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	cfg, err := unmarshalAndValidate(k)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Defaults.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("defaults.concurrency must be non-negative, got %d", c.Defaults.Concurrency))
	}
	if c.Defaults.Timeout < 0 {
		errs = append(errs, fmt.Errorf("defaults.timeout must be non-negative, got %s", c.Defaults.Timeout))
	}
	if c.Defaults.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("defaults.run_timeout must be non-negative, got %s", c.Defaults.RunTimeout))
	}
	if c.Defaults.Port < 0 || c.Defaults.Port > 65535 {
		errs = append(errs, fmt.Errorf("defaults.port must be between 0 and 65535, got %d", c.Defaults.Port))
	}

	for name, hosts := range c.Groups {
		for i, h := range hosts {
			if strings.TrimSpace(h) == "" {
				errs = append(errs, fmt.Errorf("group %q host %d is empty", name, i))
			}
		}
	}

	return errors.Join(errs...)
}

// --- helpers ---

func loadDefaults(k *koanf.Koanf) error {
	defaults := DefaultConfig()
	return k.Load(confmap.Provider(map[string]interface{}{
		"defaults.concurrency":    defaults.Defaults.Concurrency,
		"defaults.retries":        defaults.Defaults.Retries,
		"defaults.timeout":        defaults.Defaults.Timeout,
		"defaults.run_timeout":    defaults.Defaults.RunTimeout,
		"defaults.port":           defaults.Defaults.Port,
		"defaults.insecure":       defaults.Defaults.Insecure,
		"defaults.known_hosts":    defaults.Defaults.KnownHosts,
		"telemetry.enabled":       defaults.Telemetry.Enabled,
		"telemetry.otlp_endpoint": defaults.Telemetry.OTLPEndpoint,
		"history.path":            defaults.History.Path,
	}, "."), nil)
}

func loadEnvOverrides(k *koanf.Koanf) error {
	// DROVE_DEFAULTS_RUN_TIMEOUT → defaults.run_timeout
	// DROVE_GROUPS_PROD="h1,h2" → groups.prod
	return k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if idx := strings.Index(key, "_"); idx >= 0 {
			key = key[:idx] + "." + key[idx+1:]
		}
		if strings.HasPrefix(key, "groups.") {
			return key, splitHosts(value)
		}
		return key, value
	}), nil)
}

func splitHosts(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

func unmarshalAndValidate(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Groups == nil {
		cfg.Groups = make(map[string][]string)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
