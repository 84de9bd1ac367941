// Package config handles loading and validating the plumb configuration
// from <UserConfigDir>/plumb/config.yaml, and locating the rule file.
//
// The config defines:
//   - The rule file path (default: <UserConfigDir>/plumb_rules)
//   - Whether runs default to dry-run or live execution
//   - The routing journal toggle and database path
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level plumb configuration. Loaded from config.yaml,
// with defaults for fields that are not explicitly set.
type Config struct {
	// Rules is the path to the rule program file.
	Rules string `yaml:"rules"`
	// DryRun prints scheduled shell commands instead of executing them.
	// On by default; the --live flag flips it per run.
	DryRun bool `yaml:"dry_run"`

	Journal JournalConfig `yaml:"journal"`
}

// JournalConfig controls the routing journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultDir returns the plumb state directory, honoring XDG_CONFIG_HOME
// through os.UserConfigDir.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ".plumb"
	}
	return filepath.Join(base, "plumb")
}

// DefaultRulesPath returns the default rule file location,
// <UserConfigDir>/plumb_rules.
func DefaultRulesPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "plumb_rules"
	}
	return filepath.Join(base, "plumb_rules")
}

// Load reads and parses config.yaml from the given directory. A missing
// file returns defaults (normal before first setup); invalid YAML or
// validation failures return an error.
func Load(dir string) (*Config, error) {
	cfg := applyDefaults(dir)

	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default config.yaml with a comment header. Used
// when no config file exists yet.
func WriteDefault(dir string) error {
	cfg := applyDefaults(dir)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# plumb configuration
#
# rules:   Path to the rule program file
# dry_run: Print scheduled commands instead of running them (default true)
#
# journal:
#   enabled: Record routed items and emitted commands
#   path:    SQLite database for the journal

`
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(header+string(data)), 0o644)
}

// applyDefaults returns a Config with every field set to its default.
func applyDefaults(dir string) *Config {
	return &Config{
		Rules:  DefaultRulesPath(),
		DryRun: true,
		Journal: JournalConfig{
			Enabled: false,
			Path:    filepath.Join(dir, "journal.db"),
		},
	}
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	if cfg.Rules == "" {
		return fmt.Errorf("rules path must not be empty")
	}
	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal.enabled")
	}
	return nil
}
