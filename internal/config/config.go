// Package config loads promptbench configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (PROMPTBENCH_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .promptbench.yaml in current directory
//  2. ~/.config/promptbench/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all promptbench configuration.
type Config struct {
	// DataDir is where prompt aggregates, settings, and the current-user
	// pointer are stored.
	DataDir string `yaml:"data_dir"`

	// Provider endpoint overrides (for proxies and Azure-hosted deployments)
	OpenAIBaseURL    string `yaml:"openai_base_url"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`

	// RowDelay is the pause between experiment rows as a Go duration
	// string, e.g. "500ms". "0" disables it.
	RowDelay string `yaml:"row_delay"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // comma-separated key=value pairs

	// Parsed duration (not from YAML, set after loading)
	RowDelayDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		DataDir:  defaultDataDir(),
		RowDelay: "500ms",
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "promptbench")
	}
	return ".promptbench"
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	mergeEnv(cfg)

	var err error
	cfg.RowDelayDuration, err = parseDurationOrDisable(cfg.RowDelay, 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid row delay %q: %w", cfg.RowDelay, err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	if data, err := os.ReadFile(".promptbench.yaml"); err == nil {
		return ".promptbench.yaml", data, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "promptbench", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.OpenAIBaseURL != "" {
		cfg.OpenAIBaseURL = file.OpenAIBaseURL
	}
	if file.AnthropicBaseURL != "" {
		cfg.AnthropicBaseURL = file.AnthropicBaseURL
	}
	if file.RowDelay != "" {
		cfg.RowDelay = file.RowDelay
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("PROMPTBENCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PROMPTBENCH_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("PROMPTBENCH_ANTHROPIC_BASE_URL"); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := os.Getenv("PROMPTBENCH_ROW_DELAY"); v != "" {
		cfg.RowDelay = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable"
// return 0. Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
