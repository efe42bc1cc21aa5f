package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Report format names accepted by report.format and --report-format.
const (
	ReportMarkdown = "markdown"
	ReportHTML     = "html"
	ReportJSON     = "json"
)

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled records every run and its outcomes in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the SQLite history database
	DBPath string `yaml:"db_path"`
}

// ReportConfig represents report file configuration
type ReportConfig struct {
	// Format is the default report format (markdown, html, json)
	Format string `yaml:"format"`
}

// Config represents crew configuration options
type Config struct {
	// Workers is the number of workers started in the crew
	Workers int `yaml:"workers"`

	// Capacity is the maximum crew size; Workers may not exceed it
	Capacity int `yaml:"capacity"`

	// MaxPathLength is the longest path a work item may carry
	MaxPathLength int `yaml:"max_path_length"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// ShowMisses prints files that were searched without a match
	ShowMisses bool `yaml:"show_misses"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`

	// Report contains report file configuration
	Report ReportConfig `yaml:"report"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Workers:       4,
		Capacity:      64,
		MaxPathLength: 4096,
		LogLevel:      "info",
		LogDir:        ".crew/logs",
		ShowMisses:    false,
		History: HistoryConfig{
			Enabled: true,
			DBPath:  ".crew/history.db",
		},
		Report: ReportConfig{
			Format: ReportMarkdown,
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply non-zero values from file (merging with defaults)
	if fileCfg.Workers != 0 {
		cfg.Workers = fileCfg.Workers
	}
	if fileCfg.Capacity != 0 {
		cfg.Capacity = fileCfg.Capacity
	}
	if fileCfg.MaxPathLength != 0 {
		cfg.MaxPathLength = fileCfg.MaxPathLength
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if fileCfg.ShowMisses {
		cfg.ShowMisses = true
	}
	if fileCfg.Report.Format != "" {
		cfg.Report.Format = fileCfg.Report.Format
	}

	// history.enabled defaults to true, so only an explicit key may turn it off
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, exists := rawMap["history"]; exists && section != nil {
			historyMap, _ := section.(map[string]interface{})
			if _, exists := historyMap["enabled"]; exists {
				cfg.History.Enabled = fileCfg.History.Enabled
			}
			if _, exists := historyMap["db_path"]; exists {
				cfg.History.DBPath = fileCfg.History.DBPath
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .crew/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ".crew", "config.yaml")
	return LoadConfig(configPath)
}

// Flags carries CLI overrides. Nil fields were not set on the command line.
type Flags struct {
	Workers      *int
	Capacity     *int
	LogLevel     *string
	LogDir       *string
	ShowMisses   *bool
	NoHistory    *bool
	ReportFormat *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f Flags) {
	if f.Workers != nil {
		c.Workers = *f.Workers
	}
	if f.Capacity != nil {
		c.Capacity = *f.Capacity
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.ShowMisses != nil {
		c.ShowMisses = *f.ShowMisses
	}
	if f.NoHistory != nil && *f.NoHistory {
		c.History.Enabled = false
	}
	if f.ReportFormat != nil {
		c.Report.Format = *f.ReportFormat
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be > 0, got %d", c.Capacity)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	}
	if c.Workers > c.Capacity {
		return fmt.Errorf("workers (%d) exceeds capacity (%d)", c.Workers, c.Capacity)
	}
	if c.MaxPathLength < 1 {
		return fmt.Errorf("max_path_length must be > 0, got %d", c.MaxPathLength)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	switch c.Report.Format {
	case ReportMarkdown, ReportHTML, ReportJSON:
	default:
		return fmt.Errorf("invalid report.format %q, must be one of: markdown, html, json", c.Report.Format)
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}

	return nil
}
