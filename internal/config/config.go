package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanscan/internal/discovery"
	"github.com/Aman-CERP/amanscan/internal/progress"
	"github.com/Aman-CERP/amanscan/internal/watcher"
)

// Project config file names, in lookup order.
const (
	ProjectFileYAML = ".amanscan.yaml"
	ProjectFileYML  = ".amanscan.yml"
	ProjectFileTOML = ".amanscan.toml"
)

// Config represents the complete amanscan configuration.
type Config struct {
	Version  int            `yaml:"version" toml:"version" json:"version"`
	Scan     ScanConfig     `yaml:"scan" toml:"scan" json:"scan"`
	Progress ProgressConfig `yaml:"progress" toml:"progress" json:"progress"`
	Errors   ErrorsConfig   `yaml:"errors" toml:"errors" json:"errors"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache" json:"cache"`
	Watch    WatchConfig    `yaml:"watch" toml:"watch" json:"watch"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging" json:"logging"`
}

// ScanConfig configures traversal.
type ScanConfig struct {
	Recursive bool `yaml:"recursive" toml:"recursive" json:"recursive"`

	// MaxDepth limits entry depth; -1 is unlimited.
	MaxDepth int `yaml:"max_depth" toml:"max_depth" json:"max_depth"`

	FollowSymlinks bool `yaml:"follow_symlinks" toml:"follow_symlinks" json:"follow_symlinks"`

	// DefaultIgnores enables the built-in ignore patterns.
	DefaultIgnores bool `yaml:"default_ignores" toml:"default_ignores" json:"default_ignores"`

	// IgnoreFile reads .amanscanignore from the scanned root.
	IgnoreFile bool `yaml:"ignore_file" toml:"ignore_file" json:"ignore_file"`

	// Ignore patterns accumulate across config layers.
	Ignore []string `yaml:"ignore" toml:"ignore" json:"ignore"`
}

// ProgressConfig configures progress reporting.
type ProgressConfig struct {
	Mode           string        `yaml:"mode" toml:"mode" json:"mode"`
	RedrawInterval time.Duration `yaml:"redraw_interval" toml:"redraw_interval" json:"redraw_interval"`
}

// ErrorsConfig configures console reporting of recorded issues.
type ErrorsConfig struct {
	Show    bool `yaml:"show" toml:"show" json:"show"`
	Verbose bool `yaml:"verbose" toml:"verbose" json:"verbose"`
}

// CacheConfig configures the record store.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled"`

	// Dir overrides the store directory. Empty uses the user cache directory.
	Dir string `yaml:"dir" toml:"dir" json:"dir"`

	// MaxAge expires records older than this. Zero disables expiry.
	MaxAge time.Duration `yaml:"max_age" toml:"max_age" json:"max_age"`
}

// WatchConfig configures monitor mode.
type WatchConfig struct {
	Backend      string        `yaml:"backend" toml:"backend" json:"backend"`
	Debounce     time.Duration `yaml:"debounce" toml:"debounce" json:"debounce"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval" json:"poll_interval"`
	QueueSize    int           `yaml:"queue_size" toml:"queue_size" json:"queue_size"`
	Duration     time.Duration `yaml:"duration" toml:"duration" json:"duration"`
}

// LoggingConfig configures the debug log file.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level" json:"level"`
	File  string `yaml:"file" toml:"file" json:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	w := watcher.DefaultOptions()
	return &Config{
		Version: 1,
		Scan: ScanConfig{
			Recursive:      true,
			MaxDepth:       -1,
			DefaultIgnores: true,
			IgnoreFile:     true,
		},
		Progress: ProgressConfig{
			Mode:           string(progress.ModeSimple),
			RedrawInterval: progress.DefaultRedrawInterval,
		},
		Errors: ErrorsConfig{
			Show: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			MaxAge:  time.Hour,
		},
		Watch: WatchConfig{
			Backend:      string(w.Backend),
			Debounce:     w.DebounceWindow,
			PollInterval: w.PollInterval,
			QueueSize:    w.QueueSize,
			Duration:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/amanscan/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanscan/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanscan", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanscan", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanscan", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration for a scan of dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanscan/config.yaml)
//  3. Project config (.amanscan.yaml, .amanscan.yml or .amanscan.toml in dir)
//  4. Environment variables (AMANSCAN_*)
//
// Command-line flags are applied by the caller on top of the result.
func Load(dir string) (*Config, error) {
	return LoadWithFile(dir, "")
}

// LoadWithFile is Load with an explicit config file layered after the project
// config and before environment variables. An empty path is ignored.
func LoadWithFile(dir, explicit string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if path := FindProjectFile(dir); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if explicit != "" {
		if err := cfg.LoadFile(explicit); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// FindProjectFile returns the project config file in dir, or "" if none exists.
func FindProjectFile(dir string) string {
	for _, name := range []string{ProjectFileYAML, ProjectFileYML, ProjectFileTOML} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// LoadFile merges a YAML or TOML file into c. Keys absent from the file keep
// their current values; ignore patterns are appended.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	inherited := c.Scan.Ignore
	c.Scan.Ignore = nil

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), c); err != nil {
			c.Scan.Ignore = inherited
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, c); err != nil {
		c.Scan.Ignore = inherited
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.Scan.Ignore = append(inherited, c.Scan.Ignore...)
	return nil
}

// applyEnvOverrides applies AMANSCAN_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("AMANSCAN_PROGRESS"); v != "" {
		c.Progress.Mode = v
	}
	if v := os.Getenv("AMANSCAN_MAX_DEPTH"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AMANSCAN_MAX_DEPTH: %w", err)
		}
		c.Scan.MaxDepth = d
	}
	if v := os.Getenv("AMANSCAN_RECURSIVE"); v != "" {
		c.Scan.Recursive = parseBool(v)
	}
	if v := os.Getenv("AMANSCAN_CACHE"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("AMANSCAN_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("AMANSCAN_CACHE_MAX_AGE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AMANSCAN_CACHE_MAX_AGE: %w", err)
		}
		c.Cache.MaxAge = d
	}
	if v := os.Getenv("AMANSCAN_IGNORE"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Scan.Ignore = append(c.Scan.Ignore, p)
			}
		}
	}
	if v := os.Getenv("AMANSCAN_WATCH_BACKEND"); v != "" {
		c.Watch.Backend = v
	}
	if v := os.Getenv("AMANSCAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Scan.MaxDepth < -1 {
		return fmt.Errorf("scan.max_depth must be -1 (unlimited) or non-negative, got %d", c.Scan.MaxDepth)
	}
	if _, err := progress.ParseMode(c.Progress.Mode); err != nil {
		return fmt.Errorf("progress.mode: %w", err)
	}
	if c.Progress.RedrawInterval <= 0 {
		return fmt.Errorf("progress.redraw_interval must be positive, got %s", c.Progress.RedrawInterval)
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("cache.max_age must be non-negative, got %s", c.Cache.MaxAge)
	}
	if err := c.WatchOptions().Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WatchOptions converts the watch section to watcher options.
func (c *Config) WatchOptions() watcher.Options {
	return watcher.Options{
		Backend:        watcher.Backend(c.Watch.Backend),
		DebounceWindow: c.Watch.Debounce,
		PollInterval:   c.Watch.PollInterval,
		QueueSize:      c.Watch.QueueSize,
		Duration:       c.Watch.Duration,
	}
}

// ScanRequest builds a discovery request for root from the scan and cache sections.
func (c *Config) ScanRequest(root string) discovery.Request {
	return discovery.Request{
		Root:            root,
		Recursive:       c.Scan.Recursive,
		MaxDepth:        c.Scan.MaxDepth,
		Patterns:        slices.Clone(c.Scan.Ignore),
		IncludeDefaults: c.Scan.DefaultIgnores,
		Cache:           c.Cache.Enabled,
		FollowSymlinks:  c.Scan.FollowSymlinks,
		IgnoreFile:      c.Scan.IgnoreFile,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
