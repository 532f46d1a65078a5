package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	return xdg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)

	assert.True(t, cfg.Scan.Recursive)
	assert.Equal(t, -1, cfg.Scan.MaxDepth)
	assert.True(t, cfg.Scan.DefaultIgnores)
	assert.True(t, cfg.Scan.IgnoreFile)
	assert.False(t, cfg.Scan.FollowSymlinks)
	assert.Empty(t, cfg.Scan.Ignore)

	assert.Equal(t, "simple", cfg.Progress.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.Progress.RedrawInterval)

	assert.True(t, cfg.Errors.Show)
	assert.False(t, cfg.Errors.Verbose)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Hour, cfg.Cache.MaxAge)

	assert.Equal(t, "auto", cfg.Watch.Backend)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, time.Second, cfg.Watch.PollInterval)
	assert.Equal(t, 1000, cfg.Watch.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Watch.Duration)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	// Given: a project config setting a few keys
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYAML), `
scan:
  max_depth: 3
  recursive: false
  ignore: ["*.log", "dist/"]
progress:
  mode: detailed
cache:
  max_age: 10m
watch:
  debounce: 50ms
`)

	// When: loading
	cfg, err := Load(dir)

	// Then: set keys override, absent keys keep defaults
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scan.MaxDepth)
	assert.False(t, cfg.Scan.Recursive)
	assert.Equal(t, []string{"*.log", "dist/"}, cfg.Scan.Ignore)
	assert.Equal(t, "detailed", cfg.Progress.Mode)
	assert.Equal(t, 10*time.Minute, cfg.Cache.MaxAge)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Second, cfg.Watch.PollInterval)
}

func TestLoad_TomlFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileTOML), `
[scan]
max_depth = 2
ignore = ["*.tmp"]

[cache]
enabled = false

[watch]
backend = "polling"
poll_interval = "250ms"
`)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scan.MaxDepth)
	assert.Equal(t, []string{"*.tmp"}, cfg.Scan.Ignore)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "polling", cfg.Watch.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.PollInterval)
	assert.True(t, cfg.Scan.Recursive)
}

func TestFindProjectFile_Precedence(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, FindProjectFile(dir))

	writeFile(t, filepath.Join(dir, ProjectFileTOML), "")
	assert.Equal(t, filepath.Join(dir, ProjectFileTOML), FindProjectFile(dir))

	writeFile(t, filepath.Join(dir, ProjectFileYML), "")
	assert.Equal(t, filepath.Join(dir, ProjectFileYML), FindProjectFile(dir))

	writeFile(t, filepath.Join(dir, ProjectFileYAML), "")
	assert.Equal(t, filepath.Join(dir, ProjectFileYAML), FindProjectFile(dir))
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYAML), "scan: [unclosed")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYAML), "scan:\n  max_depth: deep\n")

	_, err := Load(dir)

	assert.Error(t, err)
}

func TestLoad_UserThenProjectThenEnv(t *testing.T) {
	// Given: user, project and environment layers
	xdg := isolate(t)
	writeFile(t, filepath.Join(xdg, "amanscan", "config.yaml"), `
scan:
  max_depth: 5
  ignore: ["*.user"]
progress:
  mode: verbose
logging:
  level: debug
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYAML), `
scan:
  max_depth: 4
  ignore: ["*.project"]
`)
	t.Setenv("AMANSCAN_MAX_DEPTH", "2")
	t.Setenv("AMANSCAN_IGNORE", "*.env, *.more")

	// When: loading
	cfg, err := Load(dir)

	// Then: later layers win and ignore patterns accumulate
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scan.MaxDepth)
	assert.Equal(t, "verbose", cfg.Progress.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"*.user", "*.project", "*.env", "*.more"}, cfg.Scan.Ignore)
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, cfg *Config)
	}{
		{"progress", "AMANSCAN_PROGRESS", "silent", func(t *testing.T, c *Config) { assert.Equal(t, "silent", c.Progress.Mode) }},
		{"recursive", "AMANSCAN_RECURSIVE", "false", func(t *testing.T, c *Config) { assert.False(t, c.Scan.Recursive) }},
		{"cache off", "AMANSCAN_CACHE", "0", func(t *testing.T, c *Config) { assert.False(t, c.Cache.Enabled) }},
		{"cache dir", "AMANSCAN_CACHE_DIR", "/tmp/x", func(t *testing.T, c *Config) { assert.Equal(t, "/tmp/x", c.Cache.Dir) }},
		{"max age", "AMANSCAN_CACHE_MAX_AGE", "5m", func(t *testing.T, c *Config) { assert.Equal(t, 5*time.Minute, c.Cache.MaxAge) }},
		{"backend", "AMANSCAN_WATCH_BACKEND", "polling", func(t *testing.T, c *Config) { assert.Equal(t, "polling", c.Watch.Backend) }},
		{"log level", "AMANSCAN_LOG_LEVEL", "warn", func(t *testing.T, c *Config) { assert.Equal(t, "warn", c.Logging.Level) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load(t.TempDir())

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_BadEnvValues(t *testing.T) {
	for key, value := range map[string]string{
		"AMANSCAN_MAX_DEPTH":     "many",
		"AMANSCAN_CACHE_MAX_AGE": "forever",
		"AMANSCAN_PROGRESS":      "fancy",
	} {
		t.Run(key, func(t *testing.T) {
			isolate(t)
			t.Setenv(key, value)

			_, err := Load(t.TempDir())

			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	xdg := isolate(t)
	writeFile(t, filepath.Join(xdg, "amanscan", "config.yaml"), "::: not yaml")

	_, err := Load(t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative depth", func(c *Config) { c.Scan.MaxDepth = -2 }},
		{"unknown progress mode", func(c *Config) { c.Progress.Mode = "fancy" }},
		{"zero redraw interval", func(c *Config) { c.Progress.RedrawInterval = 0 }},
		{"negative max age", func(c *Config) { c.Cache.MaxAge = -time.Second }},
		{"unknown backend", func(c *Config) { c.Watch.Backend = "inotify" }},
		{"zero poll interval", func(c *Config) { c.Watch.PollInterval = 0 }},
		{"zero queue", func(c *Config) { c.Watch.QueueSize = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetUserConfigPath(t *testing.T) {
	xdg := isolate(t)
	assert.Equal(t, filepath.Join(xdg, "amanscan", "config.yaml"), GetUserConfigPath())
	assert.False(t, UserConfigExists())

	writeFile(t, GetUserConfigPath(), "version: 1\n")
	assert.True(t, UserConfigExists())

	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "amanscan", "config.yaml"), GetUserConfigPath())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	// Given: a modified config written to disk
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Scan.Ignore = []string{"*.bak"}
	cfg.Watch.Duration = time.Minute
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileYAML)))

	// When: loading it back
	loaded, err := Load(dir)

	// Then: values survive, durations as text
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	data, err := os.ReadFile(filepath.Join(dir, ProjectFileYAML))
	require.NoError(t, err)
	assert.Contains(t, string(data), "duration: 1m0s")
}

func TestWatchOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.Watch.Backend = "polling"

	opts := cfg.WatchOptions()

	assert.Equal(t, "polling", string(opts.Backend))
	assert.Equal(t, cfg.Watch.Debounce, opts.DebounceWindow)
	assert.Equal(t, 30*time.Second, opts.Duration)
}

func TestLoadWithFile_LayersAfterProjectBeforeEnv(t *testing.T) {
	// Given: a project config, an explicit file, and an env override
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileYAML), "scan:\n  max_depth: 3\n  ignore: [\"*.tmp\"]\nprogress:\n  mode: detailed\n")
	explicit := filepath.Join(t.TempDir(), "ci.toml")
	writeFile(t, explicit, "[scan]\nmax_depth = 5\nignore = [\"dist/\"]\n")
	t.Setenv("AMANSCAN_PROGRESS", "silent")

	// When: loading with the explicit file
	cfg, err := LoadWithFile(dir, explicit)

	// Then: the explicit file wins over the project file, env wins over both
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Scan.MaxDepth)
	assert.Equal(t, []string{"*.tmp", "dist/"}, cfg.Scan.Ignore)
	assert.Equal(t, "silent", cfg.Progress.Mode)
}

func TestLoadWithFile_MissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := LoadWithFile(t.TempDir(), filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestScanRequest(t *testing.T) {
	cfg := NewConfig()
	cfg.Scan.MaxDepth = 2
	cfg.Scan.Ignore = []string{"*.log"}
	cfg.Scan.DefaultIgnores = false
	cfg.Cache.Enabled = false

	req := cfg.ScanRequest("/src")

	assert.Equal(t, "/src", req.Root)
	assert.True(t, req.Recursive)
	assert.Equal(t, 2, req.MaxDepth)
	assert.Equal(t, []string{"*.log"}, req.Patterns)
	assert.False(t, req.IncludeDefaults)
	assert.False(t, req.Cache)
	assert.True(t, req.IgnoreFile)

	// the request owns its pattern slice
	req.Patterns[0] = "changed"
	assert.Equal(t, "*.log", cfg.Scan.Ignore[0])
}
