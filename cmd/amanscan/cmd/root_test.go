package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
)

type runResult struct {
	code   int
	stdout string
	stderr string
}

// isolate points config, cache and log locations at temp directories.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("AMANSCAN_CACHE_DIR", filepath.Join(home, "cache"))
	t.Setenv("NO_COLOR", "1")
	return home
}

func run(t *testing.T, args ...string) runResult {
	t.Helper()
	cmd, g := newRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	code := execute(cmd, g)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", usageError(errors.New("bad flag")), ExitUsage},
		{"critical root", scanerrors.Critical(scanerrors.KindRootInaccessible, "/x", "root is missing", nil), ExitCritical},
		{"critical request", scanerrors.Critical(scanerrors.KindInvalidRequest, "", "root path is required", nil), ExitUsage},
		{"plain", errors.New("boom"), ExitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestRoot_ArgumentErrors(t *testing.T) {
	isolate(t)
	root := writeTree(t, map[string]string{"a.go": "a"})

	tests := []struct {
		name string
		args []string
	}{
		{"no root", nil},
		{"two roots", []string{root, root}},
		{"unknown flag", []string{root, "--bogus"}},
		{"negative depth", []string{root, "--max-depth", "-2"}},
		{"bad progress mode", []string{root, "--progress", "fancy"}},
		{"negative duration", []string{root, "--duration", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.args...)

			assert.Equal(t, ExitUsage, res.code)
			assert.Contains(t, res.stderr, "Error:")
			assert.Contains(t, res.stderr, "--help")
		})
	}
}

func TestRoot_MissingRootIsCritical(t *testing.T) {
	isolate(t)

	res := run(t, filepath.Join(t.TempDir(), "missing"), "--progress", "silent")

	assert.Equal(t, ExitCritical, res.code)
	assert.Contains(t, res.stderr, "root is missing or inaccessible")
}

func TestRoot_PrintsSummary(t *testing.T) {
	isolate(t)
	root := writeTree(t, map[string]string{"main.go": "package main", "lib/util.py": "x = 1"})

	res := run(t, root, "--progress", "silent")

	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Scanned "+root)
	assert.Contains(t, res.stdout, "Files")
	assert.Contains(t, res.stdout, "miss")
}

func scanJSON(t *testing.T, args ...string) map[string]any {
	t.Helper()
	res := run(t, append(args, "--json", "--progress", "silent")...)
	require.Equal(t, ExitOK, res.code, res.stderr)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	return out
}

func TestRoot_JSONOutput(t *testing.T) {
	isolate(t)
	root := writeTree(t, map[string]string{"a.go": "a", "notes.txt": "n", "sub/b.go": "b"})

	t.Run("totals without listings", func(t *testing.T) {
		out := scanJSON(t, root, "--no-cache")

		assert.EqualValues(t, 3, out["total_files"])
		assert.EqualValues(t, 1, out["total_directories"])
		assert.Nil(t, out["entries"])
	})

	t.Run("files included on request", func(t *testing.T) {
		out := scanJSON(t, root, "--no-cache", "--files")

		entries, ok := out["entries"].([]any)
		require.True(t, ok)
		assert.Len(t, entries, 3)
	})

	t.Run("ignore flag excludes matches", func(t *testing.T) {
		out := scanJSON(t, root, "--no-cache", "--ignore", "*.txt")

		assert.EqualValues(t, 2, out["total_files"])
	})

	t.Run("no-recursive lists the root only", func(t *testing.T) {
		out := scanJSON(t, root, "--no-cache", "--no-recursive")

		assert.EqualValues(t, 2, out["total_files"])
	})
}

func TestRoot_SecondScanHitsCache(t *testing.T) {
	isolate(t)
	root := writeTree(t, map[string]string{"a.go": "a"})

	first := scanJSON(t, root)
	second := scanJSON(t, root)

	assert.Equal(t, false, first["cache_hit"])
	assert.Equal(t, true, second["cache_hit"])
	assert.Equal(t, first["key"], second["key"])
}

func TestRoot_NoCacheNeverHits(t *testing.T) {
	isolate(t)
	root := writeTree(t, map[string]string{"a.go": "a"})

	scanJSON(t, root)
	out := scanJSON(t, root, "--no-cache")

	assert.Equal(t, false, out["cache_hit"])
}

func TestRoot_ConfigFlagLayersFile(t *testing.T) {
	isolate(t)
	root := writeTree(t, map[string]string{"a.go": "a", "b.txt": "b"})
	cfgPath := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("scan:\n  ignore: [\"*.txt\"]\n"), 0o644))

	out := scanJSON(t, root, "--no-cache", "--config", cfgPath)

	assert.EqualValues(t, 1, out["total_files"])
}

func TestRoot_SubcommandsRegistered(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"cache", "init", "doctor", "serve", "logs", "version"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}
