package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/ignore"
	"github.com/Aman-CERP/amanscan/internal/walker"
	"github.com/Aman-CERP/amanscan/internal/walker/walkertest"
	"github.com/Aman-CERP/amanscan/internal/watcher"
)

func newTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, walkertest.WriteTree(root, files))
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	return resolved
}

func newEngine(t *testing.T, fsys walker.FS) *Engine {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	e, err := New(Options{Store: store, FS: fsys})
	require.NoError(t, err)
	return e
}

// bump moves a path's mtime forward so change detection never depends on
// timestamp granularity.
func bump(t *testing.T, p string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(p, future, future))
}

func request(root string) Request {
	req := DefaultRequest(root)
	req.IncludeDefaults = false
	req.IgnoreFile = false
	return req
}

func TestScan_IgnoresMatchingFiles(t *testing.T) {
	// Given: a.txt, b.log and subdir/c.txt with *.log ignored
	root := newTree(t, map[string]string{
		"a.txt":        "a",
		"b.log":        "b",
		"subdir/c.txt": "c",
	})
	e := newEngine(t, nil)
	req := request(root)
	req.Patterns = []string{"*.log"}

	// When: scanning
	res, err := e.Scan(context.Background(), req)

	// Then: two files and one directory are discovered
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalFiles)
	assert.Equal(t, 1, res.TotalDirectories)
	assert.Equal(t, []string{"a.txt", "subdir/c.txt"}, res.Paths())
	assert.Equal(t, int64(2), res.TotalSize)
	assert.False(t, res.CacheHit)
	assert.False(t, res.Partial)
	assert.NotEmpty(t, res.ScanID)
	assert.Equal(t, 0, res.Errors.Summary.Total)
}

func TestScan_CacheHitListsNoDirectories(t *testing.T) {
	// Given: a scanned tree
	root := newTree(t, map[string]string{
		"a.go":         "package a",
		"pkg/b.go":     "package b",
		"pkg/sub/c.go": "package c",
		"docs/readme":  "hi",
	})
	fsys := walkertest.NewCountingFS()
	e := newEngine(t, fsys)

	first, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)
	require.Positive(t, fsys.TotalReadDir())

	// When: scanning again without changes
	fsys.Reset()
	second, err := e.Scan(context.Background(), request(root))

	// Then: the record is reused without listing any directory
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Zero(t, fsys.TotalReadDir())
	assert.True(t, second.Delta.Empty())
	assert.Equal(t, first.Paths(), second.Paths())
	assert.Equal(t, first.Key, second.Key)
}

func TestScan_ReportsDelta(t *testing.T) {
	// Given: a scanned tree
	root := newTree(t, map[string]string{
		"a.txt":        "a",
		"subdir/c.txt": "c",
		"subdir/d.txt": "d",
	})
	e := newEngine(t, nil)
	_, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)

	// When: a file is added, one modified and one removed
	require.NoError(t, os.WriteFile(filepath.Join(root, "subdir", "new.txt"), []byte("n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("longer content"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(root, "subdir", "d.txt")))
	bump(t, filepath.Join(root, "subdir"))

	res, err := e.Scan(context.Background(), request(root))

	// Then: the delta names each change
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, []string{"subdir/new.txt"}, res.Delta.Added)
	assert.Equal(t, []string{"subdir/d.txt"}, res.Delta.Removed)
	assert.Contains(t, res.Delta.Modified, "a.txt")
	assert.Equal(t, []string{"a.txt", "subdir/c.txt", "subdir/new.txt"}, res.Paths())
}

func TestScan_RefreshMatchesColdScan(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		mutate func(t *testing.T, root string)
		check  func(t *testing.T, warm *Result)
	}{
		{
			name: "directories added and removed",
			files: map[string]string{
				"main.go":     "package main",
				"lib/util.go": "package lib",
			},
			mutate: func(t *testing.T, root string) {
				require.NoError(t, walkertest.WriteTree(root, map[string]string{
					"pkg/x/y.go":  "package x",
					"pkg/x/z.go":  "package x",
					"pkg/readme":  "r",
					"pkg/empty/":  "",
					"lib/more.go": "package lib",
				}))
				require.NoError(t, os.RemoveAll(filepath.Join(root, "lib")))
			},
			check: func(t *testing.T, warm *Result) {
				assert.Contains(t, warm.Delta.Added, "pkg/x/y.go")
				assert.Contains(t, warm.Delta.Removed, "lib/util.go")
				assert.Contains(t, warm.Delta.Removed, "lib")
			},
		},
		{
			name:  "directory replaced by a symlink",
			files: map[string]string{"a.txt": "a", "d/x.txt": "x"},
			mutate: func(t *testing.T, root string) {
				target := t.TempDir()
				require.NoError(t, os.WriteFile(filepath.Join(target, "x.txt"), []byte("x"), 0o644))
				require.NoError(t, os.RemoveAll(filepath.Join(root, "d")))
				require.NoError(t, os.Symlink(target, filepath.Join(root, "d")))
			},
			check: func(t *testing.T, warm *Result) {
				assert.NotContains(t, warm.Paths(), "d/x.txt")
				assert.Contains(t, warm.Delta.Removed, "d/x.txt")
			},
		},
		{
			name:  "directory replaced by a file",
			files: map[string]string{"a.txt": "a", "d/x.txt": "x"},
			mutate: func(t *testing.T, root string) {
				require.NoError(t, os.RemoveAll(filepath.Join(root, "d")))
				require.NoError(t, os.WriteFile(filepath.Join(root, "d"), []byte("file"), 0o644))
			},
			check: func(t *testing.T, warm *Result) {
				assert.Contains(t, warm.Paths(), "d")
				assert.NotContains(t, warm.Paths(), "d/x.txt")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a cached scan
			root := newTree(t, tt.files)
			e := newEngine(t, nil)
			_, err := e.Scan(context.Background(), request(root))
			require.NoError(t, err)

			// When: the tree changes and is scanned again
			tt.mutate(t, root)
			bump(t, root)

			warm, err := e.Scan(context.Background(), request(root))
			require.NoError(t, err)

			cold := request(root)
			cold.Cache = false
			fresh, err := e.Scan(context.Background(), cold)
			require.NoError(t, err)

			// Then: the refreshed listing equals a full walk in walk order
			assert.True(t, warm.CacheHit)
			assert.Equal(t, fresh.Paths(), warm.Paths())
			assert.Equal(t, len(fresh.Directories), len(warm.Directories))
			tt.check(t, warm)
		})
	}
}

func TestScan_RefreshRelistsUnreadableDirectories(t *testing.T) {
	// Given: a tree whose locked directory cannot be listed
	root := newTree(t, map[string]string{
		"a.txt":             "a",
		"locked/x.txt":      "x",
		"locked/deep/y.txt": "y",
	})
	locked := filepath.Join(root, "locked")
	fsys := walkertest.NewCountingFS()
	fsys.FailReadDir[locked] = fs.ErrPermission
	e := newEngine(t, fsys)

	first, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, first.Paths())
	require.Equal(t, 1, first.Errors.Summary.ByKind[errors.KindDirUnreadable])

	// When: scanning from the cache while the directory is still unreadable
	second, err := e.Scan(context.Background(), request(root))

	// Then: the directory is tried again and the warning is reported again
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, []string{"a.txt"}, second.Paths())
	assert.Equal(t, 1, second.Errors.Summary.ByKind[errors.KindDirUnreadable])
	assert.Equal(t, 1, second.Errors.Summary.Count(errors.SeverityWarning))

	// When: the directory becomes readable
	delete(fsys.FailReadDir, locked)
	third, err := e.Scan(context.Background(), request(root))

	// Then: its subtree appears exactly as a full walk shows it
	require.NoError(t, err)
	assert.True(t, third.CacheHit)
	assert.Equal(t, []string{"a.txt", "locked/deep/y.txt", "locked/x.txt"}, third.Paths())
	assert.Contains(t, third.Delta.Added, "locked/x.txt")
	assert.Zero(t, third.Errors.Summary.Total)

	// And: once listed, it is no longer read on an unchanged tree
	fsys.Reset()
	fourth, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)
	assert.True(t, fourth.CacheHit)
	assert.Zero(t, fsys.TotalReadDir())
	assert.Equal(t, third.Paths(), fourth.Paths())
}

func TestScan_CorruptRecordFallsBackToFullWalk(t *testing.T) {
	// Given: a cached scan whose record is overwritten with garbage
	root := newTree(t, map[string]string{"a.go": "a", "b/c.go": "c"})
	e := newEngine(t, nil)
	first, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.Store().Path(first.Key), []byte("{not json"), 0o644))

	// When: scanning again
	res, err := e.Scan(context.Background(), request(root))

	// Then: an ERROR is recorded and the result equals a cold scan
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, first.Paths(), res.Paths())
	assert.Equal(t, 1, res.Errors.Summary.Count(errors.SeverityError))
	assert.Equal(t, 1, res.Errors.Summary.ByKind[errors.KindCacheCorrupt])

	// And: the record was rewritten
	_, err = e.Store().Load(res.Key, cache.Params{})
	assert.NotErrorIs(t, err, cache.ErrCorrupt)
}

func TestScan_CancelledIsPartialAndNotCached(t *testing.T) {
	// Given: a tree and an already cancelled context
	root := newTree(t, map[string]string{"a.go": "a", "b/c.go": "c"})
	e := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: scanning
	res, err := e.Scan(ctx, request(root))

	// Then: the result is partial and nothing is persisted
	require.NoError(t, err)
	assert.True(t, res.Partial)
	_, err = e.Store().Load(res.Key, cache.Params{})
	assert.ErrorIs(t, err, cache.ErrMiss)

	_, err = e.UpdateContext(context.Background(), filepath.Join(root, "a.go"))
	assert.ErrorIs(t, err, ErrNoScan)
}

func TestScan_CancelBeforeWalkIsKept(t *testing.T) {
	// Given: an engine cancelled before the scan starts
	root := newTree(t, map[string]string{"a.go": "a", "b/c.go": "c"})
	e := newEngine(t, nil)
	e.Cancel()

	// When: scanning
	res, err := e.Scan(context.Background(), request(root))

	// Then: the cancel applies and nothing is persisted
	require.NoError(t, err)
	assert.True(t, res.Partial)
	_, err = e.Store().Load(res.Key, cache.Params{})
	assert.ErrorIs(t, err, cache.ErrMiss)

	// When: the engine is re-armed
	e.ClearCancel()
	res, err = e.Scan(context.Background(), request(root))

	// Then: the scan completes
	require.NoError(t, err)
	assert.False(t, res.Partial)
	assert.Equal(t, []string{"a.go", "b/c.go"}, res.Paths())
}

func TestScan_MissingRootIsCritical(t *testing.T) {
	e := newEngine(t, nil)

	res, err := e.Scan(context.Background(), request(filepath.Join(t.TempDir(), "missing")))

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsCritical(err))
	assert.Equal(t, 1, e.ErrorSummary().Count(errors.SeverityCritical))
	assert.Equal(t, errors.KindRootInaccessible, e.ErrorRecords()[0].Kind)
}

func TestScan_RootIsFileIsCritical(t *testing.T) {
	root := newTree(t, map[string]string{"file": "x"})
	e := newEngine(t, nil)

	_, err := e.Scan(context.Background(), request(filepath.Join(root, "file")))

	require.Error(t, err)
	assert.True(t, errors.IsCritical(err))
}

func TestScan_InvalidRequestsAreCritical(t *testing.T) {
	root := newTree(t, map[string]string{"a": "a"})

	tests := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"empty root", func(r *Request) { r.Root = "" }},
		{"negative depth", func(r *Request) { r.MaxDepth = -5 }},
		{"bad pattern", func(r *Request) { r.Patterns = []string{"[z-a]"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, nil)
			req := request(root)
			tt.mutate(&req)

			_, err := e.Scan(context.Background(), req)

			require.Error(t, err)
			assert.True(t, errors.IsCritical(err))
			assert.Equal(t, errors.ErrCodeInvalidRequest, errors.GetCode(err))
		})
	}
}

func TestScan_DepthControl(t *testing.T) {
	root := newTree(t, map[string]string{
		"top.txt":         "t",
		"a/one.txt":       "1",
		"a/b/two.txt":     "2",
		"a/b/c/three.txt": "3",
	})

	tests := []struct {
		name      string
		recursive bool
		depth     int
		want      []string
	}{
		{"unlimited", true, walker.Unlimited, []string{"a/b/c/three.txt", "a/b/two.txt", "a/one.txt", "top.txt"}},
		{"depth 2", true, 2, []string{"a/one.txt", "top.txt"}},
		{"depth 0", true, 0, []string{"top.txt"}},
		{"not recursive", false, walker.Unlimited, []string{"top.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, nil)
			req := request(root)
			req.Recursive = tt.recursive
			req.MaxDepth = tt.depth

			res, err := e.Scan(context.Background(), req)

			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Paths())
		})
	}
}

func TestScan_DefaultPatternsPruneDependencies(t *testing.T) {
	// Given: a project with node_modules and .git
	root := newTree(t, map[string]string{
		"index.js":                    "x",
		"node_modules/lib/index.js":   "x",
		"node_modules/lib/package.js": "x",
		".git/HEAD":                   "ref",
	})
	fsys := walkertest.NewCountingFS()
	e := newEngine(t, fsys)
	req := request(root)
	req.IncludeDefaults = true

	// When: scanning with the default patterns
	res, err := e.Scan(context.Background(), req)

	// Then: ignored directories are never entered
	require.NoError(t, err)
	assert.Equal(t, []string{"index.js"}, res.Paths())
	assert.Zero(t, fsys.CallsUnder(filepath.Join(root, "node_modules")))
	assert.Zero(t, fsys.CallsUnder(filepath.Join(root, ".git")))
}

func TestScan_IgnoreFile(t *testing.T) {
	root := newTree(t, map[string]string{
		ignore.FileName: "*.gen.go\n# comment\n",
		"main.go":       "package main",
		"api.gen.go":    "package main",
	})
	e := newEngine(t, nil)
	req := request(root)
	req.IgnoreFile = true

	res, err := e.Scan(context.Background(), req)

	require.NoError(t, err)
	assert.NotContains(t, res.Paths(), "api.gen.go")
	assert.Contains(t, res.Paths(), "main.go")
}

func TestScan_PatternOrderSharesRecord(t *testing.T) {
	root := newTree(t, map[string]string{"a.go": "a", "b.log": "b", "c.tmp": "c"})
	e := newEngine(t, nil)

	req := request(root)
	req.Patterns = []string{"*.log", "*.tmp"}
	first, err := e.Scan(context.Background(), req)
	require.NoError(t, err)

	req.Patterns = []string{"*.tmp", "*.log", "*.tmp"}
	second, err := e.Scan(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.True(t, second.CacheHit)
}

func TestInvalidate(t *testing.T) {
	root := newTree(t, map[string]string{"a.go": "a"})
	e := newEngine(t, nil)
	res, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)

	key, err := e.Invalidate(request(root))

	require.NoError(t, err)
	assert.Equal(t, res.Key, key)
	_, err = e.Store().Load(key, cache.Params{})
	assert.ErrorIs(t, err, cache.ErrMiss)

	again, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)
	assert.False(t, again.CacheHit)
}

func TestHandleError(t *testing.T) {
	e := newEngine(t, nil)

	assert.True(t, e.HandleError(errors.Context{Path: "x", Message: "slow disk"}, errors.SeverityWarning))
	assert.True(t, e.HandleError(errors.Context{Message: "index failed"}, errors.SeverityError))
	assert.False(t, e.HandleError(errors.Context{Message: "disk gone"}, errors.SeverityCritical))

	summary := e.ErrorSummary()
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Count(errors.SeverityWarning))
	assert.Equal(t, 1, summary.Count(errors.SeverityCritical))
	assert.Equal(t, 3, summary.ByKind[errors.KindExternal])
}

func TestErrorSummary_ResetsPerScan(t *testing.T) {
	e := newEngine(t, nil)
	e.HandleError(errors.Context{Message: "old"}, errors.SeverityWarning)

	_, err := e.Scan(context.Background(), request(newTree(t, map[string]string{"a": "a"})))

	require.NoError(t, err)
	assert.Zero(t, e.ErrorSummary().Total)
}

func TestMonitor_NoScan(t *testing.T) {
	e := newEngine(t, nil)

	err := e.Monitor(context.Background(), t.TempDir(), watcher.DefaultOptions(), nil)

	assert.ErrorIs(t, err, ErrNoScan)
}

func TestMonitor_AppliesEvents(t *testing.T) {
	// Given: a scanned root under a polling monitor
	root := newTree(t, map[string]string{"a.go": "package a"})
	e := newEngine(t, nil)
	_, err := e.Scan(context.Background(), request(root))
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		deltas []cache.Delta
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- e.Monitor(ctx, root, watcher.Options{
			Backend:        watcher.BackendPolling,
			DebounceWindow: 20 * time.Millisecond,
			PollInterval:   30 * time.Millisecond,
		}, func(_ watcher.Event, d cache.Delta) {
			mu.Lock()
			deltas = append(deltas, d)
			mu.Unlock()
		})
	}()

	// When: files keep appearing until one is picked up
	n := 0
	require.Eventually(t, func() bool {
		n++
		name := fmt.Sprintf("new%d.go", n)
		_ = os.WriteFile(filepath.Join(root, name), []byte("package b"), 0o644)
		mu.Lock()
		defer mu.Unlock()
		for _, d := range deltas {
			if len(d.Added) > 0 {
				return true
			}
		}
		return false
	}, 5*time.Second, 100*time.Millisecond)

	// Then: monitoring stops cleanly on cancel
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
