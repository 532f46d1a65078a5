// Package walkertest provides filesystem doubles for tests of code built on walker.
package walkertest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CountingFS wraps the OS filesystem, counting calls and injecting failures.
type CountingFS struct {
	mu sync.Mutex

	ReadDirCalls map[string]int
	LstatCalls   map[string]int
	StatCalls    map[string]int

	// FailReadDir and FailLstat inject errors for exact absolute paths.
	FailReadDir map[string]error
	FailLstat   map[string]error
}

// NewCountingFS creates an empty CountingFS.
func NewCountingFS() *CountingFS {
	return &CountingFS{
		ReadDirCalls: make(map[string]int),
		LstatCalls:   make(map[string]int),
		StatCalls:    make(map[string]int),
		FailReadDir:  make(map[string]error),
		FailLstat:    make(map[string]error),
	}
}

// ReadDir lists a directory.
func (c *CountingFS) ReadDir(name string) ([]fs.DirEntry, error) {
	c.mu.Lock()
	c.ReadDirCalls[name]++
	err := c.FailReadDir[name]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return os.ReadDir(name)
}

// Lstat returns metadata without following symlinks.
func (c *CountingFS) Lstat(name string) (fs.FileInfo, error) {
	c.mu.Lock()
	c.LstatCalls[name]++
	err := c.FailLstat[name]
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return os.Lstat(name)
}

// Stat returns metadata following symlinks.
func (c *CountingFS) Stat(name string) (fs.FileInfo, error) {
	c.mu.Lock()
	c.StatCalls[name]++
	c.mu.Unlock()
	return os.Stat(name)
}

// TotalReadDir returns the number of ReadDir calls.
func (c *CountingFS) TotalReadDir() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.ReadDirCalls {
		n += v
	}
	return n
}

// CallsUnder returns the number of traversal calls inside dir: listings of dir
// itself plus any call on a path beneath it.
func (c *CountingFS) CallsUnder(dir string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir = filepath.Clean(dir)
	prefix := dir + string(filepath.Separator)
	n := c.ReadDirCalls[dir]
	for _, m := range []map[string]int{c.ReadDirCalls, c.LstatCalls, c.StatCalls} {
		for p, v := range m {
			if strings.HasPrefix(p, prefix) {
				n += v
			}
		}
	}
	return n
}

// Reset clears all counters.
func (c *CountingFS) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadDirCalls = make(map[string]int)
	c.LstatCalls = make(map[string]int)
	c.StatCalls = make(map[string]int)
}

// WriteTree creates files (with content) under root. Keys ending in "/" are directories.
func WriteTree(root string, files map[string]string) error {
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if strings.HasSuffix(rel, "/") {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
