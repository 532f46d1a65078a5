package walker

import (
	"io/fs"
	"os"
)

// FS is the filesystem surface the walker needs. Tests substitute counting doubles.
type FS interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Lstat(name string) (fs.FileInfo, error)
	Stat(name string) (fs.FileInfo, error)
}

// OSFS is the FS backed by the operating system.
type OSFS struct{}

// ReadDir lists a directory.
func (OSFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

// Lstat returns metadata without following a final symlink.
func (OSFS) Lstat(name string) (fs.FileInfo, error) { return os.Lstat(name) }

// Stat returns metadata, following symlinks.
func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// identity distinguishes directories for cycle detection.
type identity struct {
	dev  uint64
	ino  uint64
	path string
}
