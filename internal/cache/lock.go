package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName guards maintenance operations in the store directory.
const lockFileName = ".lock"

// fileLock wraps a gofrs/flock lock on <dir>/.lock.
type fileLock struct {
	flock  *flock.Flock
	locked bool
}

func newFileLock(dir string) *fileLock {
	return &fileLock{flock: flock.New(filepath.Join(dir, lockFileName))}
}

// lockShared takes a shared lock, held by writers of individual records.
func (l *fileLock) lockShared() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.RLock(); err != nil {
		return fmt.Errorf("failed to acquire shared lock: %w", err)
	}
	l.locked = true
	return nil
}

// lockExclusive takes an exclusive lock, held while clearing or pruning.
func (l *fileLock) lockExclusive() error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// unlock releases the lock. Safe to call on an unlocked lock.
func (l *fileLock) unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
