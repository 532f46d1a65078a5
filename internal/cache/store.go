package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/renameio"
)

// recordExt is the file extension of persisted records.
const recordExt = ".json"

var (
	// ErrMiss means no usable record exists for the key.
	ErrMiss = errors.New("cache miss")

	// ErrExpired means a record exists but is older than the store's max age.
	ErrExpired = fmt.Errorf("%w: record expired", ErrMiss)

	// ErrCorrupt means a record exists but cannot be decoded.
	ErrCorrupt = errors.New("cache record corrupt")
)

// Store persists one record per key under a directory.
type Store struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxAge treats records older than d as misses. Zero disables expiry.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *Store) { s.maxAge = d }
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	s := &Store{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultDir returns the per-user cache directory.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(base, "amanscan", "scans"), nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file path of the record for key.
func (s *Store) Path(key Key) string {
	return filepath.Join(s.dir, string(key)+recordExt)
}

// Load returns the record for key if it was produced by exactly params.
// It returns an error wrapping ErrMiss when there is no usable record and
// ErrCorrupt when the stored bytes cannot be decoded.
func (s *Store) Load(key Key, params Params) (*Record, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("failed to read cache record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if rec.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d, want %d", ErrMiss, rec.Version, SchemaVersion)
	}
	if rec.Key != key || !rec.Params.Equal(params) {
		slog.Debug("cache record parameters differ",
			slog.String("key", string(key)),
			slog.String("stored_root", rec.Params.Root))
		return nil, fmt.Errorf("%w: parameters differ", ErrMiss)
	}
	if s.maxAge > 0 && s.now().Sub(rec.CreatedAt) > s.maxAge {
		return nil, ErrExpired
	}
	if rec.Entries == nil {
		rec.Entries = make(map[string]Stat)
	}

	return &rec, nil
}

// Save writes rec atomically: a temporary file in the store directory is
// synced and renamed over the previous record.
func (s *Store) Save(rec *Record) error {
	if rec == nil {
		return errors.New("nil cache record")
	}
	if rec.Key == "" {
		rec.Key = KeyFor(rec.Params)
	}
	if rec.Version == 0 {
		rec.Version = SchemaVersion
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}

	lock := newFileLock(s.dir)
	if err := lock.lockShared(); err != nil {
		return err
	}
	defer func() { _ = lock.unlock() }()

	if err := renameio.WriteFile(s.Path(rec.Key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	return nil
}

// Invalidate removes the record for key. A missing record is not an error.
func (s *Store) Invalidate(key Key) error {
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache record: %w", err)
	}
	return nil
}

// Info describes a stored record for maintenance commands.
type Info struct {
	Key       Key       `json:"key"`
	Root      string    `json:"root,omitempty"`
	Entries   int       `json:"entries"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
	Corrupt   bool      `json:"corrupt,omitempty"`
}

// List describes every record in the store, sorted by key.
func (s *Store) List() ([]Info, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	var infos []Info
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		info := Info{Key: Key(strings.TrimSuffix(name, recordExt))}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			info.Corrupt = true
			infos = append(infos, info)
			continue
		}
		info.Bytes = int64(len(data))

		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			info.Corrupt = true
		} else {
			info.Root = rec.Params.Root
			info.Entries = len(rec.Entries)
			info.CreatedAt = rec.CreatedAt
		}
		infos = append(infos, info)
	}

	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(string(a.Key), string(b.Key)) })
	return infos, nil
}

// Clear removes every record and returns how many were removed.
func (s *Store) Clear() (int, error) {
	return s.removeWhere(func(Info) bool { return true })
}

// Prune removes records older than maxAge, plus corrupt ones.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	return s.removeWhere(func(i Info) bool {
		return i.Corrupt || i.CreatedAt.Before(cutoff)
	})
}

func (s *Store) removeWhere(match func(Info) bool) (int, error) {
	lock := newFileLock(s.dir)
	if err := lock.lockExclusive(); err != nil {
		return 0, err
	}
	defer func() { _ = lock.unlock() }()

	infos, err := s.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, info := range infos {
		if !match(info) {
			continue
		}
		if err := s.Invalidate(info.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
