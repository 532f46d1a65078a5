package discovery

import (
	"time"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/walker"
)

// Result is the outcome of one scan.
type Result struct {
	ScanID string    `json:"scan_id"`
	Root   string    `json:"root"`
	Key    cache.Key `json:"key"`

	// TotalFiles counts Entries: regular files and symlinks.
	TotalFiles       int   `json:"total_files"`
	TotalDirectories int   `json:"total_directories"`
	TotalSize        int64 `json:"total_size"`

	// Entries holds every non-directory entry in walk order.
	Entries []walker.Entry `json:"entries"`

	// Directories holds every directory entry in walk order.
	Directories []walker.Entry `json:"directories"`

	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`

	Errors ErrorReport `json:"errors"`

	// CacheHit is set when a valid record was refreshed instead of walking the tree.
	CacheHit bool `json:"cache_hit"`

	// Delta is the change against the cached record. Empty unless CacheHit.
	Delta cache.Delta `json:"delta"`

	// Partial is set when the scan was cancelled. Partial results are never cached.
	Partial bool `json:"partial"`

	// Languages counts files per language label.
	Languages map[string]int `json:"languages"`
}

// ErrorReport carries the issues recorded during a scan.
type ErrorReport struct {
	Summary errors.Summary  `json:"summary"`
	Records []errors.Record `json:"records"`
}

// newResult splits a walk-ordered listing into entries and directories.
func newResult(scanID string, p *prepared, listing []walker.Entry) *Result {
	res := &Result{
		ScanID:      scanID,
		Root:        p.req.Root,
		Key:         p.key,
		Entries:     make([]walker.Entry, 0, len(listing)),
		Directories: make([]walker.Entry, 0),
		Languages:   make(map[string]int),
	}

	for _, e := range listing {
		if e.IsDir() {
			res.Directories = append(res.Directories, e)
			continue
		}
		res.Entries = append(res.Entries, e)
		if e.Kind == walker.KindFile {
			res.TotalSize += e.Size
		}
		if e.Language != "" {
			res.Languages[e.Language]++
		}
	}

	res.TotalFiles = len(res.Entries)
	res.TotalDirectories = len(res.Directories)
	return res
}

// Paths returns the relative paths of Entries.
func (r *Result) Paths() []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Path
	}
	return out
}
