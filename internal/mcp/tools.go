package mcp

import (
	"time"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
)

// ScanInput defines the input schema for the scan tool.
type ScanInput struct {
	Root           string   `json:"root" jsonschema:"absolute path of the directory to scan"`
	Recursive      *bool    `json:"recursive,omitempty" jsonschema:"descend into subdirectories, default true"`
	MaxDepth       *int     `json:"max_depth,omitempty" jsonschema:"maximum entry depth, -1 for unlimited"`
	Ignore         []string `json:"ignore,omitempty" jsonschema:"additional gitignore-style patterns"`
	NoDefaults     bool     `json:"no_defaults,omitempty" jsonschema:"disable the built-in ignore patterns"`
	NoCache        bool     `json:"no_cache,omitempty" jsonschema:"walk the tree without reading or writing the cache"`
	FollowSymlinks bool     `json:"follow_symlinks,omitempty" jsonschema:"descend into symlinked directories"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of paths listed, default 200"`
}

// ScanOutput defines the output schema for the scan tool.
type ScanOutput struct {
	ScanID           string         `json:"scan_id"`
	Root             string         `json:"root"`
	Project          ProjectInfo    `json:"project"`
	TotalFiles       int            `json:"total_files"`
	TotalDirectories int            `json:"total_directories"`
	TotalSize        int64          `json:"total_size"`
	ElapsedMS        int64          `json:"elapsed_ms"`
	CacheHit         bool           `json:"cache_hit"`
	Partial          bool           `json:"partial"`
	Delta            DeltaOutput    `json:"delta"`
	Languages        map[string]int `json:"languages"`
	Errors           errors.Summary `json:"errors"`
	Paths            []string       `json:"paths" jsonschema:"discovered file paths relative to root, in walk order"`
	Truncated        bool           `json:"truncated,omitempty" jsonschema:"true when paths was cut at limit"`
}

// UpdateContextInput defines the input schema for the update_context tool.
type UpdateContextInput struct {
	Path string `json:"path" jsonschema:"absolute path that changed under a scanned root"`
}

// DeltaOutput lists changed paths relative to the scanned root.
type DeltaOutput struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// ErrorSummaryInput defines the input schema for the error_summary tool (no parameters).
type ErrorSummaryInput struct{}

// ErrorSummaryOutput defines the output schema for the error_summary tool.
type ErrorSummaryOutput struct {
	Summary errors.Summary `json:"summary"`
	Records []RecordOutput `json:"records"`
}

// RecordOutput is one recorded issue.
type RecordOutput struct {
	Timestamp string `json:"timestamp" jsonschema:"RFC 3339 time the issue was recorded"`
	Severity  string `json:"severity"`
	Kind      string `json:"kind"`
	Path      string `json:"path,omitempty"`
	Op        string `json:"op,omitempty"`
	Message   string `json:"message"`
	Recovered bool   `json:"recovered"`
}

// HandleErrorInput defines the input schema for the handle_error tool.
type HandleErrorInput struct {
	Severity string `json:"severity" jsonschema:"INFO, WARNING, ERROR or CRITICAL"`
	Kind     string `json:"kind,omitempty" jsonschema:"failure kind, default external"`
	Path     string `json:"path,omitempty"`
	Op       string `json:"op,omitempty"`
	Message  string `json:"message"`
}

// HandleErrorOutput defines the output schema for the handle_error tool.
type HandleErrorOutput struct {
	Continue bool `json:"continue" jsonschema:"false when the reported failure must abort the caller"`
}

// InvalidateCacheInput defines the input schema for the invalidate_cache tool.
type InvalidateCacheInput struct {
	Root           string   `json:"root" jsonschema:"absolute path of the scanned directory"`
	Recursive      *bool    `json:"recursive,omitempty"`
	MaxDepth       *int     `json:"max_depth,omitempty"`
	Ignore         []string `json:"ignore,omitempty"`
	NoDefaults     bool     `json:"no_defaults,omitempty"`
	FollowSymlinks bool     `json:"follow_symlinks,omitempty"`
}

// InvalidateCacheOutput defines the output schema for the invalidate_cache tool.
type InvalidateCacheOutput struct {
	Key cache.Key `json:"key"`
}

// ProjectInfo contains information about the scanned project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

func recordOutputs(records []errors.Record) []RecordOutput {
	out := make([]RecordOutput, len(records))
	for i, r := range records {
		out[i] = RecordOutput{
			Timestamp: r.Timestamp.Format(time.RFC3339Nano),
			Severity:  string(r.Severity),
			Kind:      string(r.Kind),
			Path:      r.Path,
			Op:        r.Op,
			Message:   r.Message,
			Recovered: r.Recovered,
		}
	}
	return out
}

func deltaOutput(d cache.Delta) DeltaOutput {
	out := DeltaOutput{Added: d.Added, Modified: d.Modified, Removed: d.Removed}
	if out.Added == nil {
		out.Added = []string{}
	}
	if out.Modified == nil {
		out.Modified = []string{}
	}
	if out.Removed == nil {
		out.Removed = []string{}
	}
	return out
}
