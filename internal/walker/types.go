// Package walker discovers files and directories under a root path.
//
// Traversal is depth-first over an explicit stack of pending directories, so
// tree depth never grows the call stack. Children are visited in byte-wise
// sorted order, which keeps results and cache deltas reproducible.
package walker

import (
	"io/fs"
	"math"
	"path"
	"strings"
	"time"

	"github.com/Aman-CERP/amanscan/internal/errors"
)

// Unlimited disables the depth limit.
const Unlimited = -1

// Kind is the type of a discovered entry.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindSymlink   Kind = "symlink"
)

// Entry is a single discovered path.
type Entry struct {
	Path     string    `json:"path"` // slash-separated, relative to root
	Kind     Kind      `json:"kind"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Depth    int       `json:"depth"` // root's children are depth 1
	Language string    `json:"language,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// EntryFromInfo builds an Entry from Lstat metadata of a root-relative path.
func EntryFromInfo(rel string, info fs.FileInfo) Entry {
	e := Entry{
		Path:    rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Depth:   Depth(rel),
	}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		e.Kind = KindSymlink
	case info.IsDir():
		e.Kind = KindDirectory
	default:
		e.Kind = KindFile
		e.Language = DetectLanguage(rel)
	}
	return e
}

// ComparePaths orders relative paths the way Walk yields them: segment by
// segment in byte order, with a directory before its contents.
func ComparePaths(a, b string) int {
	for {
		as, arest, aok := strings.Cut(a, "/")
		bs, brest, bok := strings.Cut(b, "/")
		if c := strings.Compare(as, bs); c != 0 {
			return c
		}
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return -1
		case !bok:
			return 1
		}
		a, b = arest, brest
	}
}

// Canceller exposes a cooperative cancellation flag.
type Canceller interface {
	Cancelled() bool
}

// Options configures a Walker.
type Options struct {
	// Recursive descends into subdirectories. When false only depth-1 entries are returned.
	Recursive bool

	// MaxDepth limits entry depth. 0 returns root's immediate children only;
	// Unlimited removes the limit.
	MaxDepth int

	// FollowSymlinks descends into symlinked directories, guarded by cycle detection.
	FollowSymlinks bool

	// EstimatedTotal seeds the progress estimate, e.g. from a previous scan.
	EstimatedTotal int

	// OnProgress is called after each yielded entry.
	OnProgress func(scanned, estimatedTotal int, current string)

	// OnError receives every classified failure. A non-nil return aborts the walk.
	OnError func(errors.Record) error

	// Canceller is checked before each directory entry is processed.
	Canceller Canceller
}

// Limit returns the maximum entry depth.
func (o Options) Limit() int {
	if !o.Recursive || o.MaxDepth == 0 {
		return 1
	}
	if o.MaxDepth < 0 {
		return math.MaxInt
	}
	return o.MaxDepth
}

// Depth returns the depth of a relative path.
func Depth(rel string) int {
	if rel == "" || rel == "." {
		return 0
	}
	n := 1
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			n++
		}
	}
	return n
}

// languageMap maps file extensions and well-known file names to languages.
var languageMap = map[string]string{
	".go":      "go",
	".js":      "javascript",
	".jsx":     "javascript",
	".mjs":     "javascript",
	".ts":      "typescript",
	".tsx":     "typescript",
	".py":      "python",
	".pyi":     "python",
	".rb":      "ruby",
	".rs":      "rust",
	".java":    "java",
	".kt":      "kotlin",
	".c":       "c",
	".h":       "c",
	".cpp":     "cpp",
	".cc":      "cpp",
	".hpp":     "cpp",
	".cs":      "csharp",
	".swift":   "swift",
	".php":     "php",
	".scala":   "scala",
	".ex":      "elixir",
	".exs":     "elixir",
	".hs":      "haskell",
	".lua":     "lua",
	".sql":     "sql",
	".sh":      "shell",
	".bash":    "shell",
	".zsh":     "shell",
	".html":    "html",
	".css":     "css",
	".scss":    "scss",
	".vue":     "vue",
	".svelte":  "svelte",
	".proto":   "protobuf",
	".graphql": "graphql",

	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".xml":  "xml",
	".ini":  "ini",

	".md":  "markdown",
	".mdx": "markdown",
	".rst": "rst",
	".txt": "text",

	"Dockerfile": "dockerfile",
	"Makefile":   "makefile",
	"go.mod":     "gomod",
}

// DetectLanguage returns the language label for a path, or "" if unknown.
// Exact file names take precedence over extensions.
func DetectLanguage(p string) string {
	base := path.Base(p)
	if lang, ok := languageMap[base]; ok {
		return lang
	}
	return languageMap[path.Ext(base)]
}
