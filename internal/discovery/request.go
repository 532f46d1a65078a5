package discovery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/ignore"
	"github.com/Aman-CERP/amanscan/internal/walker"
)

// Request describes one scan.
type Request struct {
	Root string `json:"root"`

	// Recursive descends into subdirectories. False behaves like MaxDepth 0.
	Recursive bool `json:"recursive"`

	// MaxDepth limits entry depth: 0 is root's children only, walker.Unlimited removes the limit.
	MaxDepth int `json:"max_depth"`

	// Patterns are ignore patterns applied after the defaults.
	Patterns []string `json:"patterns,omitempty"`

	// IncludeDefaults enables the built-in ignore patterns.
	IncludeDefaults bool `json:"include_defaults"`

	// Cache reuses and persists records in the engine's store.
	Cache bool `json:"cache"`

	FollowSymlinks bool `json:"follow_symlinks"`

	// IgnoreFile appends patterns read from .amanscanignore in the root.
	IgnoreFile bool `json:"ignore_file"`
}

// DefaultRequest returns a recursive, cached, unlimited request for root.
func DefaultRequest(root string) Request {
	return Request{
		Root:            root,
		Recursive:       true,
		MaxDepth:        walker.Unlimited,
		IncludeDefaults: true,
		Cache:           true,
		IgnoreFile:      true,
	}
}

// walkOptions returns the traversal options of the request.
func (r Request) walkOptions() walker.Options {
	return walker.Options{
		Recursive:      r.Recursive,
		MaxDepth:       r.MaxDepth,
		FollowSymlinks: r.FollowSymlinks,
	}
}

// prepared is a validated request with everything derived from it.
type prepared struct {
	req      Request
	rootInfo fs.FileInfo
	params   cache.Params
	key      cache.Key
	matcher  *ignore.Matcher
}

// prepare canonicalizes and validates req. Every failure is CRITICAL and is
// recorded in c before being returned.
func (e *Engine) prepare(req Request, c *errors.Collector) (*prepared, error) {
	if req.Root == "" {
		return nil, e.abort(c, errors.KindInvalidRequest, "", "validate", "root path is required", nil)
	}
	if req.MaxDepth < walker.Unlimited {
		return nil, e.abort(c, errors.KindInvalidRequest, req.Root, "validate",
			fmt.Sprintf("max depth must be non-negative, got %d", req.MaxDepth), nil)
	}

	abs, err := filepath.Abs(req.Root)
	if err != nil {
		return nil, e.abort(c, errors.KindInvalidRequest, req.Root, "abs", "root path cannot be resolved", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, e.abort(c, errors.KindRootInaccessible, abs, "resolve", "root is missing or inaccessible", err)
	}
	info, err := e.fs.Stat(resolved)
	if err != nil {
		return nil, e.abort(c, errors.KindRootInaccessible, resolved, "stat", "root is missing or inaccessible", err)
	}
	if !info.IsDir() {
		return nil, e.abort(c, errors.KindRootInaccessible, resolved, "stat", "root is not a directory", nil)
	}
	req.Root = resolved

	patterns := slices.Clone(req.Patterns)
	if req.IgnoreFile {
		extra, err := ignore.ReadFile(filepath.Join(resolved, ignore.FileName))
		if err != nil {
			_ = c.Record(errors.NewRecord(errors.SeverityWarning, errors.KindStatFailed, ignore.FileName, "read", err))
		}
		patterns = append(patterns, extra...)
	}

	params := cache.Params{
		Root:            resolved,
		Recursive:       req.Recursive,
		MaxDepth:        req.MaxDepth,
		Patterns:        patterns,
		IncludeDefaults: req.IncludeDefaults,
		FollowSymlinks:  req.FollowSymlinks,
	}.Normalized()

	matcher, err := e.matcherFor(params.Patterns, params.IncludeDefaults)
	if err != nil {
		return nil, e.abort(c, errors.KindInvalidRequest, resolved, "compile", "invalid ignore pattern", err)
	}

	return &prepared{
		req:      req,
		rootInfo: info,
		params:   params,
		key:      cache.KeyFor(params),
		matcher:  matcher,
	}, nil
}

// abort records a CRITICAL failure and returns the error to propagate.
func (e *Engine) abort(c *errors.Collector, kind errors.Kind, path, op, msg string, cause error) error {
	rec := errors.NewRecord(errors.SeverityCritical, kind, path, op, nil)
	rec.Message = msg
	if cause != nil {
		rec.Message = msg + ": " + cause.Error()
	}
	return c.Record(rec)
}
