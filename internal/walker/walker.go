package walker

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/ignore"
)

// Walker traverses a tree. A Walker is not safe for concurrent iteration; each
// call to Walk or WalkFrom starts an independent traversal.
type Walker struct {
	fs      FS
	root    string
	matcher *ignore.Matcher
	opts    Options

	// State of the most recent traversal.
	scanned   int
	known     int
	listed    int
	dirsAhead int
	partial   bool
	err       error
	visited   map[identity]struct{}
}

// frame is one directory on the pending stack.
type frame struct {
	rel      string
	depth    int
	children []fs.DirEntry
	next     int
}

// New creates a Walker for an absolute, canonical root.
func New(fsys FS, root string, matcher *ignore.Matcher, opts Options) *Walker {
	if fsys == nil {
		fsys = OSFS{}
	}
	return &Walker{
		fs:      fsys,
		root:    root,
		matcher: matcher,
		opts:    opts,
	}
}

// Root returns the root the walker was created with.
func (w *Walker) Root() string { return w.root }

// Partial reports whether the last traversal stopped early on cancellation.
func (w *Walker) Partial() bool { return w.partial }

// Err returns the error that aborted the last traversal, if any.
func (w *Walker) Err() error { return w.err }

// Scanned returns the number of entries yielded by the last traversal.
func (w *Walker) Scanned() int { return w.scanned }

// Walk traverses the whole tree under root.
func (w *Walker) Walk(ctx context.Context) iter.Seq[Entry] {
	return w.WalkFrom(ctx, "", 0)
}

// WalkFrom traverses the subtree rooted at rel, a directory at the given depth.
// Entries keep their root-relative paths and depths. The directory itself is not yielded.
func (w *Walker) WalkFrom(ctx context.Context, rel string, depth int) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		w.reset()
		w.walk(ctx, rel, depth, yield)
	}
}

func (w *Walker) reset() {
	w.scanned = 0
	w.known = 0
	w.listed = 0
	w.dirsAhead = 0
	w.partial = false
	w.err = nil
	w.visited = make(map[identity]struct{})
}

func (w *Walker) walk(ctx context.Context, startRel string, startDepth int, yield func(Entry) bool) {
	limit := w.opts.Limit()
	if startDepth >= limit {
		return
	}

	startAbs := w.abs(startRel)
	info, err := w.fs.Stat(startAbs)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("not a directory")
		}
		if startRel == "" {
			w.err = w.critical(startAbs, err)
		} else {
			w.report(errors.NewRecord(errors.SeverityWarning, errors.KindDirUnreadable, startRel, "stat", err))
		}
		return
	}
	w.visited[identityOf(info, startAbs)] = struct{}{}

	children, err := w.readDir(startAbs)
	if err != nil {
		if startRel == "" {
			w.err = w.critical(startAbs, err)
		} else {
			w.report(errors.NewRecord(errors.SeverityWarning, errors.KindDirUnreadable, startRel, "readdir", err))
		}
		return
	}

	stack := []*frame{{rel: startRel, depth: startDepth, children: children}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.children) {
			stack = stack[:len(stack)-1]
			continue
		}

		if w.cancelled(ctx) {
			w.partial = true
			return
		}

		de := top.children[top.next]
		top.next++
		if de.IsDir() {
			w.dirsAhead--
		}

		rel := joinRel(top.rel, de.Name())
		depth := top.depth + 1

		if w.matcher.Match(rel, de.IsDir()) {
			continue
		}

		abs := w.abs(rel)
		info, err := w.fs.Lstat(abs)
		if err != nil {
			if w.report(errors.NewRecord(errors.SeverityWarning, errors.KindStatFailed, rel, "lstat", err)) {
				return
			}
			continue
		}

		entry := EntryFromInfo(rel, info)

		descend := false
		var dirInfo fs.FileInfo
		switch entry.Kind {
		case KindSymlink:
			if w.opts.FollowSymlinks {
				target, err := w.fs.Stat(abs)
				if err == nil && target.IsDir() {
					if w.matcher.Match(rel, true) {
						continue
					}
					descend = true
					dirInfo = target
				}
			}
		case KindDirectory:
			descend = true
			dirInfo = info
		}

		if !yield(entry) {
			return
		}
		w.scanned++
		w.progress(rel)

		if !descend || depth >= limit {
			continue
		}

		id := identityOf(dirInfo, abs)
		if _, seen := w.visited[id]; seen {
			rec := errors.NewRecord(errors.SeverityInfo, errors.KindSymlinkCycle, rel, "descend", nil)
			rec.Message = "directory already visited, skipping branch"
			if w.report(rec) {
				return
			}
			continue
		}
		w.visited[id] = struct{}{}

		children, err := w.readDir(abs)
		if err != nil {
			if w.report(errors.NewRecord(errors.SeverityWarning, errors.KindDirUnreadable, rel, "readdir", err)) {
				return
			}
			continue
		}
		stack = append(stack, &frame{rel: rel, depth: depth, children: children})
	}
}

// readDir lists a directory in byte-wise name order and updates the estimate.
func (w *Walker) readDir(abs string) ([]fs.DirEntry, error) {
	children, err := w.fs.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(children, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})
	w.listed++
	w.known += len(children)
	for _, c := range children {
		if c.IsDir() {
			w.dirsAhead++
		}
	}
	return children, nil
}

// estimate extrapolates the total from directories still to be listed.
func (w *Walker) estimate() int {
	est := w.known
	if w.listed > 0 && w.dirsAhead > 0 {
		est += w.dirsAhead * (w.known / w.listed)
	}
	if w.opts.EstimatedTotal > est {
		est = w.opts.EstimatedTotal
	}
	if est < w.scanned {
		est = w.scanned
	}
	return est
}

func (w *Walker) progress(current string) {
	if w.opts.OnProgress != nil {
		w.opts.OnProgress(w.scanned, w.estimate(), current)
	}
}

func (w *Walker) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return w.opts.Canceller != nil && w.opts.Canceller.Cancelled()
}

// report forwards a record and returns true if the walk must stop.
func (w *Walker) report(rec errors.Record) bool {
	if w.opts.OnError == nil {
		return false
	}
	if err := w.opts.OnError(rec); err != nil {
		w.err = err
		return true
	}
	return false
}

// critical reports an inaccessible root and returns the aborting error.
func (w *Walker) critical(abs string, cause error) error {
	rec := errors.NewRecord(errors.SeverityCritical, errors.KindRootInaccessible, abs, "open", cause)
	if w.opts.OnError != nil {
		if err := w.opts.OnError(rec); err != nil {
			return err
		}
	}
	return errors.Critical(errors.KindRootInaccessible, abs, "root is missing or inaccessible", cause)
}

func (w *Walker) abs(rel string) string {
	if rel == "" {
		return w.root
	}
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
