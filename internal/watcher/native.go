package watcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/ignore"
)

// renamePairWindow is how long a rename waits for the matching create.
// inotify delivers both halves of a move back to back.
const renamePairWindow = 50 * time.Millisecond

// source produces raw, undebounced events.
type source interface {
	backend() Backend

	// start begins producing events and returns without blocking.
	start(ctx context.Context, root string, emit func(Event)) error

	// close releases the source and waits for its goroutines.
	close() error
}

// nativeSource watches every non-ignored directory with fsnotify.
type nativeSource struct {
	fsw     *fsnotify.Watcher
	matcher *ignore.Matcher
	onError func(errors.Record)
	root    string
	watched map[string]struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func newNativeSource(matcher *ignore.Matcher, onError func(errors.Record)) (*nativeSource, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &nativeSource{
		fsw:     fsw,
		matcher: matcher,
		onError: onError,
		watched: make(map[string]struct{}),
	}, nil
}

func (n *nativeSource) backend() Backend { return BackendNative }

func (n *nativeSource) start(ctx context.Context, root string, emit func(Event)) error {
	n.root = root
	if err := n.fsw.Add(root); err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	n.watched[root] = struct{}{}
	n.watchTree(root, nil)

	n.wg.Add(1)
	go n.loop(ctx, emit)
	return nil
}

func (n *nativeSource) loop(ctx context.Context, emit func(Event)) {
	defer n.wg.Done()

	var (
		renamedFrom string
		renamedDir  bool
		renameTimer <-chan time.Time
	)
	flushRename := func() {
		if renamedFrom != "" {
			emit(Event{Path: renamedFrom, Kind: EventDeleted, IsDir: renamedDir, Timestamp: time.Now()})
			renamedFrom = ""
			renameTimer = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flushRename()
			return
		case <-renameTimer:
			flushRename()
		case err, ok := <-n.fsw.Errors:
			if !ok {
				return
			}
			n.reportError(err)
		case ev, ok := <-n.fsw.Events:
			if !ok {
				flushRename()
				return
			}

			rel, isDir, skip := n.classify(ev)
			if skip {
				continue
			}

			if renamedFrom != "" {
				if ev.Has(fsnotify.Create) {
					if isDir {
						n.watchTree(ev.Name, nil)
					}
					emit(Event{Path: rel, OldPath: renamedFrom, Kind: EventRenamed, IsDir: isDir, Timestamp: time.Now()})
					renamedFrom = ""
					renameTimer = nil
					continue
				}
				flushRename()
			}

			switch {
			case ev.Has(fsnotify.Create):
				emit(Event{Path: rel, Kind: EventCreated, IsDir: isDir, Timestamp: time.Now()})
				if isDir {
					n.watchTree(ev.Name, emit)
				}
			case ev.Has(fsnotify.Write):
				emit(Event{Path: rel, Kind: EventModified, IsDir: isDir, Timestamp: time.Now()})
			case ev.Has(fsnotify.Remove):
				delete(n.watched, ev.Name)
				emit(Event{Path: rel, Kind: EventDeleted, IsDir: isDir, Timestamp: time.Now()})
			case ev.Has(fsnotify.Rename):
				delete(n.watched, ev.Name)
				renamedFrom = rel
				renamedDir = isDir
				renameTimer = time.After(renamePairWindow)
			}
		}
	}
}

// classify resolves the relative path and directory flag of an event and
// reports whether it should be dropped.
func (n *nativeSource) classify(ev fsnotify.Event) (rel string, isDir bool, skip bool) {
	r, err := filepath.Rel(n.root, ev.Name)
	if err != nil || r == "." {
		return "", false, true
	}
	rel = filepath.ToSlash(r)

	if _, ok := n.watched[ev.Name]; ok {
		isDir = true
	} else if info, err := os.Lstat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	if n.matcher.Match(rel, isDir) {
		return "", false, true
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return "", false, true
	}
	return rel, isDir, false
}

// watchTree adds watches for dir and every non-ignored directory below it.
// When emit is set, entries already inside a newly created directory are
// reported as created, since they may predate the watch.
func (n *nativeSource) watchTree(dir string, emit func(Event)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("skipping unwatchable path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return nil
		}
		if path == dir && dir == n.root {
			return nil
		}

		r, relErr := filepath.Rel(n.root, path)
		if relErr != nil {
			return nil
		}
		rel := filepath.ToSlash(r)
		if n.matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if emit != nil && path != dir {
			emit(Event{Path: rel, Kind: EventCreated, IsDir: d.IsDir(), Timestamp: time.Now()})
		}
		if !d.IsDir() {
			return nil
		}
		if err := n.fsw.Add(path); err != nil {
			n.report(errors.SeverityWarning, errors.KindWatchFailure, rel, err)
			return filepath.SkipDir
		}
		n.watched[path] = struct{}{}
		return nil
	})
}

func (n *nativeSource) reportError(err error) {
	if stderrors.Is(err, fsnotify.ErrEventOverflow) {
		n.report(errors.SeverityWarning, errors.KindWatchOverflow, "", err)
		return
	}
	n.report(errors.SeverityError, errors.KindWatchFailure, "", err)
}

func (n *nativeSource) report(sev errors.Severity, kind errors.Kind, path string, err error) {
	slog.Warn("native watcher error",
		slog.String("kind", string(kind)),
		slog.String("path", path),
		slog.String("error", err.Error()))
	if n.onError != nil {
		rec := errors.NewRecord(sev, kind, path, "watch", err)
		rec.Timestamp = time.Now()
		rec.Recovered = true
		n.onError(rec)
	}
}

func (n *nativeSource) close() error {
	var err error
	n.once.Do(func() {
		err = n.fsw.Close()
		n.wg.Wait()
	})
	return err
}
