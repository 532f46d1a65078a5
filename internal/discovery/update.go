package discovery

import (
	"context"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/walker"
)

// UpdateContext re-examines one path under a completed scan and folds the
// result into the in-memory record, persisting it when the scan was cached.
//
// A directory path is re-walked in full. A path that no longer exists removes
// its recorded subtree. Paths beyond the depth limit or below an ignored or
// unfollowed ancestor leave the record untouched and return an empty delta.
// The parent directory's recorded metadata is not refreshed, so the next Scan
// re-lists it once.
func (e *Engine) UpdateContext(ctx context.Context, target string) (cache.Delta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	abs, err := filepath.Abs(target)
	if err != nil {
		return cache.Delta{}, errors.New(errors.ErrCodeInvalidPath, "path cannot be resolved", err).WithPath(target)
	}
	abs = resolveParent(abs)

	st, rel := e.stateFor(abs)
	if st == nil {
		return cache.Delta{}, ErrNoScan
	}

	c := e.currentCollector()
	opts := st.p.req.walkOptions()
	opts.OnError = c.Record

	var delta cache.Delta
	if rel == "" {
		delta, err = e.updateRoot(ctx, st, opts, c)
	} else {
		delta, err = e.updatePath(ctx, st, rel, opts, c)
	}
	if err != nil || delta.Empty() {
		return delta, err
	}

	if st.persist && e.store != nil {
		if err := e.store.Save(st.record); err != nil {
			_ = c.Record(errors.NewRecord(errors.SeverityError, errors.KindCacheWrite, e.store.Path(st.p.key), "save", err))
		}
	}

	e.logger.Debug("context updated",
		slog.String("root", st.p.req.Root),
		slog.String("path", rel),
		slog.Int("added", len(delta.Added)),
		slog.Int("removed", len(delta.Removed)),
		slog.Int("modified", len(delta.Modified)))

	return delta, nil
}

// updateRoot refreshes the whole record of st.
func (e *Engine) updateRoot(ctx context.Context, st *scanState, opts walker.Options, c *errors.Collector) (cache.Delta, error) {
	info, err := e.fs.Stat(st.p.req.Root)
	if err != nil || !info.IsDir() {
		return cache.Delta{}, e.abort(c, errors.KindRootInaccessible, st.p.req.Root, "stat", "root is missing or inaccessible", err)
	}

	p := *st.p
	p.rootInfo = info

	l, err := e.refresh(ctx, &p, st.record, opts)
	if err != nil {
		return cache.Delta{}, err
	}
	if l.partial {
		return cache.Delta{}, ctx.Err()
	}

	rec := l.record(&p, e.now())
	delta := cache.Diff(st.record.Entries, rec.Entries)

	st.p = &p
	st.record = rec
	return delta, nil
}

// updatePath replaces the recorded subtree at rel with its current state.
func (e *Engine) updatePath(ctx context.Context, st *scanState, rel string, opts walker.Options, c *errors.Collector) (cache.Delta, error) {
	limit := opts.Limit()
	depth := walker.Depth(rel)
	if depth > limit {
		return cache.Delta{}, nil
	}

	l := newListing(0)
	l.track(&opts)

	after := make(map[string]cache.Stat)
	ancestors := ancestorsOf(rel)
	for _, a := range ancestors {
		if st.p.matcher.Match(a, true) {
			return cache.Delta{}, nil
		}
		if recorded, ok := st.record.Entries[a]; ok {
			if recorded.Kind == walker.KindSymlink && !st.p.req.FollowSymlinks {
				return cache.Delta{}, nil
			}
			continue
		}
		info, err := e.fs.Lstat(e.abs(st.p, a))
		if err != nil {
			if gone(err) {
				break
			}
			_ = c.Record(errors.NewRecord(errors.SeverityWarning, errors.KindStatFailed, a, "lstat", err))
			return cache.Delta{}, nil
		}
		entry := walker.EntryFromInfo(a, info)
		if entry.Kind == walker.KindSymlink && !st.p.req.FollowSymlinks {
			return cache.Delta{}, nil
		}
		after[a] = cache.StatOf(entry)
	}

	info, err := e.fs.Lstat(e.abs(st.p, rel))
	switch {
	case err == nil:
		entry := walker.EntryFromInfo(rel, info)
		if st.p.matcher.Match(rel, entry.IsDir()) {
			return cache.Delta{}, nil
		}
		after[rel] = cache.StatOf(entry)
		if depth < limit && e.descends(st.p, entry) {
			w := walker.New(e.fs, st.p.req.Root, st.p.matcher, opts)
			for sub := range w.WalkFrom(ctx, rel, depth) {
				after[sub.Path] = cache.StatOf(sub)
			}
			if err := w.Err(); err != nil {
				return cache.Delta{}, err
			}
			if w.Partial() {
				return cache.Delta{}, ctx.Err()
			}
		}
	case gone(err):
		// nothing left; the recorded subtree is removed below
	default:
		_ = c.Record(errors.NewRecord(errors.SeverityWarning, errors.KindStatFailed, rel, "lstat", err))
		return cache.Delta{}, nil
	}

	before := make(map[string]cache.Stat)
	prefix := rel + "/"
	for p, s := range st.record.Entries {
		if p == rel || strings.HasPrefix(p, prefix) {
			before[p] = s
		}
	}
	for _, a := range ancestors {
		if s, ok := st.record.Entries[a]; ok {
			before[a] = s
			if _, seen := after[a]; !seen {
				after[a] = s
			}
		}
	}

	st.record.Unlisted = slices.DeleteFunc(st.record.Unlisted, func(dir string) bool {
		return dir == rel || strings.HasPrefix(dir, prefix)
	})
	for dir := range l.unlisted {
		if _, ok := after[dir]; ok {
			st.record.Unlisted = append(st.record.Unlisted, dir)
		}
	}
	slices.Sort(st.record.Unlisted)

	delta := cache.Diff(before, after)
	if delta.Empty() {
		return delta, nil
	}

	maps.DeleteFunc(st.record.Entries, func(p string, _ cache.Stat) bool {
		_, ok := before[p]
		return ok
	})
	maps.Copy(st.record.Entries, after)
	return delta, nil
}

// ancestorsOf returns the proper ancestors of rel, outermost first.
func ancestorsOf(rel string) []string {
	var out []string
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			out = append(out, rel[:i])
		}
	}
	return out
}

// resolveParent canonicalizes the directory part of abs so that paths reached
// through symlinks map onto the canonical scan roots. The leaf is kept as is
// because it may no longer exist.
func resolveParent(abs string) string {
	dir, base := filepath.Split(abs)
	if base == "" {
		return abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(resolved, base)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
