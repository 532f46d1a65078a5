package discovery

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/walker"
)

// listing is the raw outcome of a traversal.
type listing struct {
	entries  map[string]walker.Entry
	unlisted map[string]struct{}
	partial  bool
}

func newListing(size int) listing {
	return listing{
		entries:  make(map[string]walker.Entry, size),
		unlisted: make(map[string]struct{}),
	}
}

// track makes opts remember the directories whose contents could not be read.
func (l listing) track(opts *walker.Options) {
	next := opts.OnError
	opts.OnError = func(r errors.Record) error {
		if r.Kind == errors.KindDirUnreadable {
			l.unlisted[r.Path] = struct{}{}
		}
		if next == nil {
			return nil
		}
		return next(r)
	}
}

// sorted returns the entries in walk order.
func (l listing) sorted() []walker.Entry {
	out := slices.Collect(maps.Values(l.entries))
	slices.SortFunc(out, func(a, b walker.Entry) int { return walker.ComparePaths(a.Path, b.Path) })
	return out
}

func (l listing) stats() map[string]cache.Stat {
	out := make(map[string]cache.Stat, len(l.entries))
	for p, e := range l.entries {
		out[p] = cache.StatOf(e)
	}
	return out
}

// record builds the cache record of a complete listing.
func (l listing) record(p *prepared, now time.Time) *cache.Record {
	rec := cache.NewRecord(p.params, l.stats(), now)
	rec.RootStat = rootStat(p)
	for dir := range l.unlisted {
		if _, ok := l.entries[dir]; ok {
			rec.Unlisted = append(rec.Unlisted, dir)
		}
	}
	slices.Sort(rec.Unlisted)
	return rec
}

// Scan discovers every entry under req.Root.
//
// With caching enabled and a valid record for the request, the record is
// refreshed: recorded paths are re-stated and only directories whose metadata
// changed are listed. Otherwise the tree is walked in full. A corrupt record
// is reported as an ERROR and replaced by a full walk.
//
// Only CRITICAL failures are returned as errors. Cancellation through ctx or
// the tracker yields a partial result and no error.
func (e *Engine) Scan(ctx context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := e.now()
	scanID := uuid.NewString()
	log := e.logger.With(slog.String("scan_id", scanID))

	collector := errors.NewCollector(e.errOpts)
	e.setCollector(collector)

	p, err := e.prepare(req, collector)
	if err != nil {
		log.Debug("scan rejected", slog.String("root", req.Root), slog.String("error", err.Error()))
		return nil, err
	}

	var prev *cache.Record
	if p.req.Cache && e.store != nil {
		prev = e.load(p, collector, log)
	}

	opts := p.req.walkOptions()
	opts.OnError = collector.Record
	opts.Canceller = e.tracker

	var l listing
	if prev != nil {
		e.tracker.Reset(len(prev.Entries))
		l, err = e.refresh(ctx, p, prev, opts)
	} else {
		e.tracker.Reset(0)
		opts.OnProgress = e.tracker.Update
		l, err = e.fullWalk(ctx, p, opts)
	}
	if err != nil {
		return nil, err
	}

	rec := l.record(p, started)

	res := newResult(scanID, p, l.sorted())
	res.StartedAt = started
	res.Partial = l.partial
	if prev != nil {
		res.CacheHit = true
		res.Delta = cache.Diff(prev.Entries, rec.Entries)
	}

	if !l.partial {
		if p.req.Cache && e.store != nil {
			if err := e.store.Save(rec); err != nil {
				_ = collector.Record(errors.NewRecord(errors.SeverityError, errors.KindCacheWrite, e.store.Path(p.key), "save", err))
			}
		}
		e.states.Add(p.req.Root, &scanState{p: p, record: rec, persist: p.req.Cache})
	}

	res.Elapsed = e.now().Sub(started)
	res.Errors = ErrorReport{Summary: collector.Summary(), Records: collector.Records()}

	log.Debug("scan complete",
		slog.String("root", p.req.Root),
		slog.Int("files", res.TotalFiles),
		slog.Int("directories", res.TotalDirectories),
		slog.Bool("cache_hit", res.CacheHit),
		slog.Bool("partial", res.Partial),
		slog.Int("issues", res.Errors.Summary.Total),
		slog.Duration("elapsed", res.Elapsed))

	return res, nil
}

// load returns the cached record for p, or nil when a full walk is needed.
func (e *Engine) load(p *prepared, c *errors.Collector, log *slog.Logger) *cache.Record {
	rec, err := e.store.Load(p.key, p.params)
	switch {
	case err == nil:
		return rec
	case stderrors.Is(err, cache.ErrCorrupt):
		r := errors.NewRecord(errors.SeverityError, errors.KindCacheCorrupt, e.store.Path(p.key), "load", err)
		r.Message = "cache record is corrupt, rescanning: " + err.Error()
		_ = c.Record(r)
	case stderrors.Is(err, cache.ErrMiss):
		log.Debug("cache miss", slog.String("key", string(p.key)), slog.String("reason", err.Error()))
	default:
		_ = c.Record(errors.NewRecord(errors.SeverityError, errors.KindCacheRead, e.store.Path(p.key), "load", err))
	}
	return nil
}

func (e *Engine) fullWalk(ctx context.Context, p *prepared, opts walker.Options) (listing, error) {
	l := newListing(0)
	l.track(&opts)
	w := walker.New(e.fs, p.req.Root, p.matcher, opts)
	for entry := range w.Walk(ctx) {
		l.entries[entry.Path] = entry
	}
	if err := w.Err(); err != nil {
		return l, err
	}
	l.partial = w.Partial()
	return l, nil
}

// refresh brings a cached record up to date without walking unchanged subtrees.
//
// Recorded paths are re-stated in walk order; vanished paths drop out, and so
// does everything below a path the walk would no longer enter. Then the root,
// each recorded directory whose metadata changed and each directory that could
// not be listed last time are listed once. Unseen children are added, walking
// new directories in full. A directory's metadata changes whenever an entry is
// added, removed or renamed directly inside it.
func (e *Engine) refresh(ctx context.Context, p *prepared, prev *cache.Record, opts walker.Options) (listing, error) {
	limit := opts.Limit()
	estimate := len(prev.Entries)
	l := newListing(len(prev.Entries))
	l.track(&opts)
	scanned := 0

	progress := func(rel string) {
		scanned++
		if scanned > estimate {
			estimate = scanned
		}
		e.tracker.Update(scanned, estimate, rel)
	}

	recorded := slices.Collect(maps.Keys(prev.Entries))
	slices.SortFunc(recorded, walker.ComparePaths)

	// enters holds the paths whose recorded children are still reachable.
	enters := map[string]bool{"": true}
	for _, rel := range recorded {
		if e.cancelled(ctx) {
			l.partial = true
			return l, nil
		}
		if !enters[parentOf(rel)] {
			continue
		}
		info, err := e.fs.Lstat(e.abs(p, rel))
		if err != nil {
			if !gone(err) {
				if err := opts.OnError(errors.NewRecord(errors.SeverityWarning, errors.KindStatFailed, rel, "lstat", err)); err != nil {
					return l, err
				}
			}
			continue
		}
		entry := walker.EntryFromInfo(rel, info)
		l.entries[rel] = entry
		progress(rel)
		if e.descends(p, entry) {
			enters[rel] = true
		}
	}

	unlisted := make(map[string]bool, len(prev.Unlisted))
	for _, dir := range prev.Unlisted {
		unlisted[dir] = true
	}

	var changed []string
	if !prev.RootStat.Same(rootStat(p)) {
		changed = append(changed, "")
	}
	for _, rel := range recorded {
		entry, ok := l.entries[rel]
		if !ok || entry.Kind != walker.KindDirectory {
			continue
		}
		if old := prev.Entries[rel]; unlisted[rel] || old.Kind != walker.KindDirectory || !old.Same(cache.StatOf(entry)) {
			changed = append(changed, rel)
		}
	}

	w := walker.New(e.fs, p.req.Root, p.matcher, opts)

	for _, dir := range changed {
		depth := walker.Depth(dir)
		if depth >= limit {
			continue
		}
		if e.cancelled(ctx) {
			l.partial = true
			return l, nil
		}

		children, err := e.fs.ReadDir(e.abs(p, dir))
		if err != nil {
			if err := opts.OnError(errors.NewRecord(errors.SeverityWarning, errors.KindDirUnreadable, dir, "readdir", err)); err != nil {
				return l, err
			}
			continue
		}
		slices.SortFunc(children, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })

		for _, de := range children {
			rel := joinRel(dir, de.Name())
			if _, seen := l.entries[rel]; seen {
				continue
			}
			if p.matcher.Match(rel, de.IsDir()) {
				continue
			}

			info, err := e.fs.Lstat(e.abs(p, rel))
			if err != nil {
				if err := opts.OnError(errors.NewRecord(errors.SeverityWarning, errors.KindStatFailed, rel, "lstat", err)); err != nil {
					return l, err
				}
				continue
			}
			entry := walker.EntryFromInfo(rel, info)
			l.entries[rel] = entry
			progress(rel)

			if depth+1 >= limit || !e.descends(p, entry) {
				continue
			}
			for sub := range w.WalkFrom(ctx, rel, depth+1) {
				if _, seen := l.entries[sub.Path]; seen {
					continue
				}
				l.entries[sub.Path] = sub
				progress(sub.Path)
			}
			if err := w.Err(); err != nil {
				return l, err
			}
			if w.Partial() {
				l.partial = true
				return l, nil
			}
		}
	}

	return l, nil
}

// descends reports whether entry is a directory the walk enters.
func (e *Engine) descends(p *prepared, entry walker.Entry) bool {
	switch entry.Kind {
	case walker.KindDirectory:
		return true
	case walker.KindSymlink:
		if !p.req.FollowSymlinks || p.matcher.Match(entry.Path, true) {
			return false
		}
		target, err := e.fs.Stat(e.abs(p, entry.Path))
		return err == nil && target.IsDir()
	default:
		return false
	}
}

func (e *Engine) abs(p *prepared, rel string) string {
	if rel == "" {
		return p.req.Root
	}
	return filepath.Join(p.req.Root, filepath.FromSlash(rel))
}

func rootStat(p *prepared) cache.Stat {
	return cache.Stat{
		ModTime: p.rootInfo.ModTime(),
		Size:    p.rootInfo.Size(),
		Kind:    walker.KindDirectory,
	}
}

// gone reports whether err means the path no longer exists, including a
// parent that was replaced by a file.
func gone(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR)
}

// parentOf returns the relative path of rel's directory, "" for the root.
func parentOf(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return ""
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
