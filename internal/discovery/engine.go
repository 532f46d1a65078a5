// Package discovery orchestrates scans: it derives the cache key of a request,
// chooses between a full walk and an incremental refresh of a cached record,
// and applies single-path updates reported by the watcher or by callers.
package discovery

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/ignore"
	"github.com/Aman-CERP/amanscan/internal/progress"
	"github.com/Aman-CERP/amanscan/internal/walker"
)

const (
	// defaultStateCacheSize bounds how many scanned roots stay available to UpdateContext.
	defaultStateCacheSize = 16

	// matcherCacheSize bounds compiled matchers reused across scans.
	matcherCacheSize = 64
)

// ErrNoScan is returned when a path is not under any completed scan.
var ErrNoScan = stderrors.New("no completed scan covers the path")

// Options configures an Engine.
type Options struct {
	// Store persists records. Nil disables persistence; scans still refresh
	// in memory for UpdateContext.
	Store *cache.Store

	// FS is the filesystem to scan. Defaults to walker.OSFS.
	FS walker.FS

	// Progress observes traversals and carries the cancellation flag.
	// Defaults to a silent tracker.
	Progress *progress.Tracker

	// Errors configures the collector created for each scan.
	Errors errors.CollectorOptions

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock.
	Now func() time.Time

	// StateCacheSize bounds the number of roots kept for UpdateContext.
	StateCacheSize int
}

// Engine runs scans. It is safe for concurrent use; scans and updates are serialized.
type Engine struct {
	store   *cache.Store
	fs      walker.FS
	tracker *progress.Tracker
	errOpts errors.CollectorOptions
	logger  *slog.Logger
	now     func() time.Time

	matchers *lru.Cache[string, *ignore.Matcher]
	states   *lru.Cache[string, *scanState]

	mu sync.Mutex

	cmu       sync.RWMutex
	collector *errors.Collector
}

// scanState is the in-memory record of a completed scan.
type scanState struct {
	p       *prepared
	record  *cache.Record
	persist bool
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.FS == nil {
		opts.FS = walker.OSFS{}
	}
	if opts.Progress == nil {
		opts.Progress = progress.New(nil, progress.Options{Mode: progress.ModeSilent})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StateCacheSize <= 0 {
		opts.StateCacheSize = defaultStateCacheSize
	}

	matchers, err := lru.New[string, *ignore.Matcher](matcherCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create matcher cache: %w", err)
	}
	states, err := lru.New[string, *scanState](opts.StateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan state cache: %w", err)
	}

	return &Engine{
		store:    opts.Store,
		fs:       opts.FS,
		tracker:  opts.Progress,
		errOpts:  opts.Errors,
		logger:   opts.Logger,
		now:      opts.Now,
		matchers: matchers,
		states:   states,
	}, nil
}

// Store returns the record store, or nil.
func (e *Engine) Store() *cache.Store { return e.store }

// Tracker returns the progress tracker.
func (e *Engine) Tracker() *progress.Tracker { return e.tracker }

// Cancel asks the running scan to stop at the next entry boundary. A cancel
// issued before a scan starts walking still applies to it, and to every later
// scan until ClearCancel.
func (e *Engine) Cancel() { e.tracker.Cancel() }

// ClearCancel re-arms the engine after Cancel.
func (e *Engine) ClearCancel() { e.tracker.ClearCancel() }

// HandleError records a failure reported by an external layer with the same
// classification as scan failures. It returns false for CRITICAL.
func (e *Engine) HandleError(ctx errors.Context, severity errors.Severity) bool {
	return e.currentCollector().Handle(ctx, severity)
}

// ErrorSummary summarizes the records of the latest scan and the updates since.
func (e *Engine) ErrorSummary() errors.Summary {
	return e.currentCollector().Summary()
}

// ErrorRecords returns the records summarized by ErrorSummary.
func (e *Engine) ErrorRecords() []errors.Record {
	return e.currentCollector().Records()
}

// Invalidate drops the cached record of req from memory and from the store.
func (e *Engine) Invalidate(req Request) (cache.Key, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.prepare(req, errors.NewCollector(errors.CollectorOptions{Logger: e.logger}))
	if err != nil {
		return "", err
	}
	e.states.Remove(p.req.Root)
	if e.store == nil {
		return p.key, nil
	}
	if err := e.store.Invalidate(p.key); err != nil {
		return p.key, errors.New(errors.ErrCodeCacheWrite, "failed to invalidate cache record", err).WithPath(p.req.Root)
	}
	return p.key, nil
}

func (e *Engine) currentCollector() *errors.Collector {
	e.cmu.RLock()
	c := e.collector
	e.cmu.RUnlock()
	if c != nil {
		return c
	}

	e.cmu.Lock()
	defer e.cmu.Unlock()
	if e.collector == nil {
		e.collector = errors.NewCollector(e.errOpts)
	}
	return e.collector
}

func (e *Engine) setCollector(c *errors.Collector) {
	e.cmu.Lock()
	e.collector = c
	e.cmu.Unlock()
}

// matcherFor compiles patterns once per distinct pattern set.
func (e *Engine) matcherFor(patterns []string, includeDefaults bool) (*ignore.Matcher, error) {
	key := strconv.FormatBool(includeDefaults) + "\x00" + strings.Join(patterns, "\x00")
	if m, ok := e.matchers.Get(key); ok {
		return m, nil
	}
	m, err := ignore.Compile(patterns, includeDefaults)
	if err != nil {
		return nil, err
	}
	e.matchers.Add(key, m)
	return m, nil
}

// stateFor returns the completed scan whose root contains abs, preferring the
// deepest root, and the slash-separated path of abs relative to it.
func (e *Engine) stateFor(abs string) (*scanState, string) {
	var (
		best    *scanState
		bestRel string
	)
	for _, root := range e.states.Keys() {
		st, ok := e.states.Peek(root)
		if !ok {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(root) > len(best.p.req.Root) {
			best = st
			bestRel = filepath.ToSlash(rel)
		}
	}
	if best == nil {
		return nil, ""
	}
	if bestRel == "." {
		bestRel = ""
	}
	e.states.Get(best.p.req.Root)
	return best, bestRel
}

func (e *Engine) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || e.tracker.Cancelled()
}
