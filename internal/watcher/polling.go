package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/ignore"
	"github.com/Aman-CERP/amanscan/internal/walker"
)

// pollingSource detects changes by walking the tree periodically and diffing
// each snapshot against the previous one. Used where fsnotify is unavailable
// or too expensive (network mounts, low descriptor limits).
type pollingSource struct {
	interval time.Duration
	matcher  *ignore.Matcher
	onError  func(errors.Record)
	fsys     walker.FS
	snapshot map[string]cache.Stat
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	once     sync.Once
}

func newPollingSource(interval time.Duration, matcher *ignore.Matcher, onError func(errors.Record)) *pollingSource {
	return &pollingSource{
		interval: interval,
		matcher:  matcher,
		onError:  onError,
		fsys:     walker.OSFS{},
	}
}

func (p *pollingSource) backend() Backend { return BackendPolling }

func (p *pollingSource) start(ctx context.Context, root string, emit func(Event)) error {
	w := walker.New(p.fsys, root, p.matcher, walker.Options{
		Recursive: true,
		MaxDepth:  walker.Unlimited,
	})

	snap, err := p.scan(ctx, w)
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.snapshot = snap

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx, w, emit)
	return nil
}

func (p *pollingSource) loop(ctx context.Context, w *walker.Walker, emit func(Event)) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.detectChanges(ctx, w, emit); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("polling watcher scan failed", slog.String("error", err.Error()))
				if p.onError != nil {
					rec := errors.NewRecord(errors.SeverityError, errors.KindWatchFailure, w.Root(), "poll", err)
					rec.Timestamp = time.Now()
					rec.Recovered = true
					p.onError(rec)
				}
			}
		}
	}
}

// detectChanges compares a fresh snapshot with the previous one and emits
// one event per changed path.
func (p *pollingSource) detectChanges(ctx context.Context, w *walker.Walker, emit func(Event)) error {
	current, err := p.scan(ctx, w)
	if err != nil {
		return err
	}
	if w.Partial() {
		return nil
	}

	delta := cache.Diff(p.snapshot, current)
	now := time.Now()
	for _, path := range delta.Added {
		emit(Event{Path: path, Kind: EventCreated, IsDir: current[path].Kind == walker.KindDirectory, Timestamp: now})
	}
	for _, path := range delta.Modified {
		emit(Event{Path: path, Kind: EventModified, IsDir: current[path].Kind == walker.KindDirectory, Timestamp: now})
	}
	for _, path := range delta.Removed {
		emit(Event{Path: path, Kind: EventDeleted, IsDir: p.snapshot[path].Kind == walker.KindDirectory, Timestamp: now})
	}

	p.snapshot = current
	return nil
}

func (p *pollingSource) scan(ctx context.Context, w *walker.Walker) (map[string]cache.Stat, error) {
	snap := make(map[string]cache.Stat)
	for e := range w.Walk(ctx) {
		snap[e.Path] = cache.StatOf(e)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *pollingSource) close() error {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
	})
	return nil
}
