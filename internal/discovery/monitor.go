package discovery

import (
	"context"
	stderrors "errors"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/watcher"
)

// ChangeFunc receives each watcher event with the delta it produced.
type ChangeFunc func(watcher.Event, cache.Delta)

// Monitor watches the root of a completed scan and applies every event through
// UpdateContext until ctx is done or the watcher's duration elapses. The
// watcher uses the scan's ignore rules, and its overflow and backend failures
// are recorded with the scan's errors.
//
// It returns ErrNoScan when root has not been scanned, and nil when
// monitoring ends normally.
func (e *Engine) Monitor(ctx context.Context, root string, opts watcher.Options, onChange ChangeFunc) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return errors.New(errors.ErrCodeInvalidPath, "path cannot be resolved", err).WithPath(root)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	e.mu.Lock()
	st, ok := e.states.Get(abs)
	e.mu.Unlock()
	if !ok {
		return ErrNoScan
	}

	c := e.currentCollector()
	record := func(rec errors.Record) { _ = c.Record(rec) }
	opts.Matcher = st.p.matcher
	opts.OnDrop = record
	opts.OnError = record

	w, err := watcher.New(opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	events := make(chan watcher.Event)

	if err := w.Subscribe(gctx, abs, func(ev watcher.Event) {
		select {
		case events <- ev:
		case <-gctx.Done():
		}
	}); err != nil {
		return err
	}

	e.logger.Info("monitoring started",
		slog.String("root", abs),
		slog.String("backend", string(w.Backend())))

	g.Go(func() error {
		select {
		case <-gctx.Done():
			w.Unsubscribe()
		case <-w.Done():
		}
		<-w.Done()
		close(events)
		return nil
	})

	g.Go(func() error {
		for ev := range events {
			delta, err := e.apply(gctx, abs, ev)
			if err != nil {
				if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
					continue
				}
				return err
			}
			if onChange != nil {
				onChange(ev, delta)
			}
		}
		return nil
	})

	err = g.Wait()
	e.logger.Info("monitoring stopped",
		slog.String("root", abs),
		slog.Uint64("accepted", w.Accepted()),
		slog.Uint64("dropped", w.Dropped()))

	if err != nil && !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// apply folds one event into the record. A rename updates both ends.
func (e *Engine) apply(ctx context.Context, root string, ev watcher.Event) (cache.Delta, error) {
	delta, err := e.UpdateContext(ctx, filepath.Join(root, filepath.FromSlash(ev.Path)))
	if err != nil || ev.Kind != watcher.EventRenamed || ev.OldPath == "" {
		return delta, err
	}
	old, err := e.UpdateContext(ctx, filepath.Join(root, filepath.FromSlash(ev.OldPath)))
	if err != nil {
		return delta, err
	}
	return old.Merge(delta), nil
}
