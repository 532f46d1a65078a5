package watcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanscan/internal/errors"
)

// MinDescriptors is the descriptor limit below which BackendAuto chooses polling.
const MinDescriptors = 1024

// ErrSubscribed is returned when Subscribe is called on an active or used Watcher.
var ErrSubscribed = stderrors.New("watcher already subscribed")

// Watcher delivers debounced change events for one root.
// A Watcher serves a single subscription; create a new one to watch again.
type Watcher struct {
	opts Options
	src  source

	mu         sync.Mutex
	subscribed bool
	cancel     context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once
	root       string
	deadline   time.Time

	debouncer *Debouncer
	queue     *queue
	accepted  atomic.Uint64
}

// New creates a Watcher. The backend is selected here and never changes.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, errors.ValidationError(err.Error(), nil)
	}

	src, err := selectSource(opts)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		opts: opts,
		src:  src,
		done: make(chan struct{}),
	}, nil
}

func selectSource(opts Options) (source, error) {
	switch opts.Backend {
	case BackendPolling:
		return newPollingSource(opts.PollInterval, opts.Matcher, opts.OnError), nil
	case BackendNative:
		n, err := newNativeSource(opts.Matcher, opts.OnError)
		if err != nil {
			return nil, errors.New(errors.ErrCodeWatchUnavailable, "native file watching is unavailable", err).
				WithSuggestion("Use the polling backend on this system")
		}
		return n, nil
	default:
		if limit, err := DescriptorLimit(); err == nil && limit < MinDescriptors {
			slog.Info("descriptor limit too low for native watching, using polling",
				slog.Uint64("limit", limit),
				slog.Int("minimum", MinDescriptors))
			return newPollingSource(opts.PollInterval, opts.Matcher, opts.OnError), nil
		}
		n, err := newNativeSource(opts.Matcher, opts.OnError)
		if err != nil {
			slog.Info("native watcher unavailable, using polling", slog.String("error", err.Error()))
			return newPollingSource(opts.PollInterval, opts.Matcher, opts.OnError), nil
		}
		return n, nil
	}
}

// Backend returns the backend selected at construction.
func (w *Watcher) Backend() Backend { return w.src.backend() }

// Subscribe starts monitoring root and returns immediately. onEvent is called
// from a single goroutine, in delivery order. Monitoring stops when ctx is
// cancelled, the configured duration elapses, or Unsubscribe is called.
func (w *Watcher) Subscribe(ctx context.Context, root string, onEvent func(Event)) error {
	if onEvent == nil {
		return errors.ValidationError("event callback is required", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.subscribed {
		return ErrSubscribed
	}
	w.subscribed = true

	abs, err := filepath.Abs(root)
	if err != nil {
		w.teardown()
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.root = abs

	if w.opts.Duration > 0 {
		w.deadline = time.Now().Add(w.opts.Duration)
		ctx, w.cancel = context.WithDeadline(ctx, w.deadline)
	} else {
		ctx, w.cancel = context.WithCancel(ctx)
	}

	w.queue = newQueue(w.opts.QueueSize, w.reportDrop)
	w.debouncer = NewDebouncer(w.opts.DebounceWindow, func(batch []Event) {
		for _, ev := range batch {
			w.queue.push(ev)
		}
	})

	if err := w.src.start(ctx, abs, w.accept); err != nil {
		w.cancel()
		w.teardown()
		return errors.New(errors.ErrCodeWatchUnavailable, "failed to start watching", err).WithPath(abs)
	}

	slog.Debug("watch started",
		slog.String("root", abs),
		slog.String("backend", string(w.src.backend())),
		slog.Duration("duration", w.opts.Duration))

	go w.run(ctx, onEvent)
	return nil
}

// accept filters a raw event and hands it to the debouncer.
func (w *Watcher) accept(ev Event) {
	if !w.deadline.IsZero() && !time.Now().Before(w.deadline) {
		return
	}
	if w.opts.Matcher.Match(ev.Path, ev.IsDir) {
		return
	}
	w.accepted.Add(1)
	w.debouncer.Add(ev)
}

// run delivers queued events until ctx ends, then releases every resource.
func (w *Watcher) run(ctx context.Context, onEvent func(Event)) {
	defer w.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.queue.ready:
			for _, ev := range w.queue.drain() {
				if ctx.Err() != nil {
					return
				}
				onEvent(ev)
			}
		}
	}
}

// teardown releases the source, timers and queue, then closes Done.
func (w *Watcher) teardown() {
	w.stopOnce.Do(func() {
		if err := w.src.close(); err != nil {
			slog.Debug("closing watch source failed", slog.String("error", err.Error()))
		}
		if w.debouncer != nil {
			w.debouncer.Stop()
		}
		if w.queue != nil {
			w.queue.close()
		}
		close(w.done)
		slog.Debug("watch stopped", slog.String("root", w.root))
	})
}

func (w *Watcher) reportDrop(ev Event) {
	slog.Warn("watch queue full, dropping oldest event",
		slog.String("path", ev.Path),
		slog.String("kind", string(ev.Kind)))
	if w.opts.OnDrop == nil {
		return
	}
	rec := errors.NewRecord(errors.SeverityWarning, errors.KindWatchOverflow, ev.Path, string(ev.Kind), nil)
	rec.Timestamp = time.Now()
	rec.Message = "event queue full, oldest event dropped"
	rec.Recovered = true
	w.opts.OnDrop(rec)
}

// Done is closed once monitoring has stopped and resources are released.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Unsubscribe stops monitoring and waits for teardown.
// Safe to call multiple times, and before Subscribe.
func (w *Watcher) Unsubscribe() {
	w.mu.Lock()
	cancel := w.cancel
	subscribed := w.subscribed
	w.subscribed = true
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !subscribed || cancel == nil {
		w.teardown()
	}
	<-w.done
}

// Dropped returns how many events were evicted from a full queue.
func (w *Watcher) Dropped() uint64 {
	w.mu.Lock()
	q := w.queue
	w.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

// Accepted returns how many raw events passed filtering.
func (w *Watcher) Accepted() uint64 { return w.accepted.Load() }
