package watcher

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path. Events for the same path within
// the window are merged according to these rules:
//   - created + modified = created (the path is still new)
//   - created + deleted = nothing (the path never really existed)
//   - modified + deleted = deleted
//   - deleted + created = modified (the path was replaced)
//
// Once the window passes without new events, the pending batch is handed to
// the emit function sorted by path.
type Debouncer struct {
	window  time.Duration
	emit    func([]Event)
	pending map[string]*pendingEvent
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp EventKind
}

// NewDebouncer creates a debouncer that passes each batch to emit.
func NewDebouncer(window time.Duration, emit func([]Event)) *Debouncer {
	return &Debouncer{
		window:  window,
		emit:    emit,
		pending: make(map[string]*pendingEvent),
	}
}

// Add queues an event, coalescing it with any pending event for the same path.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		coalesced, keep := coalesce(existing, event)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			existing.event = coalesced
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Kind}
	}

	d.scheduleFlush()
}

// coalesce merges a new event into a pending one. keep is false when the
// two cancel out.
func coalesce(existing *pendingEvent, next Event) (merged Event, keep bool) {
	switch existing.firstOp {
	case EventCreated:
		switch next.Kind {
		case EventModified:
			return existing.event, true
		case EventDeleted:
			return Event{}, false
		}
	case EventDeleted:
		if next.Kind == EventCreated {
			next.Kind = EventModified
			return next, true
		}
	}
	return next, true
}

func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.Flush)
}

// Flush emits every pending event immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	events := make([]Event, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)
	d.mu.Unlock()

	slices.SortFunc(events, func(a, b Event) int { return strings.Compare(a.Path, b.Path) })
	d.emit(events)
}

// Pending returns the number of paths waiting for the window to pass.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop discards pending events and cancels the timer.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
}
