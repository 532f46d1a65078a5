package watcher

import (
	"sync"
	"sync/atomic"
)

// queue is a bounded FIFO that evicts its oldest event instead of blocking.
type queue struct {
	mu      sync.Mutex
	buf     []Event
	head    int
	size    int
	closed  bool
	ready   chan struct{}
	dropped atomic.Uint64
	onDrop  func(Event)
}

func newQueue(capacity int, onDrop func(Event)) *queue {
	return &queue{
		buf:    make([]Event, capacity),
		ready:  make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

// push appends ev, evicting the oldest event when full. It never blocks.
func (q *queue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	var (
		evicted Event
		didDrop bool
	)
	if q.size == len(q.buf) {
		evicted = q.buf[q.head]
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		didDrop = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = ev
	q.size++
	q.mu.Unlock()

	if didDrop {
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(evicted)
		}
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// drain removes and returns every queued event in arrival order.
func (q *queue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}
	out := make([]Event, q.size)
	for i := range out {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
		q.buf[(q.head+i)%len(q.buf)] = Event{}
	}
	q.head = 0
	q.size = 0
	return out
}

// len returns the number of queued events.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// close discards queued events and rejects further pushes.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.buf = nil
	q.size = 0
	q.head = 0
}
