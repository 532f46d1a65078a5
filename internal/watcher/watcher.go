package watcher

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/ignore"
)

// EventKind is the type of change observed for a path.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
	EventRenamed  EventKind = "renamed"
)

// Event is a single debounced change.
type Event struct {
	// Path is slash-separated and relative to the watched root.
	Path string `json:"path"`

	// OldPath is the previous path of a rename. Empty otherwise.
	OldPath string `json:"old_path,omitempty"`

	Kind      EventKind `json:"kind"`
	IsDir     bool      `json:"is_dir"`
	Timestamp time.Time `json:"timestamp"`
}

// Backend selects the change source.
type Backend string

const (
	BackendAuto    Backend = "auto"
	BackendNative  Backend = "native"
	BackendPolling Backend = "polling"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendAuto, BackendNative, BackendPolling:
		return b, nil
	default:
		return "", fmt.Errorf("invalid watch backend %q (want auto, native or polling)", s)
	}
}

// Options configures a Watcher.
type Options struct {
	// Backend selects the change source. Default: auto
	Backend Backend

	// DebounceWindow is the quiet period before coalesced events are emitted.
	// Default: 200ms
	DebounceWindow time.Duration

	// PollInterval is the interval between walks of the polling backend.
	// Default: 1s
	PollInterval time.Duration

	// QueueSize bounds the delivery queue. Default: 1000
	QueueSize int

	// Duration stops monitoring after the given time. Zero runs until
	// the context is cancelled or Unsubscribe is called.
	Duration time.Duration

	// Matcher filters paths. Ignored paths never produce events and ignored
	// directories are never watched.
	Matcher *ignore.Matcher

	// OnDrop receives a watch_overflow warning for every event evicted from a full queue.
	OnDrop func(errors.Record)

	// OnError receives backend failures.
	OnError func(errors.Record)
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Backend:        BackendAuto,
		DebounceWindow: 200 * time.Millisecond,
		PollInterval:   time.Second,
		QueueSize:      1000,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Backend == "" {
		o.Backend = defaults.Backend
	}
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.QueueSize == 0 {
		o.QueueSize = defaults.QueueSize
	}
	return o
}

// Validate validates the options and returns an error if invalid.
func (o Options) Validate() error {
	if _, err := ParseBackend(string(o.Backend)); err != nil {
		return err
	}
	if o.DebounceWindow < 0 {
		return fmt.Errorf("debounce window must not be negative: %s", o.DebounceWindow)
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive: %s", o.PollInterval)
	}
	if o.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive: %d", o.QueueSize)
	}
	if o.Duration < 0 {
		return fmt.Errorf("duration must not be negative: %s", o.Duration)
	}
	return nil
}
