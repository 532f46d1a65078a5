// Package progress reports traversal progress and carries the cancellation flag.
//
// A Tracker is a synchronous observer: the walker calls Update at each entry
// and the tracker redraws at most once per redraw interval. Throughput is
// smoothed with an exponential moving average and the ETA is extrapolated
// against an estimated total that only ever grows.
package progress

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/time/rate"
)

// Mode selects how much progress output is produced.
type Mode string

const (
	ModeSilent   Mode = "silent"
	ModeSimple   Mode = "simple"
	ModeDetailed Mode = "detailed"
	ModeVerbose  Mode = "verbose"
)

// Modes lists the valid modes.
func Modes() []Mode {
	return []Mode{ModeSilent, ModeSimple, ModeDetailed, ModeVerbose}
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid progress mode %q (want silent, simple, detailed or verbose)", s)
}

const (
	// DefaultRedrawInterval is the minimum time between redraws.
	DefaultRedrawInterval = 100 * time.Millisecond

	// DefaultSampleInterval is the minimum time between throughput samples.
	DefaultSampleInterval = 250 * time.Millisecond

	// rateSmoothing weights a new throughput sample in the moving average.
	rateSmoothing = 0.2

	// etaSmoothing weights a new ETA against the previous one.
	etaSmoothing = 0.3

	barWidth       = 30
	maxPathDisplay = 60
)

// Options configures a Tracker.
type Options struct {
	Mode Mode

	// RedrawInterval throttles output. Zero uses DefaultRedrawInterval.
	RedrawInterval time.Duration

	// SampleInterval controls throughput sampling. Zero uses DefaultSampleInterval.
	SampleInterval time.Duration

	// Interactive redraws a single line with carriage returns. When false,
	// each redraw is written on its own line. Use IsTTY to decide.
	Interactive bool

	// Now overrides the clock.
	Now func() time.Time
}

// State is a snapshot of progress.
type State struct {
	Scanned        int           `json:"scanned"`
	EstimatedTotal int           `json:"estimated_total"`
	Start          time.Time     `json:"start"`
	Elapsed        time.Duration `json:"elapsed"`
	Current        string        `json:"current"`
	Cancelled      bool          `json:"cancelled"`
	Rate           float64       `json:"rate"`
	ETA            time.Duration `json:"eta"`
}

// Fraction returns scanned/estimated in [0, 1].
func (s State) Fraction() float64 {
	if s.EstimatedTotal <= 0 {
		return 0
	}
	f := float64(s.Scanned) / float64(s.EstimatedTotal)
	if f > 1 {
		return 1
	}
	return f
}

// Tracker tracks progress for one scan. It is safe for concurrent use; the
// cancellation flag in particular may be set from a signal handler goroutine.
type Tracker struct {
	out     io.Writer
	opts    Options
	limiter *rate.Limiter
	bar     progress.Model

	cancelled atomic.Bool

	mu        sync.Mutex
	start     time.Time
	scanned   int
	total     int
	current   string
	rate      float64
	samples   int
	lastAt    time.Time
	lastCount int
	lastETA   time.Duration
	lineOpen  bool
	redraws   int
}

// New creates a Tracker writing to w. A nil writer forces silent mode.
// The clock starts immediately.
func New(w io.Writer, opts Options) *Tracker {
	if opts.Mode == "" {
		opts.Mode = ModeSimple
	}
	if w == nil {
		opts.Mode = ModeSilent
	}
	if opts.RedrawInterval <= 0 {
		opts.RedrawInterval = DefaultRedrawInterval
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	now := opts.Now()
	return &Tracker{
		out:     w,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.RedrawInterval), 1),
		bar: progress.New(
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
			progress.WithFillCharacters('█', '░'),
			progress.WithSolidFill("154"),
		),
		start:  now,
		lastAt: now,
	}
}

// Mode returns the output mode.
func (t *Tracker) Mode() Mode { return t.opts.Mode }

// Cancel sets the cancellation flag. The walker stops at the next entry boundary.
// The flag stays set until ClearCancel.
func (t *Tracker) Cancel() { t.cancelled.Store(true) }

// ClearCancel clears the cancellation flag.
func (t *Tracker) ClearCancel() { t.cancelled.Store(false) }

// Cancelled reports whether Cancel was called.
func (t *Tracker) Cancelled() bool { return t.cancelled.Load() }

// Reset restarts the clock and counters for a new scan. The mode and the
// cancellation flag are kept.
func (t *Tracker) Reset(estimatedTotal int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.opts.Now()
	t.start = now
	t.lastAt = now
	t.scanned = 0
	t.total = estimatedTotal
	t.current = ""
	t.rate = 0
	t.samples = 0
	t.lastCount = 0
	t.lastETA = 0
}

// Update records progress and redraws if the throttle allows.
func (t *Tracker) Update(scanned, estimatedTotal int, current string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.opts.Now()

	t.scanned = scanned
	if estimatedTotal > t.total {
		t.total = estimatedTotal
	}
	if t.scanned > t.total {
		t.total = t.scanned
	}
	if current != "" {
		t.current = current
	}

	if elapsed := now.Sub(t.lastAt); elapsed >= t.opts.SampleInterval {
		delta := scanned - t.lastCount
		if delta > 0 {
			sample := float64(delta) / elapsed.Seconds()
			t.samples++
			if t.samples == 1 {
				t.rate = sample
			} else {
				t.rate = rateSmoothing*sample + (1-rateSmoothing)*t.rate
			}
		}
		t.lastAt = now
		t.lastCount = scanned
	}

	if t.opts.Mode == ModeSilent {
		return
	}
	if !t.limiter.AllowN(now, 1) {
		return
	}
	t.draw(now)
}

// State returns a snapshot.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot(t.opts.Now())
}

// Redraws returns how many times output was drawn.
func (t *Tracker) Redraws() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.redraws
}

// Finish draws the final state and terminates the progress line.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.opts.Mode == ModeSilent {
		return
	}
	t.draw(t.opts.Now())
	if t.lineOpen {
		_, _ = fmt.Fprintln(t.out)
		t.lineOpen = false
	}
}

// snapshot must be called with the lock held.
func (t *Tracker) snapshot(now time.Time) State {
	return State{
		Scanned:        t.scanned,
		EstimatedTotal: t.total,
		Start:          t.start,
		Elapsed:        now.Sub(t.start),
		Current:        t.current,
		Cancelled:      t.cancelled.Load(),
		Rate:           t.rate,
		ETA:            t.eta(),
	}
}

// eta extrapolates the remaining entries at the smoothed rate. Must be called
// with the lock held.
func (t *Tracker) eta() time.Duration {
	if t.rate <= 0 || t.total <= t.scanned {
		return 0
	}

	raw := time.Duration(float64(t.total-t.scanned) / t.rate * float64(time.Second))
	if t.lastETA == 0 {
		t.lastETA = raw
		return raw
	}

	smoothed := time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(t.lastETA))
	t.lastETA = smoothed
	return smoothed
}

// draw writes one progress line. Must be called with the lock held.
func (t *Tracker) draw(now time.Time) {
	line := t.render(t.snapshot(now))
	if t.opts.Interactive {
		_, _ = fmt.Fprintf(t.out, "\r%s\x1b[K", line)
		t.lineOpen = true
	} else {
		_, _ = fmt.Fprintln(t.out, line)
	}
	t.redraws++
}

func (t *Tracker) render(s State) string {
	switch t.opts.Mode {
	case ModeSimple:
		return fmt.Sprintf("%s %3.0f%% ETA %s", t.bar.ViewAs(s.Fraction()), s.Fraction()*100, FormatETA(s.ETA))
	case ModeDetailed:
		return detailedLine(s)
	case ModeVerbose:
		return detailedLine(s) + " | " + shortenPath(s.Current, maxPathDisplay)
	default:
		return ""
	}
}

func detailedLine(s State) string {
	return fmt.Sprintf("Scanned %d/~%d entries | %.1f/s | %s elapsed | ETA %s",
		s.Scanned, s.EstimatedTotal, s.Rate, s.Elapsed.Round(100*time.Millisecond), FormatETA(s.ETA))
}

// FormatETA renders a remaining duration compactly.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	secs := int(d.Round(time.Second).Seconds())
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh%02dm", secs/3600, (secs%3600)/60)
	}
}

// shortenPath keeps the tail of long paths.
func shortenPath(p string, limit int) string {
	if len(p) <= limit {
		return p
	}
	return "..." + p[len(p)-(limit-3):]
}
