package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"silent", ModeSilent, false},
		{"simple", ModeSimple, false},
		{"detailed", ModeDetailed, false},
		{"verbose", ModeVerbose, false},
		{"loud", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTracker_RedrawsAreThrottled(t *testing.T) {
	// Given: a detailed tracker with a 100ms redraw interval
	clock := newFakeClock()
	var buf bytes.Buffer
	tr := New(&buf, Options{Mode: ModeDetailed, Now: clock.Now})

	// When: 1000 updates arrive within one second, 1ms apart
	for i := 1; i <= 1000; i++ {
		tr.Update(i, 1000, "file")
		clock.Advance(time.Millisecond)
	}

	// Then: at most one redraw per interval, plus the initial one
	redraws := tr.Redraws()
	assert.LessOrEqual(t, redraws, 11)
	assert.GreaterOrEqual(t, redraws, 9)
	assert.Equal(t, redraws, strings.Count(buf.String(), "\n"))
}

func TestTracker_SilentWritesNothing(t *testing.T) {
	clock := newFakeClock()
	var buf bytes.Buffer
	tr := New(&buf, Options{Mode: ModeSilent, Now: clock.Now})

	for i := 1; i <= 50; i++ {
		tr.Update(i, 50, "x")
		clock.Advance(time.Second)
	}
	tr.Finish()

	assert.Empty(t, buf.String())
	assert.Equal(t, 0, tr.Redraws())
	assert.Equal(t, 50, tr.State().Scanned)
}

func TestTracker_NilOutputIsSilent(t *testing.T) {
	tr := New(nil, Options{Mode: ModeVerbose})
	assert.Equal(t, ModeSilent, tr.Mode())
	tr.Update(1, 1, "a")
	tr.Finish()
}

func TestTracker_EstimatedTotalNeverShrinks(t *testing.T) {
	clock := newFakeClock()
	tr := New(nil, Options{Mode: ModeSilent, Now: clock.Now})

	tr.Update(10, 100, "")
	tr.Update(20, 50, "")
	assert.Equal(t, 100, tr.State().EstimatedTotal)

	// Scanned past the estimate lifts it
	tr.Update(150, 120, "")
	assert.Equal(t, 150, tr.State().EstimatedTotal)
}

func TestTracker_RateAndETA(t *testing.T) {
	// Given: a steady 100 entries per second against a total of 1000
	clock := newFakeClock()
	tr := New(nil, Options{Mode: ModeSilent, Now: clock.Now})

	for i := 1; i <= 5; i++ {
		clock.Advance(time.Second)
		tr.Update(i*100, 1000, "")
	}

	// Then: the smoothed rate matches and the ETA is about 5s
	s := tr.State()
	assert.InDelta(t, 100.0, s.Rate, 0.001)
	assert.InDelta(t, 5.0, s.ETA.Seconds(), 0.5)
	assert.Equal(t, 5*time.Second, s.Elapsed)
}

func TestTracker_RateSmoothsBursts(t *testing.T) {
	clock := newFakeClock()
	tr := New(nil, Options{Mode: ModeSilent, Now: clock.Now})

	clock.Advance(time.Second)
	tr.Update(100, 10000, "")
	clock.Advance(time.Second)
	tr.Update(1100, 10000, "") // one burst of 1000/s

	// EMA: 0.2*1000 + 0.8*100
	assert.InDelta(t, 280.0, tr.State().Rate, 0.001)
}

func TestTracker_SamplesBelowIntervalAreIgnored(t *testing.T) {
	clock := newFakeClock()
	tr := New(nil, Options{Mode: ModeSilent, Now: clock.Now})

	clock.Advance(100 * time.Millisecond)
	tr.Update(10, 100, "")

	assert.Zero(t, tr.State().Rate)
	assert.Zero(t, tr.State().ETA)
}

func TestTracker_Cancel(t *testing.T) {
	tr := New(nil, Options{Mode: ModeSilent})
	assert.False(t, tr.Cancelled())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tr.Cancel()
	}()
	wg.Wait()

	assert.True(t, tr.Cancelled())
	assert.True(t, tr.State().Cancelled)

	// Given a new scan starting after the cancel
	// When the counters are reset
	tr.Reset(0)

	// Then the cancel is not lost
	assert.True(t, tr.Cancelled())

	tr.ClearCancel()
	assert.False(t, tr.Cancelled())
}

func TestTracker_ModesRender(t *testing.T) {
	tests := []struct {
		mode     Mode
		contains []string
		excludes []string
	}{
		{ModeSimple, []string{"50%", "ETA"}, []string{"Scanned"}},
		{ModeDetailed, []string{"Scanned 50/~100 entries", "elapsed", "ETA"}, []string{"src/main.go"}},
		{ModeVerbose, []string{"Scanned 50/~100 entries", "src/main.go"}, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			clock := newFakeClock()
			var buf bytes.Buffer
			tr := New(&buf, Options{Mode: tt.mode, Now: clock.Now})

			clock.Advance(time.Second)
			tr.Update(50, 100, "src/main.go")

			out := buf.String()
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, bad := range tt.excludes {
				assert.NotContains(t, out, bad)
			}
		})
	}
}

func TestTracker_InteractiveRedrawsInPlace(t *testing.T) {
	// Given: an interactive tracker
	clock := newFakeClock()
	var buf bytes.Buffer
	tr := New(&buf, Options{Mode: ModeDetailed, Interactive: true, Now: clock.Now})

	// When: several throttled redraws happen
	for i := 1; i <= 3; i++ {
		tr.Update(i, 3, "")
		clock.Advance(time.Second)
	}
	assert.NotContains(t, buf.String(), "\n")

	// Then: Finish terminates the line exactly once
	tr.Finish()
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Equal(t, 4, strings.Count(out, "\r"))
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "--"},
		{-time.Second, "--"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
		{3*time.Hour + 5*time.Minute, "3h05m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatETA(tt.in), tt.in.String())
	}
}

func TestShortenPath(t *testing.T) {
	assert.Equal(t, "short", shortenPath("short", 10))
	got := shortenPath(strings.Repeat("a", 20)+"/tail.go", 12)
	assert.Len(t, got, 12)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "tail.go"))
}

func TestState_Fraction(t *testing.T) {
	assert.Zero(t, State{}.Fraction())
	assert.InDelta(t, 0.25, State{Scanned: 1, EstimatedTotal: 4}.Fraction(), 1e-9)
	assert.Equal(t, 1.0, State{Scanned: 5, EstimatedTotal: 4}.Fraction())
}
