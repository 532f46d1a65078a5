package errors

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Record_NonCriticalContinues(t *testing.T) {
	c := NewCollector(CollectorOptions{})

	for _, sev := range []Severity{SeverityInfo, SeverityWarning, SeverityError} {
		err := c.Record(NewRecord(sev, KindStatFailed, "a.txt", "lstat", errors.New("boom")))
		assert.NoError(t, err, sev)
	}

	assert.Equal(t, 3, c.Len())
	assert.NoError(t, c.Err())
	for _, r := range c.Records() {
		assert.True(t, r.Recovered)
		assert.False(t, r.Timestamp.IsZero())
	}
}

func TestCollector_Record_CriticalReturnsTypedError(t *testing.T) {
	// Given: a collector
	c := NewCollector(CollectorOptions{})

	// When: a critical record arrives
	err := c.Record(NewRecord(SeverityCritical, KindRootInaccessible, "/gone", "open", errors.New("no such file")))

	// Then: a typed critical error is returned and remembered
	require.Error(t, err)
	assert.True(t, IsCritical(err))
	assert.True(t, IsCritical(c.Err()))
	recs := c.Records()
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Recovered)
}

func TestCollector_Summary_GroupsBySeverityAndKind(t *testing.T) {
	c := NewCollector(CollectorOptions{})
	_ = c.Record(Record{Severity: SeverityWarning, Kind: KindDirUnreadable, Path: "a"})
	_ = c.Record(Record{Severity: SeverityWarning, Kind: KindDirUnreadable, Path: "b"})
	_ = c.Record(Record{Severity: SeverityInfo, Kind: KindSymlinkCycle, Path: "loop"})
	_ = c.Record(Record{Severity: SeverityError, Kind: KindCacheCorrupt})

	s := c.Summary()

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Count(SeverityWarning))
	assert.Equal(t, 1, s.Count(SeverityInfo))
	assert.Equal(t, 1, s.Count(SeverityError))
	assert.Equal(t, 0, s.Count(SeverityCritical))
	assert.Equal(t, 2, s.ByKind[KindDirUnreadable])
	assert.Equal(t, []Kind{KindCacheCorrupt, KindDirUnreadable, KindSymlinkCycle}, s.Kinds())
}

func TestCollector_UnknownSeverityBecomesError(t *testing.T) {
	c := NewCollector(CollectorOptions{})

	require.NoError(t, c.Record(Record{Severity: "LOUD", Kind: KindExternal}))

	assert.Equal(t, 1, c.Summary().Count(SeverityError))
}

func TestCollector_VerboseStreamsRecords(t *testing.T) {
	tests := []struct {
		name       string
		opts       CollectorOptions
		wantOutput bool
	}{
		{name: "verbose", opts: CollectorOptions{Verbose: true}, wantOutput: true},
		{name: "default withholds", opts: CollectorOptions{}, wantOutput: false},
		{name: "hidden wins over verbose", opts: CollectorOptions{Verbose: true, Hidden: true}, wantOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf
			c := NewCollector(tt.opts)

			_ = c.Record(Record{Severity: SeverityWarning, Kind: KindDirUnreadable, Path: "secret"})

			if tt.wantOutput {
				assert.Contains(t, buf.String(), "[WARNING] dir_unreadable: secret")
			} else {
				assert.Empty(t, buf.String())
			}
			// Summary is always available regardless of display mode
			assert.Equal(t, 1, c.Summary().Total)
		})
	}
}

func TestCollector_Handle(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewCollector(CollectorOptions{Now: func() time.Time { return fixed }})

	assert.True(t, c.Handle(Context{Path: "x.go", Message: "parse failed"}, SeverityWarning))
	assert.False(t, c.Handle(Context{Kind: KindInvalidRequest, Message: "bad"}, SeverityCritical))

	recs := c.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, KindExternal, recs[0].Kind)
	assert.Equal(t, fixed, recs[0].Timestamp)
	assert.Equal(t, KindInvalidRequest, recs[1].Kind)
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	c := NewCollector(CollectorOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Record(Record{Severity: SeverityWarning, Kind: KindWatchOverflow})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.Summary().ByKind[KindWatchOverflow])
}
