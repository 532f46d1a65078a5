package cache

import (
	"time"

	"github.com/Aman-CERP/amanscan/internal/walker"
)

// SchemaVersion is bumped whenever the record layout changes.
const SchemaVersion = 2

// Stat is the recorded metadata of one path.
type Stat struct {
	ModTime time.Time   `json:"mtime"`
	Size    int64       `json:"size"`
	Kind    walker.Kind `json:"kind"`
}

// Same reports whether two stats are equal for change detection.
// Both modification time and size must match.
func (s Stat) Same(o Stat) bool {
	return s.ModTime.Equal(o.ModTime) && s.Size == o.Size
}

// StatOf returns the Stat of an entry.
func StatOf(e walker.Entry) Stat {
	return Stat{ModTime: e.ModTime, Size: e.Size, Kind: e.Kind}
}

// Record is a persisted listing.
type Record struct {
	Version   int             `json:"version"`
	Key       Key             `json:"key"`
	Params    Params          `json:"params"`
	Entries   map[string]Stat `json:"entries"`
	CreatedAt time.Time       `json:"created_at"`

	// RootStat is the root directory's own metadata. A changed root means
	// entries were added or removed directly below it.
	RootStat Stat `json:"root_stat"`

	// Unlisted holds recorded directories whose contents could not be read.
	// They are listed again on every refresh whatever their metadata says.
	Unlisted []string `json:"unlisted,omitempty"`
}

// NewRecord builds a record from a listing.
func NewRecord(params Params, entries map[string]Stat, now time.Time) *Record {
	n := params.Normalized()
	if entries == nil {
		entries = make(map[string]Stat)
	}
	return &Record{
		Version:   SchemaVersion,
		Key:       KeyFor(n),
		Params:    n,
		Entries:   entries,
		CreatedAt: now,
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Params.Patterns = append([]string(nil), r.Params.Patterns...)
	c.Unlisted = append([]string(nil), r.Unlisted...)
	c.Entries = make(map[string]Stat, len(r.Entries))
	for k, v := range r.Entries {
		c.Entries[k] = v
	}
	return &c
}

// Directories returns the recorded directory paths.
func (r *Record) Directories() []string {
	var dirs []string
	for p, s := range r.Entries {
		if s.Kind == walker.KindDirectory {
			dirs = append(dirs, p)
		}
	}
	return dirs
}
