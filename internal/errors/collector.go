package errors

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Record is a single classified failure observed during an operation.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path,omitempty"`
	Op        string    `json:"op,omitempty"`
	Message   string    `json:"message"`
	Recovered bool      `json:"recovered"`
}

// NewRecord builds a record from a failure. The message is taken from err when present.
func NewRecord(severity Severity, kind Kind, path, op string, err error) Record {
	r := Record{
		Severity: severity,
		Kind:     kind,
		Path:     path,
		Op:       op,
	}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// Err converts the record into an *Error.
func (r Record) Err() *Error {
	e := New(codeFromKind(r.Kind), r.Message, nil)
	e.Severity = r.Severity
	e.Kind = r.Kind
	e.Path = r.Path
	if r.Op != "" {
		e.WithDetail("op", r.Op)
	}
	return e
}

// Context describes a failure reported by an external layer through Collector.Handle.
type Context struct {
	Kind    Kind   `json:"kind,omitempty"`
	Path    string `json:"path,omitempty"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// Summary aggregates records by severity and by kind.
type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByKind     map[Kind]int     `json:"by_kind"`
}

// Count returns the number of records with the given severity.
func (s Summary) Count(sev Severity) int {
	return s.BySeverity[sev]
}

// Kinds returns the recorded kinds in sorted order.
func (s Summary) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	// Verbose streams each record to Output as it is recorded.
	Verbose bool

	// Hidden suppresses all console output. Records are still kept.
	Hidden bool

	// Output receives streamed records. Nil disables streaming.
	Output io.Writer

	// Logger receives every record at debug level. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock used for timestamps.
	Now func() time.Time
}

// Collector accumulates records without interrupting the caller, except for CRITICAL ones.
// It is safe for concurrent use.
type Collector struct {
	opts CollectorOptions

	mu       sync.Mutex
	records  []Record
	critical *Error
}

// NewCollector creates a Collector.
func NewCollector(opts CollectorOptions) *Collector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{opts: opts}
}

// Record stores rec. It returns nil for INFO, WARNING and ERROR, and a CRITICAL *Error
// that the caller must propagate to abort the operation.
func (c *Collector) Record(rec Record) error {
	if rec.Severity.Rank() < 0 {
		rec.Severity = SeverityError
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.opts.Now()
	}
	rec.Recovered = rec.Severity != SeverityCritical

	c.mu.Lock()
	c.records = append(c.records, rec)
	var crit *Error
	if rec.Severity == SeverityCritical {
		crit = rec.Err()
		if c.critical == nil {
			c.critical = crit
		}
	}
	c.mu.Unlock()

	c.opts.Logger.Debug("issue recorded",
		slog.String("severity", string(rec.Severity)),
		slog.String("kind", string(rec.Kind)),
		slog.String("path", rec.Path),
		slog.String("message", rec.Message))

	if c.opts.Verbose && !c.opts.Hidden && c.opts.Output != nil {
		_, _ = fmt.Fprintln(c.opts.Output, FormatRecord(rec))
	}

	if crit != nil {
		return crit
	}
	return nil
}

// Handle records a failure reported by an external layer.
// It returns false only when the severity is CRITICAL and the caller must abort.
func (c *Collector) Handle(ctx Context, severity Severity) bool {
	kind := ctx.Kind
	if kind == "" {
		kind = KindExternal
	}
	err := c.Record(Record{
		Severity: severity,
		Kind:     kind,
		Path:     ctx.Path,
		Op:       ctx.Op,
		Message:  ctx.Message,
	})
	return err == nil
}

// Records returns a copy of all records in arrival order.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.records)
}

// Len returns the number of records.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Err returns the first CRITICAL error recorded, or nil.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.critical == nil {
		return nil
	}
	return c.critical
}

// Summary returns counts grouped by severity and kind.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summarize(c.records)
}

// Summarize counts records by severity and kind.
func Summarize(records []Record) Summary {
	s := Summary{
		Total:      len(records),
		BySeverity: make(map[Severity]int),
		ByKind:     make(map[Kind]int),
	}
	for _, r := range records {
		s.BySeverity[r.Severity]++
		s.ByKind[r.Kind]++
	}
	return s
}

// Visible reports whether the collector may write to the console.
func (c *Collector) Visible() bool {
	return !c.opts.Hidden
}

// Verbose reports whether records are streamed as they occur.
func (c *Collector) Verbose() bool {
	return c.opts.Verbose
}
