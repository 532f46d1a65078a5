// Package output renders scan results, issue reports and monitor events for the CLI.
package output

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/amanscan/internal/cache"
	"github.com/Aman-CERP/amanscan/internal/discovery"
	"github.com/Aman-CERP/amanscan/internal/errors"
	"github.com/Aman-CERP/amanscan/internal/watcher"
)

// maxListedRecords caps the records printed in non-verbose reports.
const maxListedRecords = 10

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New creates a Writer without colors.
func New(out io.Writer) *Writer {
	return NewStyled(out, false)
}

// NewStyled creates a Writer, colored when color is true.
func NewStyled(out io.Writer, color bool) *Writer {
	return &Writer{out: out, styles: GetStyles(!color)}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// SummaryOptions controls what Summary prints.
type SummaryOptions struct {
	// ShowErrors prints the issue report after the totals.
	ShowErrors bool

	// Verbose lists every record instead of the first few.
	Verbose bool

	// Files lists every discovered entry before the totals.
	Files bool
}

// Summary prints the totals of a scan.
func (w *Writer) Summary(res *discovery.Result, opts SummaryOptions) {
	if opts.Files {
		for _, e := range res.Entries {
			_, _ = fmt.Fprintln(w.out, e.Path)
		}
		w.Newline()
	}

	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Scanned "+res.Root))
	w.field("Files", humanize.Comma(int64(res.TotalFiles)))
	w.field("Directories", humanize.Comma(int64(res.TotalDirectories)))
	w.field("Size", humanize.Bytes(uint64(max(res.TotalSize, 0))))
	w.field("Elapsed", res.Elapsed.Round(time.Millisecond).String())

	if res.CacheHit {
		w.field("Cache", "hit "+FormatDelta(res.Delta))
	} else {
		w.field("Cache", "miss")
	}

	if langs := FormatLanguages(res.Languages); langs != "" {
		w.field("Languages", langs)
	}

	if res.Partial {
		w.Warning("scan cancelled, results are partial and were not cached")
	}

	if opts.ShowErrors {
		w.ErrorReport(res.Errors, opts.Verbose)
	}
}

// ErrorReport prints counts per severity followed by the records.
func (w *Writer) ErrorReport(report discovery.ErrorReport, verbose bool) {
	if report.Summary.Total == 0 {
		return
	}

	var counts []string
	for _, sev := range errors.Severities() {
		if n := report.Summary.Count(sev); n > 0 {
			counts = append(counts, fmt.Sprintf("%s %d", sev, n))
		}
	}
	w.Newline()
	_, _ = fmt.Fprintf(w.out, "%s %s\n",
		w.styles.Header.Render(fmt.Sprintf("Issues: %d", report.Summary.Total)),
		w.styles.Label.Render("("+strings.Join(counts, ", ")+")"))

	records := report.Records
	if !verbose && len(records) > maxListedRecords {
		records = records[:maxListedRecords]
	}
	for _, r := range records {
		_, _ = fmt.Fprintf(w.out, "  %s\n", w.severityStyle(r.Severity).Render(errors.FormatRecord(r)))
	}
	if hidden := len(report.Records) - len(records); hidden > 0 {
		_, _ = fmt.Fprintf(w.out, "  %s\n", w.styles.Dim.Render(fmt.Sprintf("... and %d more (use --verbose)", hidden)))
	}
}

// Event prints one monitor event and the change it produced.
func (w *Writer) Event(ev watcher.Event, delta cache.Delta) {
	path := ev.Path
	if ev.Kind == watcher.EventRenamed && ev.OldPath != "" {
		path = ev.OldPath + " -> " + ev.Path
	}
	_, _ = fmt.Fprintf(w.out, "%s %-8s %s %s\n",
		w.styles.Dim.Render(ev.Timestamp.Format("15:04:05")),
		w.eventStyle(ev.Kind).Render(string(ev.Kind)),
		path,
		w.styles.Label.Render(FormatDelta(delta)))
}

// CacheInfo prints the records of a store.
func (w *Writer) CacheInfo(dir string, infos []cache.Info) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render("Cache "+dir))
	if len(infos) == 0 {
		w.Status("", "no records")
		return
	}

	var total int64
	for _, info := range infos {
		total += info.Bytes
		if info.Corrupt {
			_, _ = fmt.Fprintf(w.out, "  %s  %s\n", shortKey(info.Key), w.styles.Error.Render("corrupt"))
			continue
		}
		_, _ = fmt.Fprintf(w.out, "  %s  %s  %s entries, %s, %s\n",
			shortKey(info.Key),
			info.Root,
			humanize.Comma(int64(info.Entries)),
			humanize.Bytes(uint64(max(info.Bytes, 0))),
			humanize.Time(info.CreatedAt))
	}
	w.field("Total", fmt.Sprintf("%d records, %s", len(infos), humanize.Bytes(uint64(max(total, 0)))))
}

func (w *Writer) field(label, value string) {
	_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(fmt.Sprintf("%-12s", label)), w.styles.Value.Render(value))
}

func (w *Writer) severityStyle(sev errors.Severity) lipgloss.Style {
	switch sev {
	case errors.SeverityInfo:
		return w.styles.Dim
	case errors.SeverityWarning:
		return w.styles.Warning
	default:
		return w.styles.Error
	}
}

func (w *Writer) eventStyle(kind watcher.EventKind) lipgloss.Style {
	switch kind {
	case watcher.EventCreated:
		return w.styles.Success
	case watcher.EventDeleted:
		return w.styles.Error
	default:
		return w.styles.Warning
	}
}

// FormatDelta renders a delta as "(+added ~modified -removed)".
func FormatDelta(d cache.Delta) string {
	return fmt.Sprintf("(+%d ~%d -%d)", len(d.Added), len(d.Modified), len(d.Removed))
}

// FormatLanguages renders language counts, most frequent first.
func FormatLanguages(langs map[string]int) string {
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		if c := cmp.Compare(langs[b], langs[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s %d", name, langs[name])
	}
	return strings.Join(parts, ", ")
}

func shortKey(k cache.Key) string {
	s := string(k)
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
