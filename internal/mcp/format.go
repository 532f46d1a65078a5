package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
)

// FormatScan renders a scan result as markdown.
func FormatScan(out *ScanOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Scan of %s\n\n", out.Root)
	fmt.Fprintf(&sb, "**Project:** %s (%s)\n", out.Project.Name, out.Project.Type)
	fmt.Fprintf(&sb, "**Files:** %s | **Directories:** %s | **Size:** %s\n",
		humanize.Comma(int64(out.TotalFiles)),
		humanize.Comma(int64(out.TotalDirectories)),
		humanize.Bytes(uint64(max(out.TotalSize, 0))))

	if out.CacheHit {
		fmt.Fprintf(&sb, "**Cache:** hit, %d added, %d modified, %d removed\n",
			len(out.Delta.Added), len(out.Delta.Modified), len(out.Delta.Removed))
	} else {
		sb.WriteString("**Cache:** miss\n")
	}
	if out.Partial {
		sb.WriteString("\n> Scan was cancelled. Results are partial and were not cached.\n")
	}
	if out.Errors.Total > 0 {
		fmt.Fprintf(&sb, "**Issues:** %s\n", severityCounts(out.Errors))
	}

	if len(out.Paths) > 0 {
		sb.WriteString("\n### Files\n\n")
		for _, p := range out.Paths {
			fmt.Fprintf(&sb, "- `%s`\n", p)
		}
		if out.Truncated {
			fmt.Fprintf(&sb, "\n_Showing %d of %d files._\n", len(out.Paths), out.TotalFiles)
		}
	}
	return sb.String()
}

// FormatDelta renders the outcome of an update as markdown.
func FormatDelta(path string, d DeltaOutput) string {
	if len(d.Added)+len(d.Modified)+len(d.Removed) == 0 {
		return fmt.Sprintf("No changes for `%s`.", path)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Changes for `%s`\n\n", path)
	for _, section := range []struct {
		title string
		paths []string
	}{
		{"Added", d.Added},
		{"Modified", d.Modified},
		{"Removed", d.Removed},
	} {
		if len(section.paths) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "**%s:**\n", section.title)
		for _, p := range section.paths {
			fmt.Fprintf(&sb, "- `%s`\n", p)
		}
	}
	return sb.String()
}

// FormatErrorSummary renders recorded issues as markdown.
func FormatErrorSummary(out *ErrorSummaryOutput) string {
	if out.Summary.Total == 0 {
		return "No issues recorded."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Issues (%d)\n\n", out.Summary.Total)
	fmt.Fprintf(&sb, "%s\n\n", severityCounts(out.Summary))
	for _, r := range out.Records {
		fmt.Fprintf(&sb, "- **%s** `%s`", r.Severity, r.Kind)
		if r.Path != "" {
			fmt.Fprintf(&sb, " %s", r.Path)
		}
		if r.Message != "" {
			fmt.Fprintf(&sb, ": %s", r.Message)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func severityCounts(s scanerrors.Summary) string {
	var parts []string
	for _, sev := range scanerrors.Severities() {
		if n := s.Count(sev); n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", sev, n))
		}
	}
	return strings.Join(parts, ", ")
}

// clampLimit returns defaultVal for non-positive limits, otherwise limit bounded to [min, max].
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
