package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	scanerrors "github.com/Aman-CERP/amanscan/internal/errors"
)

func TestFormatScan(t *testing.T) {
	out := &ScanOutput{
		Root:             "/src/demo",
		Project:          ProjectInfo{Name: "demo", Type: "go"},
		TotalFiles:       3,
		TotalDirectories: 1,
		TotalSize:        2048,
		CacheHit:         true,
		Delta:            DeltaOutput{Added: []string{"c.go"}, Modified: []string{}, Removed: []string{}},
		Errors: scanerrors.Summary{
			Total:      1,
			BySeverity: map[scanerrors.Severity]int{scanerrors.SeverityWarning: 1},
		},
		Paths:     []string{"a.go", "b.go"},
		Truncated: true,
	}

	md := FormatScan(out)

	assert.Contains(t, md, "## Scan of /src/demo")
	assert.Contains(t, md, "**Project:** demo (go)")
	assert.Contains(t, md, "**Size:** 2.0 kB")
	assert.Contains(t, md, "hit, 1 added, 0 modified, 0 removed")
	assert.Contains(t, md, "**Issues:** WARNING 1")
	assert.Contains(t, md, "- `a.go`\n- `b.go`\n")
	assert.Contains(t, md, "_Showing 2 of 3 files._")
}

func TestFormatScan_PartialMiss(t *testing.T) {
	md := FormatScan(&ScanOutput{Root: "/r", Partial: true})

	assert.Contains(t, md, "**Cache:** miss")
	assert.Contains(t, md, "partial")
	assert.NotContains(t, md, "### Files")
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "No changes for `/r/a.go`.", FormatDelta("/r/a.go", DeltaOutput{}))

	md := FormatDelta("/r/lib", DeltaOutput{Removed: []string{"lib", "lib/x.go"}})
	assert.Contains(t, md, "**Removed:**\n- `lib`\n- `lib/x.go`\n")
	assert.NotContains(t, md, "Added")
}

func TestFormatErrorSummary(t *testing.T) {
	assert.Equal(t, "No issues recorded.", FormatErrorSummary(&ErrorSummaryOutput{}))

	md := FormatErrorSummary(&ErrorSummaryOutput{
		Summary: scanerrors.Summary{Total: 1, BySeverity: map[scanerrors.Severity]int{scanerrors.SeverityError: 1}},
		Records: []RecordOutput{{Severity: "ERROR", Kind: "cache_write", Path: "/r", Message: "disk full"}},
	})
	assert.Contains(t, md, "## Issues (1)")
	assert.Contains(t, md, "- **ERROR** `cache_write` /r: disk full")
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit, want int
	}{
		{0, 200},
		{-5, 200},
		{50, 50},
		{20000, 10000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.limit, defaultPathLimit, 1, maxPathLimit))
	}
}
