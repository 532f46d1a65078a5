package preflight

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/amanscan/internal/watcher"
)

// MinInotifyWatches is the kernel watch limit below which large trees may
// exhaust native watching. One watch is needed per directory.
const MinInotifyWatches = 8192

// CheckFileDescriptors checks if the descriptor limit allows native watching.
// Below the limit the auto backend falls back to polling.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name: "file_descriptors",
	}

	limit, err := watcher.DescriptorLimit()
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	if limit < watcher.MinDescriptors {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s (minimum: %d), monitoring will poll", humanize.Comma(int64(limit)), watcher.MinDescriptors)
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (minimum: %d)", formatLimit(limit), watcher.MinDescriptors)
	return result
}

// CheckInotifyWatches checks the Linux per-user watch limit. It passes where
// the limit does not exist.
func (c *Checker) CheckInotifyWatches() CheckResult {
	result := CheckResult{
		Name: "inotify_watches",
	}

	raw, err := c.readProc("sys/fs/inotify/max_user_watches")
	if err != nil {
		result.Status = StatusPass
		result.Message = "not applicable"
		return result
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreadable limit %q", raw)
		return result
	}

	if n < MinInotifyWatches {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s (minimum: %s)", humanize.Comma(n), humanize.Comma(MinInotifyWatches))
		result.Details = "Raise fs.inotify.max_user_watches with sysctl"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (minimum: %s)", humanize.Comma(n), humanize.Comma(MinInotifyWatches))
	return result
}

// formatLimit prints unlimited descriptor limits by name.
func formatLimit(limit uint64) string {
	if limit > 1<<62 {
		return "unlimited"
	}
	return humanize.Comma(int64(limit))
}
