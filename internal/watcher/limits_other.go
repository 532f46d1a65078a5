//go:build !unix

package watcher

import "math"

// DescriptorLimit reports no limit where RLIMIT_NOFILE does not exist.
func DescriptorLimit() (uint64, error) {
	return math.MaxUint64, nil
}
