//go:build unix

package watcher

import "syscall"

// DescriptorLimit returns the soft RLIMIT_NOFILE of the process.
func DescriptorLimit() (uint64, error) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}
	return uint64(rLimit.Cur), nil
}
