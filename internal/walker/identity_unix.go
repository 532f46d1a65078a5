//go:build unix

package walker

import (
	"io/fs"
	"syscall"
)

func identityOf(info fs.FileInfo, abs string) identity {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return identity{dev: uint64(st.Dev), ino: uint64(st.Ino)}
	}
	return identity{path: abs}
}
