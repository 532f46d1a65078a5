//go:build !unix

package walker

import (
	"io/fs"
	"path/filepath"
)

func identityOf(_ fs.FileInfo, abs string) identity {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return identity{path: resolved}
	}
	return identity{path: abs}
}
