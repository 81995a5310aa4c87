//go:build !unix && !windows

package repository

import (
	"os"
)

// flockExclusiveNonBlocking falls back to a directory-creation lock on
// platforms without flock-style kernel locking (Design Notes §9: "the core
// must not require kernel-level mandatory locking"). The lock file's
// sibling ".held" directory is created atomically with Mkdir, which is
// itself exclusive across processes sharing the same filesystem.
func flockExclusiveNonBlocking(f *os.File) error {
	heldDir := f.Name() + ".held"
	if err := os.Mkdir(heldDir, 0o755); err != nil {
		if os.IsExist(err) {
			return ErrLockConflict
		}
		return err
	}
	return nil
}

func flockUnlock(f *os.File) error {
	return os.Remove(f.Name() + ".held")
}
