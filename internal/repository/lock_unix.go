//go:build unix

package repository

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusiveNonBlocking acquires an exclusive non-blocking flock on f
// (adapted from steveyegge-beads/internal/lockfile/lock_unix.go).
func flockExclusiveNonBlocking(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLockConflict
	}
	return err
}

func flockUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
