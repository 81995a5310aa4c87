package repository

import (
	"fmt"
	"os"
	"path/filepath"
)

const lockFileName = "lock"

// repoLock is the repository-level advisory lock of spec §4.5 and §5:
// "an exclusive, process-level advisory lock ... acquired via lock."
// Adapted from steveyegge-beads' internal/lockfile, narrowed to a single
// exclusive lock with no daemon PID bookkeeping (the core has no daemon).
type repoLock struct {
	path string
	file *os.File
}

func newRepoLock(dir string) *repoLock {
	return &repoLock{path: filepath.Join(dir, lockFileName)}
}

// Lock acquires the exclusive advisory lock, non-blocking. A conflicting
// acquisition returns ErrLockConflict (spec §4.5, "a conflicting
// acquisition fails with a distinct lock-conflict error").
func (l *repoLock) Lock() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("repository: open lock file: %w", err)
	}

	if err := flockExclusiveNonBlocking(f); err != nil {
		_ = f.Close()
		return ErrLockConflict
	}

	l.file = f
	return nil
}

// Unlock releases the lock. It is a no-op if the lock is not held.
func (l *repoLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	if err := flockUnlock(l.file); err != nil {
		_ = l.file.Close()
		l.file = nil
		return fmt.Errorf("repository: unlock: %w", err)
	}

	err := l.file.Close()
	l.file = nil
	return err
}

// Held reports whether this process currently holds the lock.
func (l *repoLock) Held() bool {
	return l.file != nil
}
