package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DirLock is a cross-process lock on the spool directory. The HTTP server,
// the inbox watcher, and the ingest CLI can all mutate the same data
// directory; the lock serializes spool writes and removals between them.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the given spool directory. The lock file
// lives at <dir>/.ingest.lock.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".ingest.lock")
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock acquires the lock, blocking until it is available. The spool
// directory and lock file are created if missing.
func (l *DirLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire spool lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking. It returns false
// when another process holds it.
func (l *DirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create spool directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire spool lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Calling it on an unlocked DirLock is a no-op.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return fmt.Errorf("failed to release spool lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}
