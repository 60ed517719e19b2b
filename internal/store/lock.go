package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DataLock is a cross-process lock over a data directory. Seeding takes it
// so two writers never interleave batches across the three stores.
type DataLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataLock returns an unheld lock at <dataDir>/.otto.lock.
func NewDataLock(dataDir string) *DataLock {
	path := filepath.Join(dataDir, ".otto.lock")
	return &DataLock{path: path, flock: flock.New(path)}
}

// Lock blocks until the lock is acquired.
func (l *DataLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock if it is free and reports whether it did.
func (l *DataLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *DataLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsLocked reports whether this DataLock holds the lock.
func (l *DataLock) IsLocked() bool { return l.locked }

// Path returns the lock file path.
func (l *DataLock) Path() string { return l.path }
