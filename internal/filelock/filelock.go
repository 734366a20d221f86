// Package filelock provides cross-process file locks and atomic writes for
// the files gridpilot shares between runs: journal exports, reports and
// evidence.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context ended.
var ErrLockTimeout = errors.New("timed out waiting for file lock")

// retryDelay is how often a contended lock is retried.
const retryDelay = 25 * time.Millisecond

// FileLock wraps a flock file lock.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock creates a lock backed by the file at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// LockPath returns the lock file used to guard target.
func LockPath(target string) string {
	return target + ".lock"
}

// Lock acquires an exclusive lock, retrying until ctx ends.
func (fl *FileLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	locked, err := fl.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", ErrLockTimeout, fl.path)
		}
		return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLockTimeout, fl.path)
	}
	return nil
}

// RLock acquires a shared lock, retrying until ctx ends.
func (fl *FileLock) RLock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	locked, err := fl.flock.TryRLockContext(ctx, retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", ErrLockTimeout, fl.path)
		}
		return fmt.Errorf("failed to acquire read lock on %s: %w", fl.path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLockTimeout, fl.path)
	}
	return nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// WithLock runs fn while holding the exclusive lock guarding target.
func WithLock(ctx context.Context, target string, fn func() error) error {
	lock := NewFileLock(LockPath(target))
	if err := lock.Lock(ctx); err != nil {
		return err
	}
	defer lock.Unlock()
	return fn()
}

// ReadLocked reads target while holding its shared lock.
func ReadLocked(ctx context.Context, target string) ([]byte, error) {
	lock := NewFileLock(LockPath(target))
	if err := lock.RLock(ctx); err != nil {
		return nil, err
	}
	defer lock.Unlock()
	return os.ReadFile(target)
}

// AtomicWrite writes data to path through a temp file in the same directory
// and a rename, so readers never observe a partial file.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	committed := false
	defer func() {
		if !committed {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	committed = true
	return nil
}

// LockAndWrite atomically writes path while holding its lock.
func LockAndWrite(ctx context.Context, path string, data []byte) error {
	return WithLock(ctx, path, func() error {
		return AtomicWrite(path, data)
	})
}
