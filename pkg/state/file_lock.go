// Package state file locking, used to serialize state mutations across
// jacx processes and to guarantee a single supervisor instance.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLockHeld is returned by TryLock when another process holds the lock.
var ErrLockHeld = errors.New("state lock is held by another process")

// FileLock is a flock-based lock on the jacx state directory
type FileLock struct {
	file     *os.File
	lockPath string
}

// NewFileLock creates a lock handle for the given state directory
func NewFileLock(stateDir string) *FileLock {
	return &FileLock{
		lockPath: filepath.Join(stateDir, ".lock"),
	}
}

// TryLock acquires the lock without blocking. Returns ErrLockHeld when the
// lock is owned elsewhere; the lsp command uses this to enforce a single
// supervisor per machine.
func (fl *FileLock) TryLock() error {
	file, err := os.OpenFile(fl.lockPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close() //nolint:errcheck // Best effort close, flock error is more important
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrLockHeld
		}
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}

	fl.file = file
	return nil
}

// Lock acquires the lock, blocking until it is available or ctx is done
func (fl *FileLock) Lock(ctx context.Context) error {
	file, err := os.OpenFile(fl.lockPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	fl.file = file

	// Try non-blocking lock first
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		_ = fl.file.Close() //nolint:errcheck // Best effort close, context error is more important
		fl.file = nil
		return ctx.Err()
	default:
	}

	// Fall back to a blocking lock in a goroutine so it stays cancellable
	done := make(chan error, 1)
	go func() {
		done <- syscall.Flock(int(file.Fd()), syscall.LOCK_EX)
	}()

	select {
	case err := <-done:
		if err != nil {
			_ = fl.file.Close() //nolint:errcheck // Best effort close, flock error is more important
			fl.file = nil
			return fmt.Errorf("failed to acquire state lock: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = fl.file.Close() //nolint:errcheck // Best effort close, context error is more important
		fl.file = nil
		return ctx.Err()
	}
}

// Unlock releases the lock
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN)

	if closeErr := fl.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	fl.file = nil
	return err
}

// WithLock executes fn while holding the lock
func (fl *FileLock) WithLock(ctx context.Context, fn func() error) error {
	if err := fl.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if unlockErr := fl.Unlock(); unlockErr != nil {
			fmt.Printf("Warning: failed to unlock state directory: %v\n", unlockErr)
		}
	}()

	return fn()
}

// WithLockTimeout executes fn while holding the lock, bounded by timeout
func (fl *FileLock) WithLockTimeout(timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return fl.WithLock(ctx, fn)
}
