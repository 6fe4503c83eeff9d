package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	minLockBackoff = 10 * time.Millisecond
	maxLockBackoff = 500 * time.Millisecond
)

// FileLock is an exclusive advisory lock on <path>.lock shared by every
// process on the host. Each acquisition opens its own descriptor, so two
// goroutines of one process exclude each other as well.
type FileLock struct {
	path    string
	timeout time.Duration
}

// NewFileLock returns a lock guarding target. A zero timeout waits forever.
func NewFileLock(target string, timeout time.Duration) *FileLock {
	return &FileLock{path: target + ".lock", timeout: timeout}
}

func (l *FileLock) Path() string { return l.path }

// Lock acquires the lock and returns the function that releases it.
func (l *FileLock) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := l.acquire(ctx, f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

func (l *FileLock) acquire(ctx context.Context, f *os.File) error {
	fd := int(f.Fd())
	if l.timeout <= 0 {
		for {
			err := unix.Flock(fd, unix.LOCK_EX)
			if err == nil {
				return nil
			}
			if !errors.Is(err, unix.EINTR) {
				return fmt.Errorf("flock %s: %w", l.path, err)
			}
		}
	}

	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EWOULDBLOCK) {
		return fmt.Errorf("flock %s: %w", l.path, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	backoff := minLockBackoff
	for {
		select {
		case <-lockCtx.Done():
			return fmt.Errorf("%w: %s after %s", ErrLockTimeout, l.path, l.timeout)
		case <-time.After(backoff):
			err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
			if err == nil {
				return nil
			}
			if !errors.Is(err, unix.EWOULDBLOCK) {
				return fmt.Errorf("flock %s: %w", l.path, err)
			}
			backoff *= 2
			if backoff > maxLockBackoff {
				backoff = maxLockBackoff
			}
		}
	}
}
