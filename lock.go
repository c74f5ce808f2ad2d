package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout is the default wait for another process to release a store lock.
const DefaultLockTimeout = 30 * time.Second

// lockFileName is created in every family root that has been written to.
const lockFileName = ".mofa-models.lock"

// lockRetryDelay is the polling interval while waiting for a held lock.
const lockRetryDelay = 100 * time.Millisecond

// storeLock is an advisory cross-process lock on one family root.
type storeLock struct {
	fl *flock.Flock
}

// lockRoot takes the advisory lock of root, waiting up to timeout.
// Returns ErrStoreBusy if another process still holds it.
func lockRoot(ctx context.Context, root string, timeout time.Duration) (*storeLock, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, classifyFSError(err)
	}
	fl := flock.New(filepath.Join(root, lockFileName))

	var (
		ok  bool
		err error
	)
	if timeout <= 0 {
		ok, err = fl.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		ok, err = fl.TryLockContext(lockCtx, lockRetryDelay)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// The wait for the holder ran out; the caller is still live.
			ok, err = false, nil
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyFSError(err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreBusy, root)
	}
	return &storeLock{fl: fl}, nil
}

// Unlock releases the lock. Safe to call on a nil lock.
func (l *storeLock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
