package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// fileLock is the cross-process advisory lock guarding the store.
type fileLock struct {
	lock    *flock.Flock
	timeout time.Duration
}

func newFileLock(path string, timeout time.Duration) *fileLock {
	return &fileLock{lock: flock.New(path), timeout: timeout}
}

// acquire blocks until the lock is held, ctx is done, or the timeout
// elapses. The returned func releases the lock.
func (l *fileLock) acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.lock.Path()), 0755); err != nil {
		return nil, ioError("lock", "", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	locked, err := l.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &Error{Op: "lock", Err: ErrLocked, Cause: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ioError("lock", "", err)
	}
	if !locked {
		return nil, &Error{Op: "lock", Err: ErrLocked}
	}
	return func() { _ = l.lock.Unlock() }, nil
}
