package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

// LockFileName is the lock file created inside the data directory.
const LockFileName = ".index.lock"

// lockRetryDelay is how often a blocking Lock retries.
const lockRetryDelay = 100 * time.Millisecond

// DataDirLock is a cross-process lock on one data directory. Only one
// process at a time may rewrite the corpus and vector files.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock creates a lock for dataDir. Nothing is touched on disk
// until the lock is acquired.
func NewDataDirLock(dataDir string) *DataDirLock {
	path := filepath.Join(dataDir, LockFileName)
	return &DataDirLock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryLock acquires the lock without blocking. A lock held elsewhere is
// reported as ERR_204_INDEX_LOCKED.
func (l *DataDirLock) TryLock() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return herrors.Newf(herrors.ErrCodeIndexLocked, "data directory %s is locked by another process", filepath.Dir(l.path)).
			WithDetail("lock", l.path).
			WithSuggestion("wait for the running index to finish, or remove the lock file if no other process is running")
	}
	l.locked = true
	return nil
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *DataDirLock) Lock(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return herrors.New(herrors.ErrCodeIndexLocked, "timed out waiting for the index lock", ctx.Err())
	}
	l.locked = true
	return nil
}

func (l *DataDirLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	return nil
}

// Unlock releases the lock. Safe to call on an unlocked DataDirLock.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.path
}

// IsLocked reports whether this DataDirLock holds the lock.
func (l *DataDirLock) IsLocked() bool {
	return l.locked
}
