package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

func TestDataDirLock_TryLock(t *testing.T) {
	// Given: a data directory that does not exist yet
	dir := filepath.Join(t.TempDir(), "data")
	lock := NewDataDirLock(dir)

	// When: taking the lock
	require.NoError(t, lock.TryLock())
	defer func() { _ = lock.Unlock() }()

	// Then: the directory and lock file are created
	assert.True(t, lock.IsLocked())
	assert.FileExists(t, lock.Path())
	assert.Equal(t, filepath.Join(dir, LockFileName), lock.Path())
}

func TestDataDirLock_HeldElsewhere(t *testing.T) {
	// Given: the lock held through another handle
	dir := t.TempDir()
	first := NewDataDirLock(dir)
	require.NoError(t, first.TryLock())
	defer func() { _ = first.Unlock() }()

	// When: a second handle tries to take it
	err := NewDataDirLock(dir).TryLock()

	// Then: it reports the index as locked
	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeIndexLocked, herrors.GetCode(err))
	assert.True(t, herrors.IsRetryable(err))
}

func TestDataDirLock_ReleasedLockCanBeRetaken(t *testing.T) {
	dir := t.TempDir()
	first := NewDataDirLock(dir)
	require.NoError(t, first.TryLock())
	require.NoError(t, first.Unlock())

	second := NewDataDirLock(dir)
	require.NoError(t, second.TryLock())
	assert.NoError(t, second.Unlock())
}

func TestDataDirLock_UnlockIdempotent(t *testing.T) {
	lock := NewDataDirLock(t.TempDir())

	assert.NoError(t, lock.Unlock())
	require.NoError(t, lock.TryLock())
	assert.NoError(t, lock.Unlock())
	assert.NoError(t, lock.Unlock())
	assert.False(t, lock.IsLocked())
}

func TestDataDirLock_LockWaitsForContext(t *testing.T) {
	// Given: a held lock
	dir := t.TempDir()
	holder := NewDataDirLock(dir)
	require.NoError(t, holder.TryLock())
	defer func() { _ = holder.Unlock() }()

	// When: blocking on it with a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	err := NewDataDirLock(dir).Lock(ctx)

	// Then: it gives up with ERR_204
	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeIndexLocked, herrors.GetCode(err))
}

func TestDataDirLock_LockAcquiresWhenFree(t *testing.T) {
	lock := NewDataDirLock(t.TempDir())

	require.NoError(t, lock.Lock(context.Background()))
	assert.True(t, lock.IsLocked())
	assert.NoError(t, lock.Unlock())
}
