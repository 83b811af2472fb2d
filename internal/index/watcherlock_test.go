package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireWatcherLockExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()

	lock1, ok, err := AcquireWatcherLock(dir, "proj-a")
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = lock1.Release() })

	_, ok, err = AcquireWatcherLock(dir, "proj-a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAcquireWatcherLockAllowsDifferentProjects(t *testing.T) {
	dir := t.TempDir()

	lock1, ok, err := AcquireWatcherLock(dir, "proj-a")
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = lock1.Release() })

	lock2, ok, err := AcquireWatcherLock(dir, "proj-b")
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = lock2.Release() })
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock1, ok, err := AcquireWatcherLock(dir, "proj-c")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock1.Release())

	lock2, ok, err := AcquireWatcherLock(dir, "proj-c")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock2.Release())
}

func TestListActiveWatchersReportsOnlyHeldLocks(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	lock, ok, err := AcquireWatcherLock(dir, "proj-held")
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = lock.Release() })

	released, ok, err := AcquireWatcherLock(dir, "proj-released")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, released.Release())

	active, err := ListActiveWatchers(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, []string{"proj-held"}, active)
}
