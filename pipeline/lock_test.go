package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

func TestLockAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	require.NoError(t, err)

	// Held by this live process, a second acquire must fail
	_, err = AcquireLock(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLocked))

	require.NoError(t, lock.Release())

	lock2, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestLockReclaimsDeadHolder(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, StateDirName)
	require.NoError(t, os.MkdirAll(lockDir, 0o755))

	// PIDs near the max are vanishingly unlikely to be alive
	stale := filepath.Join(lockDir, LockFileName)
	require.NoError(t, os.WriteFile(stale, []byte("4194303\n"), 0o644))

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestLockReclaimsGarbageFile(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, StateDirName)
	require.NoError(t, os.MkdirAll(lockDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lockDir, LockFileName), []byte("not a pid"), 0o644))

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestReleaseNilLock(t *testing.T) {
	var lock *StateLock
	assert.NoError(t, lock.Release())
}
