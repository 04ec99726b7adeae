package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStateStore(t.TempDir())

	run, err := store.Initialize(testStages)
	require.NoError(t, err)
	require.NoError(t, run.StartStage("resource_finder"))
	require.NoError(t, store.Save(run))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, run.RunID, loaded.RunID)
	assert.Equal(t, StageRunning, loaded.Stage("resource_finder").Status)
	assert.Equal(t, 1, loaded.Stage("resource_finder").AttemptCount)
	assert.Equal(t, run.StageNames(), loaded.StageNames())
}

func TestLoadMissing(t *testing.T) {
	store := NewStateStore(t.TempDir())
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(dir)
	stateDir := filepath.Join(dir, StateDirName)
	require.NoError(t, os.MkdirAll(stateDir, 0o755))

	t.Run("unparseable json", func(t *testing.T) {
		require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))
		_, err := store.Load()
		require.Error(t, err)
		assert.True(t, errors.IsStateCorruptError(err))
	})

	t.Run("invariant violation", func(t *testing.T) {
		record := `{
			"run_id": "r1",
			"created_at": "2026-01-01T00:00:00Z",
			"completed": false,
			"stages": [
				{"name": "a", "status": "running"},
				{"name": "b", "status": "running"}
			]
		}`
		require.NoError(t, os.WriteFile(store.Path(), []byte(record), 0o644))
		_, err := store.Load()
		require.Error(t, err)
		assert.True(t, errors.IsStateCorruptError(err))
	})
}

func TestInitializeRefusesExistingRun(t *testing.T) {
	store := NewStateStore(t.TempDir())

	_, err := store.Initialize(testStages)
	require.NoError(t, err)

	_, err = store.Initialize(testStages)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestSaveRefusesInvalidRun(t *testing.T) {
	store := NewStateStore(t.TempDir())
	run := NewRun(testStages)
	run.Stages[0].Status = StageRunning
	run.Stages[1].Status = StageRunning

	assert.Error(t, store.Save(run))
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(dir)
	run, err := store.Initialize(testStages)
	require.NoError(t, err)
	require.NoError(t, store.Save(run))

	entries, err := os.ReadDir(filepath.Join(dir, StateDirName))
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, StateFileName, e.Name())
	}
}
