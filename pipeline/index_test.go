package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChicagoHAI/idea-explorer/errors"
	internaltesting "github.com/ChicagoHAI/idea-explorer/internal/testing"
)

func newTestIndex(t *testing.T) *RunIndex {
	t.Helper()
	ix, err := OpenRunIndex(filepath.Join(t.TempDir(), "runs.db"), "/workspaces/test")
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestIndexRecordAndGet(t *testing.T) {
	ix := newTestIndex(t)

	run := NewRun(testStages)
	run.IdeaID = "idea-9"
	run.Provider = "claude"
	require.NoError(t, ix.Record(run))

	summary, err := ix.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "idea-9", summary.IdeaID)
	assert.Equal(t, "claude", summary.Provider)
	assert.Equal(t, "/workspaces/test", summary.Workspace)
	assert.Equal(t, "pending", summary.Status)
	assert.Nil(t, summary.CompletedAt)
}

func TestIndexUpsertTracksProgress(t *testing.T) {
	ix := newTestIndex(t)

	run := NewRun(testStages)
	require.NoError(t, ix.Record(run))

	require.NoError(t, run.StartStage("resource_finder"))
	require.NoError(t, ix.Record(run))
	summary, err := ix.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "running", summary.Status)

	require.NoError(t, run.FinishStage("resource_finder", false, nil, "boom"))
	require.NoError(t, ix.Record(run))
	summary, err = ix.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "failed", summary.Status)

	require.NoError(t, run.ReopenFailed("resource_finder"))
	require.NoError(t, run.StartStage("resource_finder"))
	require.NoError(t, run.FinishStage("resource_finder", true, nil, ""))
	require.NoError(t, run.StartStage("experiment_runner"))
	require.NoError(t, run.FinishStage("experiment_runner", true, nil, ""))
	require.NoError(t, run.MarkCompleted())
	require.NoError(t, ix.Record(run))

	summary, err = ix.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", summary.Status)
	assert.NotNil(t, summary.CompletedAt)
}

func TestIndexGetMissing(t *testing.T) {
	ix := newTestIndex(t)
	_, err := ix.Get("no-such-run")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestIndexList(t *testing.T) {
	ix := newTestIndex(t)

	first := NewRun(testStages)
	require.NoError(t, ix.Record(first))

	second := NewRun(testStages)
	require.NoError(t, second.StartStage("resource_finder"))
	require.NoError(t, ix.Record(second))

	all, err := ix.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	running, err := ix.List("running")
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, second.RunID, running[0].RunID)
}

func TestIndexOnSharedDatabase(t *testing.T) {
	db := internaltesting.CreateTestDB(t)
	_, err := db.Exec(runIndexSchema)
	require.NoError(t, err)

	ix := NewRunIndexWithDB(db, "/workspaces/shared")
	run := NewRun(testStages)
	require.NoError(t, ix.Record(run))

	summary, err := ix.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, "/workspaces/shared", summary.Workspace)
}

func TestIndexRecordDatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO pipeline_runs").
		WillReturnError(errors.New("disk full"))

	ix := NewRunIndexWithDB(db, "/w")
	err = ix.Record(NewRun(testStages))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record run")
	assert.NoError(t, mock.ExpectationsWereMet())
}
