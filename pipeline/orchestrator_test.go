package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChicagoHAI/idea-explorer/agent"
	"github.com/ChicagoHAI/idea-explorer/errors"
)

// fakeExecutor returns canned results and records call order
type fakeExecutor struct {
	results map[string]agent.StageResult
	calls   []string
}

func (f *fakeExecutor) RunStage(ctx context.Context, spec agent.StageSpec) agent.StageResult {
	f.calls = append(f.calls, spec.Name)
	if r, ok := f.results[spec.Name]; ok {
		r.Stage = spec.Name
		return r
	}
	return agent.StageResult{Stage: spec.Name, Success: true}
}

func twoStageSpecs() []agent.StageSpec {
	return []agent.StageSpec{
		{Name: "resource_finder"},
		{Name: "experiment_runner"},
	}
}

func newTestOrchestrator(t *testing.T, dir string, exec StageExecutor, pauseAfter string) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(OrchestratorConfig{
		WorkDir:    dir,
		Executor:   exec,
		Stages:     twoStageSpecs(),
		PauseAfter: pauseAfter,
		IdeaID:     "idea-123",
		Provider:   "claude",
	})
	require.NoError(t, err)
	return orch
}

func TestRunTwoStageSuccess(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{results: map[string]agent.StageResult{
		"resource_finder": {Success: true, Outputs: map[string]string{"summary": "/w/resources.md"}},
	}}
	orch := newTestOrchestrator(t, dir, exec, "")

	require.NoError(t, orch.Run(context.Background()))
	assert.Equal(t, []string{"resource_finder", "experiment_runner"}, exec.calls)

	run, err := NewStateStore(dir).Load()
	require.NoError(t, err)
	assert.True(t, run.Completed)
	assert.Equal(t, "idea-123", run.IdeaID)
	assert.Equal(t, "claude", run.Provider)
	assert.Equal(t, StageCompleted, run.Stage("resource_finder").Status)
	assert.Equal(t, map[string]string{"summary": "/w/resources.md"}, run.Stage("resource_finder").Outputs)
	assert.Equal(t, StageCompleted, run.Stage("experiment_runner").Status)
}

func TestRunRefusesExistingState(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStateStore(dir).Initialize(testStages)
	require.NoError(t, err)

	orch := newTestOrchestrator(t, dir, &fakeExecutor{}, "")
	err = orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestRunHaltsOnFailure(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{results: map[string]agent.StageResult{
		"resource_finder": {Success: false, ExitCode: 3, Err: errors.New("agent exited with code 3")},
	}}
	orch := newTestOrchestrator(t, dir, exec, "")

	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resource_finder")
	assert.Equal(t, []string{"resource_finder"}, exec.calls, "later stages must not run")

	// The failure is durable before Run returns
	run, loadErr := NewStateStore(dir).Load()
	require.NoError(t, loadErr)
	assert.False(t, run.Completed)
	rec := run.Stage("resource_finder")
	assert.Equal(t, StageFailed, rec.Status)
	assert.Contains(t, rec.Error, "exited with code 3")
	assert.Equal(t, StagePending, run.Stage("experiment_runner").Status)
}

func TestRunFailureWithoutExecutorError(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{results: map[string]agent.StageResult{
		"resource_finder": {Success: false, ExitCode: 2},
	}}
	orch := newTestOrchestrator(t, dir, exec, "")

	err := orch.Run(context.Background())
	require.Error(t, err, "a failed stage must never surface as success")
	assert.Contains(t, err.Error(), "resource_finder")
	assert.Equal(t, []string{"resource_finder"}, exec.calls)

	run, loadErr := NewStateStore(dir).Load()
	require.NoError(t, loadErr)
	assert.False(t, run.Completed)
	assert.Equal(t, StageFailed, run.Stage("resource_finder").Status)
}

func TestResumeReExecutesAbandonedStage(t *testing.T) {
	dir := t.TempDir()

	// Simulate a crash mid-stage: state persisted with the stage running
	store := NewStateStore(dir)
	run, err := store.Initialize(testStages)
	require.NoError(t, err)
	require.NoError(t, run.StartStage("resource_finder"))
	require.NoError(t, store.Save(run))

	exec := &fakeExecutor{}
	orch := newTestOrchestrator(t, dir, exec, "")
	require.NoError(t, orch.Resume(context.Background()))

	assert.Equal(t, []string{"resource_finder", "experiment_runner"}, exec.calls)
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.Completed)
	assert.Equal(t, 2, loaded.Stage("resource_finder").AttemptCount, "abandoned attempt plus re-execution")
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(dir)
	run, err := store.Initialize(testStages)
	require.NoError(t, err)
	require.NoError(t, run.StartStage("resource_finder"))
	require.NoError(t, run.FinishStage("resource_finder", true, nil, ""))
	require.NoError(t, store.Save(run))

	exec := &fakeExecutor{}
	orch := newTestOrchestrator(t, dir, exec, "")
	require.NoError(t, orch.Resume(context.Background()))

	assert.Equal(t, []string{"experiment_runner"}, exec.calls)
}

func TestResumeRetriesFailedStage(t *testing.T) {
	dir := t.TempDir()
	failing := &fakeExecutor{results: map[string]agent.StageResult{
		"resource_finder": {Success: false, Err: errors.New("transient")},
	}}
	orch := newTestOrchestrator(t, dir, failing, "")
	require.Error(t, orch.Run(context.Background()))

	// Operator fixes the cause and resumes
	exec := &fakeExecutor{}
	orch = newTestOrchestrator(t, dir, exec, "")
	require.NoError(t, orch.Resume(context.Background()))

	run, err := NewStateStore(dir).Load()
	require.NoError(t, err)
	assert.True(t, run.Completed)
	assert.Equal(t, 2, run.Stage("resource_finder").AttemptCount)
}

func TestResumeCompletedRunIsNoOp(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{}
	orch := newTestOrchestrator(t, dir, exec, "")
	require.NoError(t, orch.Run(context.Background()))

	again := &fakeExecutor{}
	orch = newTestOrchestrator(t, dir, again, "")
	require.NoError(t, orch.Resume(context.Background()))
	assert.Empty(t, again.calls, "resume of a completed run executes nothing")
}

func TestResumeWithoutStateFails(t *testing.T) {
	orch := newTestOrchestrator(t, t.TempDir(), &fakeExecutor{}, "")
	err := orch.Resume(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestResumeRejectsMismatchedStageList(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStateStore(dir).Initialize([]string{"resource_finder", "paper_writer", "extra"})
	require.NoError(t, err)

	orch := newTestOrchestrator(t, dir, &fakeExecutor{}, "")
	err = orch.Resume(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stages")
}

func TestCheckpointPausesAndResumes(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{}
	orch := newTestOrchestrator(t, dir, exec, "resource_finder")

	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCheckpoint(err))
	assert.Equal(t, []string{"resource_finder"}, exec.calls)

	run, loadErr := NewStateStore(dir).Load()
	require.NoError(t, loadErr)
	assert.False(t, run.Completed)
	assert.Equal(t, StageCompleted, run.Stage("resource_finder").Status)
	assert.Equal(t, StagePending, run.Stage("experiment_runner").Status)

	// Resume continues past the checkpoint without pausing again
	exec2 := &fakeExecutor{}
	orch = newTestOrchestrator(t, dir, exec2, "resource_finder")
	require.NoError(t, orch.Resume(context.Background()))
	assert.Equal(t, []string{"experiment_runner"}, exec2.calls)
}

func TestCheckpointAfterFinalStageDoesNotPause(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{}
	orch := newTestOrchestrator(t, dir, exec, "experiment_runner")

	require.NoError(t, orch.Run(context.Background()))
	run, err := NewStateStore(dir).Load()
	require.NoError(t, err)
	assert.True(t, run.Completed)
}

func TestSkipStageDirective(t *testing.T) {
	dir := t.TempDir()
	store := NewStateStore(dir)
	run, err := store.Initialize(testStages)
	require.NoError(t, err)
	require.NoError(t, run.StartStage("resource_finder"))
	require.NoError(t, run.FinishStage("resource_finder", true, nil, ""))
	require.NoError(t, store.Save(run))

	exec := &fakeExecutor{}
	orch := newTestOrchestrator(t, dir, exec, "")
	require.NoError(t, orch.SkipStage("experiment_runner"))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, StageSkipped, loaded.Stage("experiment_runner").Status)

	// Resume has nothing left to execute
	require.NoError(t, orch.Resume(context.Background()))
	assert.Empty(t, exec.calls)
	loaded, err = store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.Completed)
}

func TestRunWithSkippedStage(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{}
	orch, err := NewOrchestrator(OrchestratorConfig{
		WorkDir:    dir,
		Executor:   exec,
		Stages:     twoStageSpecs(),
		SkipStages: []string{"resource_finder"},
	})
	require.NoError(t, err)

	require.NoError(t, orch.Run(context.Background()))
	assert.Equal(t, []string{"experiment_runner"}, exec.calls)

	run, err := NewStateStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, StageSkipped, run.Stage("resource_finder").Status)
	assert.True(t, run.Completed)
}

// flakyExecutor fails a stage a fixed number of times before succeeding
type flakyExecutor struct {
	failuresLeft map[string]int
	calls        []string
}

func (f *flakyExecutor) RunStage(ctx context.Context, spec agent.StageSpec) agent.StageResult {
	f.calls = append(f.calls, spec.Name)
	if f.failuresLeft[spec.Name] > 0 {
		f.failuresLeft[spec.Name]--
		return agent.StageResult{Stage: spec.Name, Success: false, Err: errors.New("transient")}
	}
	return agent.StageResult{Stage: spec.Name, Success: true}
}

func TestRetryBudgetReExecutesFailedStage(t *testing.T) {
	dir := t.TempDir()
	exec := &flakyExecutor{failuresLeft: map[string]int{"resource_finder": 1}}
	orch, err := NewOrchestrator(OrchestratorConfig{
		WorkDir:     dir,
		Executor:    exec,
		Stages:      twoStageSpecs(),
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	require.NoError(t, orch.Run(context.Background()))
	assert.Equal(t, []string{"resource_finder", "resource_finder", "experiment_runner"}, exec.calls)

	run, err := NewStateStore(dir).Load()
	require.NoError(t, err)
	assert.True(t, run.Completed)
	assert.Equal(t, 2, run.Stage("resource_finder").AttemptCount)
}

func TestRetryBudgetExhausted(t *testing.T) {
	dir := t.TempDir()
	exec := &flakyExecutor{failuresLeft: map[string]int{"resource_finder": 5}}
	orch, err := NewOrchestrator(OrchestratorConfig{
		WorkDir:     dir,
		Executor:    exec,
		Stages:      twoStageSpecs(),
		MaxAttempts: 2,
	})
	require.NoError(t, err)

	err = orch.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"resource_finder", "resource_finder"}, exec.calls)

	run, loadErr := NewStateStore(dir).Load()
	require.NoError(t, loadErr)
	assert.Equal(t, StageFailed, run.Stage("resource_finder").Status)
	assert.Equal(t, 2, run.Stage("resource_finder").AttemptCount)
}

func TestSetPauseAfter(t *testing.T) {
	dir := t.TempDir()
	exec := &fakeExecutor{}
	orch := newTestOrchestrator(t, dir, exec, "")

	require.Error(t, orch.SetPauseAfter("nope"), "unknown stage rejected")
	require.NoError(t, orch.SetPauseAfter("resource_finder"))

	err := orch.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCheckpoint(err))
	assert.Equal(t, []string{"resource_finder"}, exec.calls)

	// Clearing the checkpoint lets resume finish the run
	require.NoError(t, orch.SetPauseAfter(""))
	require.NoError(t, orch.Resume(context.Background()))
}

func TestNewOrchestratorValidation(t *testing.T) {
	exec := &fakeExecutor{}

	_, err := NewOrchestrator(OrchestratorConfig{Executor: exec, Stages: twoStageSpecs()})
	assert.Error(t, err, "workspace is required")

	_, err = NewOrchestrator(OrchestratorConfig{WorkDir: "/w", Stages: twoStageSpecs()})
	assert.Error(t, err, "executor is required")

	_, err = NewOrchestrator(OrchestratorConfig{WorkDir: "/w", Executor: exec})
	assert.Error(t, err, "stages are required")

	_, err = NewOrchestrator(OrchestratorConfig{
		WorkDir:  "/w",
		Executor: exec,
		Stages:   []agent.StageSpec{{Name: "a"}, {Name: "a"}},
	})
	assert.Error(t, err, "duplicate stages are rejected")

	_, err = NewOrchestrator(OrchestratorConfig{
		WorkDir:    "/w",
		Executor:   exec,
		Stages:     twoStageSpecs(),
		PauseAfter: "nope",
	})
	assert.Error(t, err, "pause_after must name a stage")
}
