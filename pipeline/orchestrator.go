package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ChicagoHAI/idea-explorer/agent"
	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

// StageExecutor runs one stage to a terminal outcome. Satisfied by
// agent.Executor in production and by fakes in tests.
type StageExecutor interface {
	RunStage(ctx context.Context, spec agent.StageSpec) agent.StageResult
}

// OrchestratorConfig wires an orchestrator to a workspace
type OrchestratorConfig struct {
	WorkDir  string
	Executor StageExecutor
	// Stages defines the pipeline, in execution order
	Stages []agent.StageSpec
	// PauseAfter names a stage after which the pipeline suspends for
	// human review; empty disables the checkpoint
	PauseAfter string
	// SkipStages are marked skipped immediately after a fresh run is
	// initialized (for example when resources are already in place)
	SkipStages []string
	// MaxAttempts bounds automatic re-execution of a failing stage
	// within one invocation; values below 1 mean no automatic retry
	MaxAttempts int
	// Index receives run records for cross-run queries; nil disables it
	Index *RunIndex
	// IdeaID and Provider are recorded on fresh runs
	IdeaID   string
	Provider string
}

// Orchestrator drives a run through its stages strictly sequentially.
//
// Every stage transition is persisted before it is reported, so a crash at
// any instant leaves a state file from which resume can reconstruct what
// was in flight. A stage found running in a loaded record belonged to a
// dead orchestrator and is re-executed from scratch.
type Orchestrator struct {
	workDir  string
	store    *StateStore
	executor StageExecutor
	stages   []agent.StageSpec

	// pauseAfter may be flipped mid-run by a config reload
	pauseMu    sync.RWMutex
	pauseAfter string

	skipStages  []string
	maxAttempts int
	index       *RunIndex
	ideaID      string
	provider    string
	log         *zap.SugaredLogger
}

// NewOrchestrator validates the configuration and builds an orchestrator
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.WorkDir == "" {
		return nil, errors.New("orchestrator requires a workspace directory")
	}
	if cfg.Executor == nil {
		return nil, errors.New("orchestrator requires a stage executor")
	}
	if len(cfg.Stages) == 0 {
		return nil, errors.New("orchestrator requires at least one stage")
	}
	seen := make(map[string]bool, len(cfg.Stages))
	for _, s := range cfg.Stages {
		if s.Name == "" {
			return nil, errors.New("every stage needs a name")
		}
		if seen[s.Name] {
			return nil, errors.Newf("duplicate stage %q", s.Name)
		}
		seen[s.Name] = true
	}
	if cfg.PauseAfter != "" && !seen[cfg.PauseAfter] {
		return nil, errors.Newf("pause_after references unknown stage %q", cfg.PauseAfter)
	}
	for _, name := range cfg.SkipStages {
		if !seen[name] {
			return nil, errors.Newf("skip_stages references unknown stage %q", name)
		}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Orchestrator{
		workDir:     cfg.WorkDir,
		store:       NewStateStore(cfg.WorkDir),
		executor:    cfg.Executor,
		stages:      cfg.Stages,
		pauseAfter:  cfg.PauseAfter,
		skipStages:  cfg.SkipStages,
		maxAttempts: maxAttempts,
		index:       cfg.Index,
		ideaID:      cfg.IdeaID,
		provider:    cfg.Provider,
		log:         logger.Named("orchestrator"),
	}, nil
}

// Run starts a fresh pipeline in the workspace. Fails with
// ErrAlreadyExists when a run record is already present; continuing an
// interrupted run is Resume's job, never an implicit side effect.
func (o *Orchestrator) Run(ctx context.Context) error {
	lock, err := AcquireLock(o.workDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	run, err := o.store.Initialize(o.stageNames())
	if err != nil {
		return err
	}
	run.IdeaID = o.ideaID
	run.Provider = o.provider
	for _, name := range o.skipStages {
		if err := run.SkipStage(name); err != nil {
			return err
		}
		o.log.Infow("stage marked skipped at start",
			logger.FieldRunID, run.RunID,
			logger.FieldStage, name)
	}
	if err := o.save(run); err != nil {
		return err
	}

	o.log.Infow("pipeline started",
		logger.FieldRunID, run.RunID,
		logger.FieldIdeaID, run.IdeaID,
		logger.FieldProvider, run.Provider,
		logger.FieldWorkDir, o.workDir)

	return o.drive(ctx, run)
}

// Resume continues an interrupted run from its persisted state.
//
// Completed and skipped stages are never re-executed. A stage left
// running by a crashed orchestrator is re-executed as a fresh attempt,
// as is a failed stage once the operator has addressed the cause.
func (o *Orchestrator) Resume(ctx context.Context) error {
	lock, err := AcquireLock(o.workDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	run, err := o.store.Load()
	if err != nil {
		if errors.IsNotFoundError(err) {
			return errors.WithHint(err, "nothing to resume; start the pipeline instead")
		}
		return err
	}
	if run.Completed {
		o.log.Infow("run already completed, nothing to resume",
			logger.FieldRunID, run.RunID)
		return nil
	}
	if err := o.checkStageList(run); err != nil {
		return err
	}

	for _, rec := range run.Stages {
		switch rec.Status {
		case StageRunning:
			o.log.Warnw("found stage abandoned mid-flight, re-executing",
				logger.FieldRunID, run.RunID,
				logger.FieldStage, rec.Name,
				logger.FieldAttempt, rec.AttemptCount)
		case StageFailed:
			o.log.Infow("retrying previously failed stage",
				logger.FieldRunID, run.RunID,
				logger.FieldStage, rec.Name,
				logger.FieldError, rec.Error)
			if err := run.ReopenFailed(rec.Name); err != nil {
				return err
			}
		}
	}

	o.log.Infow("resuming pipeline",
		logger.FieldRunID, run.RunID,
		logger.FieldStage, run.CurrentStage)

	return o.drive(ctx, run)
}

// SkipStage marks a pending stage skipped so the pipeline advances past
// it. The stage is recorded as skipped, not completed; downstream
// tooling can tell the difference.
func (o *Orchestrator) SkipStage(name string) error {
	lock, err := AcquireLock(o.workDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	run, err := o.store.Load()
	if err != nil {
		return err
	}
	if err := run.SkipStage(name); err != nil {
		return err
	}
	if err := o.save(run); err != nil {
		return err
	}

	o.log.Infow("stage skipped",
		logger.FieldRunID, run.RunID,
		logger.FieldStage, name)
	return nil
}

// SetPauseAfter changes the review checkpoint while a run is in flight.
// Takes effect at the next stage boundary; empty clears the checkpoint.
func (o *Orchestrator) SetPauseAfter(name string) error {
	if name != "" {
		if _, ok := o.specFor(name); !ok {
			return errors.Newf("pause_after references unknown stage %q", name)
		}
	}
	o.pauseMu.Lock()
	o.pauseAfter = name
	o.pauseMu.Unlock()
	return nil
}

func (o *Orchestrator) pauseAfterStage() string {
	o.pauseMu.RLock()
	defer o.pauseMu.RUnlock()
	return o.pauseAfter
}

// Status returns the persisted run without taking the lock; it is a
// read-only snapshot and may trail a live orchestrator by one save.
func (o *Orchestrator) Status() (*Run, error) {
	return o.store.Load()
}

// drive executes open stages in order until the run completes, a stage
// fails, or the review checkpoint suspends it.
func (o *Orchestrator) drive(ctx context.Context, run *Run) error {
	for {
		open := run.FirstOpenStage()
		if open == nil {
			if err := run.MarkCompleted(); err != nil {
				return err
			}
			if err := o.save(run); err != nil {
				return err
			}
			o.log.Infow("pipeline completed",
				logger.FieldRunID, run.RunID)
			return nil
		}

		spec, ok := o.specFor(open.Name)
		if !ok {
			return errors.Newf("run references stage %q with no configured executor spec", open.Name)
		}
		if spec.WorkDir == "" {
			spec.WorkDir = o.workDir
		}

		if err := run.StartStage(open.Name); err != nil {
			return err
		}
		if err := o.save(run); err != nil {
			return err
		}

		o.log.Infow("stage started",
			logger.FieldRunID, run.RunID,
			logger.FieldStage, open.Name,
			logger.FieldAttempt, open.AttemptCount)

		result := o.executor.RunStage(ctx, spec)

		errMsg := ""
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
		if err := run.FinishStage(open.Name, result.Success, result.Outputs, errMsg); err != nil {
			return err
		}
		// The terminal result must be durable before anyone hears about it
		if err := o.save(run); err != nil {
			return err
		}

		if !result.Success {
			if open.AttemptCount < o.maxAttempts {
				o.log.Warnw("stage failed, retrying",
					logger.FieldRunID, run.RunID,
					logger.FieldStage, open.Name,
					logger.FieldAttempt, open.AttemptCount,
					logger.FieldError, errMsg)
				if err := run.ReopenFailed(open.Name); err != nil {
					return err
				}
				if err := o.save(run); err != nil {
					return err
				}
				continue
			}
			o.log.Errorw("stage failed, halting pipeline",
				logger.FieldRunID, run.RunID,
				logger.FieldStage, open.Name,
				logger.FieldExitCode, result.ExitCode,
				logger.FieldError, errMsg)
			if result.Err == nil {
				// An executor must not be able to fail a stage silently
				return errors.Newf("stage %s failed with exit code %d", open.Name, result.ExitCode)
			}
			return errors.Wrapf(result.Err, "stage %s failed", open.Name)
		}

		o.log.Infow("stage completed",
			logger.FieldRunID, run.RunID,
			logger.FieldStage, open.Name,
			logger.FieldDurationMS, result.Elapsed.Milliseconds())

		if o.pauseAfterStage() == open.Name && run.FirstOpenStage() != nil {
			o.log.Infow("pausing for human review",
				logger.FieldRunID, run.RunID,
				logger.FieldStage, open.Name)
			err := errors.Wrapf(errors.ErrCheckpoint,
				"pipeline paused after stage %s", open.Name)
			return errors.WithHint(err, "review the outputs, then resume to continue")
		}
	}
}

// checkStageList verifies the persisted run was produced by the same
// pipeline definition this orchestrator carries.
func (o *Orchestrator) checkStageList(run *Run) error {
	names := o.stageNames()
	persisted := run.StageNames()
	if len(names) != len(persisted) {
		return errors.Newf("run has %d stages but pipeline defines %d", len(persisted), len(names))
	}
	for i := range names {
		if names[i] != persisted[i] {
			return errors.Newf("run stage %d is %q but pipeline defines %q", i, persisted[i], names[i])
		}
	}
	return nil
}

func (o *Orchestrator) stageNames() []string {
	names := make([]string, 0, len(o.stages))
	for _, s := range o.stages {
		names = append(names, s.Name)
	}
	return names
}

func (o *Orchestrator) specFor(name string) (agent.StageSpec, bool) {
	for _, s := range o.stages {
		if s.Name == name {
			return s, true
		}
	}
	return agent.StageSpec{}, false
}

// save persists the run and mirrors it into the index when one is wired
func (o *Orchestrator) save(run *Run) error {
	if err := o.store.Save(run); err != nil {
		return err
	}
	if o.index != nil {
		if err := o.index.Record(run); err != nil {
			// The state file is the source of truth; the index is
			// best-effort
			o.log.Warnw("failed to record run in index",
				logger.FieldRunID, run.RunID,
				logger.FieldError, err)
		}
	}
	return nil
}
