// Package pipeline implements the multi-stage research pipeline core: the
// durable run state, the state store, and the orchestrator that sequences
// agent stages against a run.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/internal/util"
)

// StageStatus represents the current state of a stage within a run
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// IsTerminal returns true once a stage can never be reopened within this run
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// IsValidStatus returns true if the status string is a valid StageStatus
func IsValidStatus(s string) bool {
	switch StageStatus(s) {
	case StagePending, StageRunning, StageCompleted, StageFailed, StageSkipped:
		return true
	default:
		return false
	}
}

// StageRecord tracks one stage's progress within a run.
//
// Lifecycle: created pending when the run is initialized, running when the
// executor is invoked, then exactly one terminal state. Terminal records
// are never reopened; a whole-pipeline re-run gets a fresh Run.
type StageRecord struct {
	Name         string            `json:"name"`
	Status       StageStatus       `json:"status"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Success      *bool             `json:"success,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	Error        string            `json:"error,omitempty"`
	AttemptCount int               `json:"attempt_count,omitempty"`
}

// Run is one execution of the pipeline against an idea specification.
// The orchestrator exclusively owns the in-memory representation; the
// state store owns the durable copy.
type Run struct {
	RunID        string         `json:"run_id"`
	IdeaID       string         `json:"idea_id,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CurrentStage string         `json:"current_stage,omitempty"`
	Completed    bool           `json:"completed"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Stages       []*StageRecord `json:"stages"`
}

// NewRun creates a fresh run with all stages pending, in order.
func NewRun(stageNames []string) *Run {
	stages := make([]*StageRecord, 0, len(stageNames))
	for _, name := range stageNames {
		stages = append(stages, &StageRecord{
			Name:   name,
			Status: StagePending,
		})
	}

	run := &Run{
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Stages:    stages,
	}
	if len(stages) > 0 {
		run.CurrentStage = stages[0].Name
	}
	return run
}

// Stage returns the record for the named stage, or nil if unknown
func (r *Run) Stage(name string) *StageRecord {
	for _, s := range r.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// StageNames returns the ordered stage names
func (r *Run) StageNames() []string {
	names := make([]string, 0, len(r.Stages))
	for _, s := range r.Stages {
		names = append(names, s.Name)
	}
	return names
}

// FirstOpenStage returns the first stage that is not terminal, or nil when
// every stage has finished.
func (r *Run) FirstOpenStage() *StageRecord {
	for _, s := range r.Stages {
		if !s.Status.IsTerminal() {
			return s
		}
	}
	return nil
}

// RunningCount returns how many stages are currently marked running.
// The invariant is that this never exceeds 1.
func (r *Run) RunningCount() int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == StageRunning {
			n++
		}
	}
	return n
}

// StartStage transitions a pending (or abandoned running) stage to running
// and points current_stage at it.
func (r *Run) StartStage(name string) error {
	stage := r.Stage(name)
	if stage == nil {
		return errors.Newf("unknown stage %q", name)
	}
	if stage.Status.IsTerminal() {
		return errors.Newf("stage %q is already %s and cannot be restarted", name, stage.Status)
	}
	if other := r.runningOther(name); other != "" {
		return errors.Newf("stage %q is still running; stages execute strictly sequentially", other)
	}

	now := time.Now().UTC()
	stage.Status = StageRunning
	stage.StartedAt = &now
	stage.CompletedAt = nil
	stage.Success = nil
	stage.Error = ""
	stage.AttemptCount++
	r.CurrentStage = name
	return nil
}

// FinishStage records a terminal result for a running stage.
func (r *Run) FinishStage(name string, success bool, outputs map[string]string, errMsg string) error {
	stage := r.Stage(name)
	if stage == nil {
		return errors.Newf("unknown stage %q", name)
	}
	if stage.Status.IsTerminal() {
		return errors.Newf("stage %q is already terminal (%s)", name, stage.Status)
	}

	now := time.Now().UTC()
	stage.CompletedAt = &now
	stage.Success = &success
	stage.Outputs = outputs
	stage.Error = errMsg
	if success {
		stage.Status = StageCompleted
	} else {
		stage.Status = StageFailed
	}

	r.advanceCurrentStage()
	return nil
}

// SkipStage marks a pending stage skipped, distinct from completed so
// downstream logic can tell "ran and succeeded" from "bypassed".
func (r *Run) SkipStage(name string) error {
	stage := r.Stage(name)
	if stage == nil {
		return errors.Newf("unknown stage %q", name)
	}
	if stage.Status.IsTerminal() {
		return errors.Newf("stage %q is already terminal (%s)", name, stage.Status)
	}
	if stage.Status == StageRunning {
		return errors.Newf("stage %q is running and cannot be skipped", name)
	}

	now := time.Now().UTC()
	stage.Status = StageSkipped
	stage.CompletedAt = &now
	stage.Success = util.Ptr(true)

	r.advanceCurrentStage()
	return nil
}

// ReopenFailed returns a failed stage to pending so resume can make a
// fresh attempt at it. Attempt history is kept; only the terminal result
// is cleared. Completed and skipped stages stay closed.
func (r *Run) ReopenFailed(name string) error {
	stage := r.Stage(name)
	if stage == nil {
		return errors.Newf("unknown stage %q", name)
	}
	if stage.Status != StageFailed {
		return errors.Newf("stage %q is %s, only failed stages can be reopened", name, stage.Status)
	}

	stage.Status = StagePending
	stage.CompletedAt = nil
	stage.Success = nil
	stage.Error = ""
	r.advanceCurrentStage()
	return nil
}

// MarkCompleted flags the whole run finished. Only valid once every stage
// is terminal.
func (r *Run) MarkCompleted() error {
	if open := r.FirstOpenStage(); open != nil {
		return errors.Newf("stage %q is still %s", open.Name, open.Status)
	}
	now := time.Now().UTC()
	r.Completed = true
	r.CompletedAt = &now
	r.CurrentStage = ""
	return nil
}

// advanceCurrentStage points current_stage at the next open stage, or
// clears it when none remain.
func (r *Run) advanceCurrentStage() {
	if open := r.FirstOpenStage(); open != nil {
		r.CurrentStage = open.Name
		return
	}
	r.CurrentStage = ""
}

// runningOther returns the name of any running stage other than the given
// one, or empty string.
func (r *Run) runningOther(name string) string {
	for _, s := range r.Stages {
		if s.Status == StageRunning && s.Name != name {
			return s.Name
		}
	}
	return ""
}

// Validate checks the structural invariants of a loaded run: at most one
// running stage, known statuses, and a current_stage that references an
// open stage when any remain.
func (r *Run) Validate() error {
	if r.RunID == "" {
		return errors.New("run has no run_id")
	}
	if r.RunningCount() > 1 {
		return errors.Newf("run %s has %d running stages; at most one is allowed", r.RunID, r.RunningCount())
	}
	for _, s := range r.Stages {
		if !IsValidStatus(string(s.Status)) {
			return errors.Newf("stage %q has unknown status %q", s.Name, s.Status)
		}
	}
	if r.CurrentStage != "" {
		stage := r.Stage(r.CurrentStage)
		if stage == nil {
			return errors.Newf("current_stage %q does not reference a known stage", r.CurrentStage)
		}
		if stage.Status.IsTerminal() {
			return errors.Newf("current_stage %q references a terminal stage", r.CurrentStage)
		}
	}
	return nil
}
