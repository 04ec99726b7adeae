package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

const (
	// StateDirName is the hidden directory inside a run's workspace that
	// holds orchestrator bookkeeping
	StateDirName = ".idea-explorer"
	// StateFileName is the canonical run record within StateDirName
	StateFileName = "pipeline_state.json"
)

// StateStore persists a Run to a JSON file inside the run's workspace.
//
// Saves are atomic: the record is written to a temp file in the same
// directory, fsynced, then renamed over the canonical path, so a reader
// (or a crashed orchestrator restarting) never observes a torn record.
type StateStore struct {
	workDir string
}

// NewStateStore creates a store rooted at the given run workspace
func NewStateStore(workDir string) *StateStore {
	return &StateStore{workDir: workDir}
}

// Path returns the canonical state file location for this workspace
func (s *StateStore) Path() string {
	return filepath.Join(s.workDir, StateDirName, StateFileName)
}

// Load reads the persisted run.
// Returns ErrNotFound when no record exists, ErrStateCorrupt when the
// record exists but cannot be parsed or violates structural invariants.
func (s *StateStore) Load() (*Run, error) {
	data, err := os.ReadFile(s.Path())
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "no run state at %s", s.Path())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read run state")
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "empty run state at %s", s.Path())
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		err = errors.Wrap(errors.ErrStateCorrupt, err.Error())
		return nil, errors.WithHintf(err, "inspect or remove %s to recover", s.Path())
	}
	if err := run.Validate(); err != nil {
		err = errors.Wrap(errors.ErrStateCorrupt, err.Error())
		return nil, errors.WithHintf(err, "inspect or remove %s to recover", s.Path())
	}

	return &run, nil
}

// Save writes the full run atomically. After Save returns, a subsequent
// Load observes exactly this run even if the process dies immediately.
func (s *StateStore) Save(run *Run) error {
	if err := run.Validate(); err != nil {
		return errors.Wrap(err, "refusing to persist invalid run state")
	}

	stateDir := filepath.Dir(s.Path())
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal run state")
	}

	tmp, err := os.CreateTemp(stateDir, StateFileName+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write run state")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync run state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp state file")
	}

	if err := os.Rename(tmpName, s.Path()); err != nil {
		return errors.Wrap(err, "failed to replace run state")
	}
	return nil
}

// Initialize creates and persists a fresh run with all stages pending.
// Returns ErrAlreadyExists when a non-empty record is already present;
// the caller must explicitly choose resume over fresh start.
func (s *StateStore) Initialize(stageNames []string) (*Run, error) {
	if len(stageNames) == 0 {
		return nil, errors.New("cannot initialize a run with no stages")
	}

	if info, err := os.Stat(s.Path()); err == nil && info.Size() > 0 {
		err := errors.Wrapf(errors.ErrAlreadyExists, "run state already present at %s", s.Path())
		return nil, errors.WithHint(err, "use resume to continue the existing run")
	}

	run := NewRun(stageNames)
	if err := s.Save(run); err != nil {
		return nil, err
	}
	return run, nil
}
