// Package errors provides error handling for idea-explorer.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Add hints for operators
//	return errors.WithHint(err, "re-run with --resume after fixing the workspace")
//
//	// Check errors
//	if errors.Is(err, errors.ErrStageTimeout) {
//	    // handle timeout
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the pipeline core.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates no persisted run record exists at the location
	ErrNotFound = New("run state not found")

	// ErrAlreadyExists indicates a non-empty run record is already present
	// and the caller must explicitly choose resume vs. fresh start
	ErrAlreadyExists = New("run state already exists")

	// ErrStateCorrupt indicates the persisted run record cannot be parsed.
	// Fatal for the run; there is no automatic repair.
	ErrStateCorrupt = New("run state corrupt")

	// ErrStageTimeout indicates a stage exceeded its wall-clock budget
	ErrStageTimeout = New("stage exceeded timeout")

	// ErrIncompleteOutputs indicates the completion marker was observed but
	// one or more declared output artifacts are missing
	ErrIncompleteOutputs = New("stage reported completion but outputs are incomplete")

	// ErrExitedWithoutMarker indicates the agent process terminated without
	// writing its completion marker
	ErrExitedWithoutMarker = New("process exited without completion marker")

	// ErrCheckpoint indicates the pipeline is parked at a human-approval
	// checkpoint and must be resumed explicitly
	ErrCheckpoint = New("pipeline suspended at approval checkpoint")

	// ErrLocked indicates another orchestrator holds the state lock for a run
	ErrLocked = New("run state locked by another orchestrator")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsStateCorruptError checks if an error is or wraps ErrStateCorrupt
func IsStateCorruptError(err error) bool {
	return err != nil && Is(err, ErrStateCorrupt)
}

// IsCheckpoint checks if an error is or wraps ErrCheckpoint. A checkpoint
// is a suspension, not a failure; callers use this to distinguish the two.
func IsCheckpoint(err error) bool {
	return err != nil && Is(err, ErrCheckpoint)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}
