package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across idea-explorer.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID   = "run_id"
	FieldIdeaID  = "idea_id"
	FieldStage   = "stage"
	FieldAttempt = "attempt"

	// Components
	FieldComponent = "component"
	FieldProvider  = "provider"

	// Operations
	FieldOperation = "operation"
	FieldCommand   = "command"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldTimeout    = "timeout"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"

	// Errors
	FieldError    = "error"
	FieldExitCode = "exit_code"

	// Status
	FieldStatus  = "status"
	FieldSuccess = "success"

	// Files and paths
	FieldFile    = "file"
	FieldWorkDir = "work_dir"
	FieldMarker  = "marker"
	FieldLogFile = "log_file"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	stageKey     contextKey = "logger_stage"
	componentKey contextKey = "logger_component"
)

// WithRunID adds a run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithStage adds a stage name to the context for logging
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, FieldStage, stage)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// ZapFieldsFromContext extracts zap.Field values from context for use with
// the non-sugared logger.
func ZapFieldsFromContext(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, zap.String(FieldRunID, runID))
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, zap.String(FieldStage, stage))
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, zap.String(FieldComponent, component))
	}

	return fields
}
