package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopLoggerBeforeInitialize(t *testing.T) {
	// Must not panic even though Initialize was never called
	Infow("early message", FieldRunID, "none")
	Errorw("early error", FieldError, "nothing")
}

func TestInitializeJSON(t *testing.T) {
	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
	assert.NotNil(t, Logger)
	Cleanup()
}

func TestInitializeConsole(t *testing.T) {
	require.NoError(t, Initialize(false))
	assert.False(t, JSONOutput)
	assert.NotNil(t, Logger)
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithRunID(ctx, "run-abc")
	ctx = WithStage(ctx, "resource-gathering")
	ctx = WithComponent(ctx, "executor")

	fields := FieldsFromContext(ctx)
	require.Len(t, fields, 6)
	assert.Equal(t, FieldRunID, fields[0])
	assert.Equal(t, "run-abc", fields[1])
	assert.Equal(t, FieldStage, fields[2])
	assert.Equal(t, "resource-gathering", fields[3])
}

func TestZapFieldsFromContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-xyz")
	fields := ZapFieldsFromContext(ctx)
	require.Len(t, fields, 1)
	assert.Equal(t, FieldRunID, fields[0].Key)
}
