package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelWrappingPreservesIdentity(t *testing.T) {
	err := Wrap(ErrStageTimeout, "stage experiment-execution")
	err = WithDetail(err, "timeout: 7200s")

	assert.True(t, Is(err, ErrStageTimeout))
	assert.False(t, Is(err, ErrIncompleteOutputs))
}

func TestIsNotFoundError(t *testing.T) {
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("some other error")))
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(Wrap(ErrNotFound, "loading run")))
	assert.True(t, IsNotFoundError(NewNotFoundError("run %s", "abc123")))
}

func TestIsCheckpointDistinguishesSuspensionFromFailure(t *testing.T) {
	suspended := Wrap(ErrCheckpoint, "after resource-gathering")
	failed := Wrap(ErrStageTimeout, "after resource-gathering")

	assert.True(t, IsCheckpoint(suspended))
	assert.False(t, IsCheckpoint(failed))
	assert.False(t, IsCheckpoint(nil))
}
