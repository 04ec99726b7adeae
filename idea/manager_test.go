package idea

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "ideas"))
	require.NoError(t, err)
	return m
}

func TestSubmitAndGet(t *testing.T) {
	m := newTestManager(t)

	ideaID, err := m.Submit(validSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, ideaID)

	got, err := m.Get(ideaID)
	require.NoError(t, err)
	assert.Equal(t, "Gradient Noise and Generalization", got.Idea.Title)
	require.NotNil(t, got.Idea.Metadata)
	assert.Equal(t, ideaID, got.Idea.Metadata.IdeaID)
	assert.Equal(t, StatusSubmitted, got.Idea.Metadata.Status)
	assert.NotEmpty(t, got.Idea.Metadata.CreatedAt)
}

func TestSubmitRejectsInvalidSpec(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Submit(&Spec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestGetMissing(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUpdateStatusMovesFile(t *testing.T) {
	m := newTestManager(t)
	ideaID, err := m.Submit(validSpec())
	require.NoError(t, err)

	require.NoError(t, m.UpdateStatus(ideaID, StatusInProgress))

	// The file moved out of submitted
	_, err = os.Stat(m.pathFor(StatusSubmitted, ideaID))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(m.pathFor(StatusInProgress, ideaID))
	assert.NoError(t, err)

	got, err := m.Get(ideaID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Idea.Metadata.Status)
	assert.NotEmpty(t, got.Idea.Metadata.UpdatedAt)
}

func TestUpdateStatusValidation(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.UpdateStatus("whatever", Status("archived")))

	err := m.UpdateStatus("missing-idea", StatusCompleted)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestList(t *testing.T) {
	m := newTestManager(t)

	first := validSpec()
	firstID, err := m.Submit(first)
	require.NoError(t, err)

	second := validSpec()
	second.Idea.Title = "A Second Idea About Pruning"
	secondID, err := m.Submit(second)
	require.NoError(t, err)

	require.NoError(t, m.UpdateStatus(secondID, StatusInProgress))

	all, err := m.List("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	submitted, err := m.List(StatusSubmitted)
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, firstID, submitted[0].IdeaID)

	inProgress, err := m.List(StatusInProgress)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, secondID, inProgress[0].IdeaID)

	_, err = m.List(Status("bogus"))
	assert.Error(t, err)
}

func TestLoadSpecFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my_idea.yaml")
	content := `
idea:
  title: External Idea
  domain: nlp
  hypothesis: Prompt length correlates with hallucination rate in summarization
  expected_outputs:
    - type: metrics
      format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, "External Idea", spec.Idea.Title)
	assert.True(t, Validate(spec).Valid())
}
