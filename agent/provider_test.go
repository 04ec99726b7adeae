package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProvider(t *testing.T) {
	for _, name := range []string{"claude", "codex", "gemini"} {
		p, err := LookupProvider(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		assert.NotEmpty(t, p.Binary)
	}

	_, err := LookupProvider("gpt-in-a-trenchcoat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent provider")
}

func TestProviderNames(t *testing.T) {
	assert.Equal(t, []string{"claude", "codex", "gemini"}, ProviderNames())
}

func TestCommandLine(t *testing.T) {
	claude, err := LookupProvider("claude")
	require.NoError(t, err)

	t.Run("full permissions with transcript", func(t *testing.T) {
		cmd := claude.CommandLine(true, true)
		assert.Equal(t, "claude -p --dangerously-skip-permissions --verbose --output-format stream-json", cmd)
	})

	t.Run("sandboxed without transcript", func(t *testing.T) {
		cmd := claude.CommandLine(false, false)
		assert.Equal(t, "claude -p", cmd)
	})

	t.Run("gemini yolo", func(t *testing.T) {
		gemini, err := LookupProvider("gemini")
		require.NoError(t, err)
		assert.Equal(t, "gemini --yolo", gemini.CommandLine(true, false))
	})
}

func TestPreflightMissingBinary(t *testing.T) {
	p := Provider{Name: "ghost", Binary: "definitely-not-installed-xyz"}
	err := p.Preflight()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not runnable")
}

func TestPreflightToleratesUnparseableVersion(t *testing.T) {
	// echo prints its argument back, so no semver appears in the output;
	// the version check is skipped rather than failing the launch
	p := Provider{Name: "echo", Binary: "echo", MinVersion: ">= 1.0.0"}
	assert.NoError(t, p.Preflight())
}

func TestVersionPattern(t *testing.T) {
	assert.Equal(t, "1.2.3", versionPattern.FindString("claude version 1.2.3 (stable)"))
	assert.Equal(t, "0.45.1", versionPattern.FindString("codex-cli 0.45.1"))
	assert.Empty(t, versionPattern.FindString("no version here"))
}
