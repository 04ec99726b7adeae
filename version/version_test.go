package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestString(t *testing.T) {
	info := Info{Version: "1.2.0", CommitHash: "abc1234", BuildTime: "2026-01-01"}
	assert.Equal(t, "idea-explorer 1.2.0 (commit abc1234, built 2026-01-01)", info.String())
}
