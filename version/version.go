// Package version exposes the build identity stamped into the binary.
package version

import (
	"fmt"
	"runtime"
)

// Overridden at build time via -ldflags "-X ...". An untagged local
// build reports itself as dev.
var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info is the full build identity, including the toolchain and target
// platform captured at runtime.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String formats the identity for the version command's plain output
func (i Info) String() string {
	return fmt.Sprintf("idea-explorer %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
}
