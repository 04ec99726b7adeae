// Package agent supervises external CLI agent processes: launching them,
// streaming their output, detecting logical completion, and enforcing
// timeouts.
//
// Agents do not return structured results. They signal that they consider
// their task done by writing a marker file into the run workspace; exit
// codes alone are unreliable because long-running interactive CLIs can
// exit 0 after partial work or be killed by an enclosing container.
package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DetectionKind classifies how a stage's supervision concluded
type DetectionKind string

const (
	// DetectionCompleted means the completion marker appeared in time
	DetectionCompleted DetectionKind = "completed"
	// DetectionTimedOut means the deadline elapsed first; the caller must
	// terminate the process
	DetectionTimedOut DetectionKind = "timed_out"
	// DetectionProcessExited means the process ended without the marker
	DetectionProcessExited DetectionKind = "process_exited"
	// DetectionAborted means supervision was cancelled externally
	DetectionAborted DetectionKind = "aborted"
)

// Detection is the outcome of waiting for a stage's completion signal
type Detection struct {
	Kind DetectionKind
	// Exited reports that the process was observed exiting, in which case
	// ExitCode is meaningful
	Exited   bool
	ExitCode int
	// Metadata holds whatever the marker file contained, when it parses
	// as JSON. Best-effort; an unparseable marker is not an error.
	Metadata map[string]interface{}
}

// CompletionSignal decides when the logical unit of work behind a spawned
// process has finished. The filesystem poller is the production
// implementation; anything that can watch for the marker (named pipe,
// socket) can be substituted without changing the executor.
type CompletionSignal interface {
	// Await blocks until the marker appears, the process exits (exitCode
	// delivered on exited), or ctx is done. ctx carries the stage deadline.
	Await(ctx context.Context, workDir, marker string, exited <-chan int) Detection
}

// MarkerPoller implements CompletionSignal by polling for the marker file
// on a fixed interval.
type MarkerPoller struct {
	Interval time.Duration
}

// NewMarkerPoller creates a poller; interval <= 0 defaults to 5s
func NewMarkerPoller(interval time.Duration) *MarkerPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MarkerPoller{Interval: interval}
}

// Await polls for the marker while the process is alive and the deadline
// has not elapsed.
func (p *MarkerPoller) Await(ctx context.Context, workDir, marker string, exited <-chan int) Detection {
	markerPath := filepath.Join(workDir, marker)

	// The marker may predate supervision (stage re-run after a crash that
	// happened between marker write and persistence)
	if md, ok := readMarker(markerPath); ok {
		return Detection{Kind: DetectionCompleted, Metadata: md}
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return Detection{Kind: DetectionAborted}
			}
			return Detection{Kind: DetectionTimedOut}

		case code := <-exited:
			// The agent may write the marker and exit within one poll
			// interval; check once more before classifying.
			if md, ok := readMarker(markerPath); ok {
				return Detection{Kind: DetectionCompleted, Metadata: md, Exited: true, ExitCode: code}
			}
			return Detection{Kind: DetectionProcessExited, Exited: true, ExitCode: code}

		case <-ticker.C:
			if md, ok := readMarker(markerPath); ok {
				return Detection{Kind: DetectionCompleted, Metadata: md}
			}
		}
	}
}

// readMarker reports whether the marker exists and parses its contents as
// JSON metadata when possible.
func readMarker(path string) (map[string]interface{}, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var md map[string]interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &md); err != nil {
			md = nil // marker present, metadata not parseable; that is fine
		}
	}
	return md, true
}
