package agent

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ChicagoHAI/idea-explorer/logger"
)

// MarkerWatcher implements CompletionSignal with filesystem notifications,
// falling back to a slow poll as a safety net. Notifications can be lost
// on some filesystems (NFS, overlayfs in containers), so the poll is kept
// even when the watch is healthy.
type MarkerWatcher struct {
	// FallbackInterval bounds how stale a missed notification can leave us
	FallbackInterval time.Duration
}

// NewMarkerWatcher creates a watcher; interval <= 0 defaults to 30s
func NewMarkerWatcher(fallbackInterval time.Duration) *MarkerWatcher {
	if fallbackInterval <= 0 {
		fallbackInterval = 30 * time.Second
	}
	return &MarkerWatcher{FallbackInterval: fallbackInterval}
}

// Await watches the workspace directory for the marker to appear
func (w *MarkerWatcher) Await(ctx context.Context, workDir, marker string, exited <-chan int) Detection {
	markerPath := filepath.Join(workDir, marker)

	if md, ok := readMarker(markerPath); ok {
		return Detection{Kind: DetectionCompleted, Metadata: md}
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(workDir)
	}
	if err != nil {
		// Degrade to pure polling rather than failing the stage
		logger.Warnw("marker watch unavailable, polling instead",
			logger.FieldWorkDir, workDir, "error", err)
		if watcher != nil {
			watcher.Close()
		}
		poller := NewMarkerPoller(w.FallbackInterval / 6)
		return poller.Await(ctx, workDir, marker, exited)
	}
	defer watcher.Close()

	// The marker may have been written between the stat above and the
	// watch registration
	if md, ok := readMarker(markerPath); ok {
		return Detection{Kind: DetectionCompleted, Metadata: md}
	}

	ticker := time.NewTicker(w.FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return Detection{Kind: DetectionAborted}
			}
			return Detection{Kind: DetectionTimedOut}

		case code := <-exited:
			if md, ok := readMarker(markerPath); ok {
				return Detection{Kind: DetectionCompleted, Metadata: md, Exited: true, ExitCode: code}
			}
			return Detection{Kind: DetectionProcessExited, Exited: true, ExitCode: code}

		case event, ok := <-watcher.Events:
			if !ok {
				continue
			}
			if event.Name != markerPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if md, ok := readMarker(markerPath); ok {
				return Detection{Kind: DetectionCompleted, Metadata: md}
			}

		case werr, ok := <-watcher.Errors:
			if ok && werr != nil {
				logger.Warnw("marker watch error", logger.FieldWorkDir, workDir, "error", werr)
			}

		case <-ticker.C:
			if md, ok := readMarker(markerPath); ok {
				return Detection{Kind: DetectionCompleted, Metadata: md}
			}
		}
	}
}
