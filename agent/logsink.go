package agent

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

const logSinkBuffer = 1024

// LogSink streams agent output lines to an append-only file without ever
// blocking the reader goroutine. When the writer falls behind and the
// buffer fills, lines are dropped and counted; supervision latency matters
// more than transcript completeness.
type LogSink struct {
	path    string
	ch      chan string
	done    chan struct{}
	dropped atomic.Int64
	closeMu sync.Mutex
	closed  bool
}

// NewLogSink opens (creating parent directories as needed) an append-only
// log file and starts the writer goroutine.
func NewLogSink(path string) (*LogSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open agent log")
	}

	s := &LogSink{
		path: path,
		ch:   make(chan string, logSinkBuffer),
		done: make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		w := bufio.NewWriter(f)
		for line := range s.ch {
			w.WriteString(line)
			w.WriteByte('\n')
		}
		w.Flush()
		f.Close()
	}()

	return s, nil
}

// Path returns the log file location
func (s *LogSink) Path() string {
	return s.path
}

// WriteLine enqueues a line for the writer, dropping it if the buffer is
// full. Never blocks.
func (s *LogSink) WriteLine(line string) {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- line:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many lines were discarded
func (s *LogSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close flushes and closes the log file, warning about any dropped lines
func (s *LogSink) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.closeMu.Unlock()

	<-s.done
	if n := s.dropped.Load(); n > 0 {
		logger.Warnw("agent log lines dropped", "path", s.path, "dropped", n)
	}
}
