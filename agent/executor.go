package agent

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
	"github.com/ChicagoHAI/idea-explorer/security"
)

// StageSpec tells the executor everything it needs to run one stage:
// what to launch, where, how long to wait, and what must exist afterwards.
type StageSpec struct {
	Name string
	// Command is the full shell-quoted invocation
	Command string
	// Input is piped to the child's stdin
	Input string
	// WorkDir is the run workspace; also the child's working directory
	WorkDir string
	Timeout time.Duration
	// Marker is the completion marker filename relative to WorkDir.
	// Empty means completion is judged by exit code alone.
	Marker string
	// RequiredOutputs maps logical names to workspace-relative paths that
	// must exist for the stage to count as successful
	RequiredOutputs map[string]string
	// ExtraEnv is appended to the sanitized child environment
	ExtraEnv []string
	// LogFile is where agent output is streamed; defaults to
	// <WorkDir>/logs/<Name>.log
	LogFile string
}

// StageResult is what the executor reports back to the orchestrator
type StageResult struct {
	Stage    string
	Success  bool
	ExitCode int
	// Outputs maps logical names to absolute paths, set on success
	Outputs map[string]string
	// Metadata is whatever the completion marker carried
	Metadata map[string]interface{}
	Err      error
	Elapsed  time.Duration
	LogFile  string
}

// handle tracks a supervised child process. Owned entirely by the
// executor; the orchestrator only ever sees StageResults.
type handle struct {
	cmd    *exec.Cmd
	exited chan int
}

// Executor launches agent processes and supervises them to a terminal
// outcome. One executor is shared across stages; each RunStage call is
// self-contained.
type Executor struct {
	signal CompletionSignal
	// killGrace is how long a SIGTERM'd child gets before SIGKILL
	killGrace time.Duration
	// minMemoryMB triggers a pre-launch warning, 0 disables
	minMemoryMB int
	log         *zap.SugaredLogger
}

// NewExecutor creates an executor using the given completion signal
func NewExecutor(signal CompletionSignal, killGrace time.Duration, minMemoryMB int, log *zap.SugaredLogger) *Executor {
	if killGrace <= 0 {
		killGrace = 10 * time.Second
	}
	if log == nil {
		log = logger.Named("executor")
	}
	return &Executor{
		signal:      signal,
		killGrace:   killGrace,
		minMemoryMB: minMemoryMB,
		log:         log,
	}
}

// RunStage launches the stage command and blocks until completion,
// failure, timeout, or cancellation. The returned result is always
// terminal; the child process is guaranteed dead when RunStage returns.
func (e *Executor) RunStage(ctx context.Context, spec StageSpec) StageResult {
	start := time.Now()
	result := StageResult{Stage: spec.Name, ExitCode: -1}

	fail := func(err error) StageResult {
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}

	args, err := shellquote.Split(spec.Command)
	if err != nil {
		return fail(errors.Wrapf(err, "unparseable stage command %q", spec.Command))
	}
	if len(args) == 0 {
		return fail(errors.New("empty stage command"))
	}

	warnIfMemoryLow(e.minMemoryMB)

	logPath := spec.LogFile
	if logPath == "" {
		logPath = filepath.Join(spec.WorkDir, "logs", spec.Name+".log")
	}
	sink, err := NewLogSink(logPath)
	if err != nil {
		return fail(err)
	}
	defer sink.Close()
	result.LogFile = logPath

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = spec.WorkDir
	cmd.Env = append(security.SafeEnv(os.Environ()), spec.ExtraEnv...)
	cmd.Stdin = strings.NewReader(spec.Input)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(errors.Wrap(err, "failed to open stdout pipe"))
	}
	cmd.Stderr = cmd.Stdout

	e.log.Infow("launching stage agent",
		logger.FieldStage, spec.Name,
		logger.FieldCommand, args[0],
		logger.FieldWorkDir, spec.WorkDir,
		logger.FieldTimeout, spec.Timeout.String(),
		logger.FieldLogFile, logPath)

	if err := cmd.Start(); err != nil {
		return fail(errors.Wrapf(err, "failed to launch %q", args[0]))
	}

	h := &handle{cmd: cmd, exited: make(chan int, 1)}

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			sink.WriteLine(security.Sanitize(scanner.Text()))
		}
	}()

	go func() {
		<-streamDone // Wait must not race the stdout pipe reader
		err := cmd.Wait()
		h.exited <- exitCode(err)
	}()

	waitCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	var detection Detection
	if spec.Marker == "" {
		detection = awaitExitOnly(waitCtx, h.exited)
	} else {
		detection = e.signal.Await(waitCtx, spec.WorkDir, spec.Marker, h.exited)
	}

	switch detection.Kind {
	case DetectionCompleted:
		result.Metadata = detection.Metadata
		if detection.Exited {
			result.ExitCode = detection.ExitCode
		} else {
			// The agent considers itself done; it has no further
			// business running
			result.ExitCode = e.terminate(h)
		}
		outputs, missing := resolveOutputs(spec.WorkDir, spec.RequiredOutputs)
		if len(missing) > 0 {
			err := errors.Wrapf(errors.ErrIncompleteOutputs,
				"stage %s signalled completion but outputs are missing: %s",
				spec.Name, strings.Join(missing, ", "))
			return fail(errors.WithHint(err, "the agent may have written outputs to the wrong location"))
		}
		result.Success = true
		result.Outputs = outputs

	case DetectionProcessExited:
		result.ExitCode = detection.ExitCode
		if spec.Marker == "" && detection.ExitCode == 0 {
			outputs, missing := resolveOutputs(spec.WorkDir, spec.RequiredOutputs)
			if len(missing) > 0 {
				return fail(errors.Wrapf(errors.ErrIncompleteOutputs,
					"stage %s exited cleanly but outputs are missing: %s",
					spec.Name, strings.Join(missing, ", ")))
			}
			result.Success = true
			result.Outputs = outputs
			break
		}
		err := errors.Wrapf(errors.ErrExitedWithoutMarker,
			"stage %s agent exited with code %d before signalling completion",
			spec.Name, detection.ExitCode)
		return fail(errors.WithHintf(err, "check %s for the agent's last output", logPath))

	case DetectionTimedOut:
		exit := e.terminate(h)
		result.ExitCode = exit
		return fail(errors.Wrapf(errors.ErrStageTimeout,
			"stage %s exceeded its %s timeout", spec.Name, spec.Timeout))

	case DetectionAborted:
		exit := e.terminate(h)
		result.ExitCode = exit
		return fail(errors.Wrapf(ctx.Err(), "stage %s aborted", spec.Name))
	}

	result.Elapsed = time.Since(start)
	e.log.Infow("stage agent finished",
		logger.FieldStage, spec.Name,
		logger.FieldSuccess, result.Success,
		logger.FieldExitCode, result.ExitCode,
		logger.FieldDurationMS, result.Elapsed.Milliseconds())
	return result
}

// awaitExitOnly supervises a marker-less stage: only exit or deadline end it
func awaitExitOnly(ctx context.Context, exited <-chan int) Detection {
	select {
	case code := <-exited:
		return Detection{Kind: DetectionProcessExited, Exited: true, ExitCode: code}
	case <-ctx.Done():
		if ctx.Err() == context.Canceled {
			return Detection{Kind: DetectionAborted}
		}
		return Detection{Kind: DetectionTimedOut}
	}
}

// terminate stops the child: SIGTERM, a grace period, then SIGKILL.
// Returns the child's exit code, or -1 if it was already gone.
func (e *Executor) terminate(h *handle) int {
	select {
	case code := <-h.exited:
		return code
	default:
	}

	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already reaped between the check above and the signal
		select {
		case code := <-h.exited:
			return code
		case <-time.After(time.Second):
			return -1
		}
	}

	select {
	case code := <-h.exited:
		return code
	case <-time.After(e.killGrace):
	}

	e.log.Warnw("agent ignored SIGTERM, killing", "pid", h.cmd.Process.Pid)
	h.cmd.Process.Kill()
	select {
	case code := <-h.exited:
		return code
	case <-time.After(e.killGrace):
		return -1
	}
}

// resolveOutputs checks the required outputs exist and returns them as
// absolute paths, along with the logical names of any that are missing.
func resolveOutputs(workDir string, required map[string]string) (map[string]string, []string) {
	if len(required) == 0 {
		return nil, nil
	}
	outputs := make(map[string]string, len(required))
	var missing []string
	for name, rel := range required {
		abs := filepath.Join(workDir, rel)
		if _, err := os.Stat(abs); err != nil {
			missing = append(missing, name)
			continue
		}
		outputs[name] = abs
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, missing
	}
	return outputs, nil
}

// exitCode extracts the exit code from cmd.Wait's error
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
