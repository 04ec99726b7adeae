package pipeline

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

// LockFileName is the advisory single-writer lock beside the state file
const LockFileName = "pipeline_state.lock"

// StateLock is a best-effort advisory lock preventing two orchestrators
// from supervising the same run. It does not survive hostile actors or
// shared filesystems; the single-writer assumption remains a documented
// precondition, the lock just catches the common accident.
type StateLock struct {
	path string
}

// AcquireLock takes the advisory lock for a workspace. A lock file left
// behind by a dead process (PID no longer alive) is reclaimed.
func AcquireLock(workDir string) (*StateLock, error) {
	lockDir := filepath.Join(workDir, StateDirName)
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}
	path := filepath.Join(lockDir, LockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, errors.New("failed to write lock file")
			}
			return &StateLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "failed to create lock file")
		}

		// Lock exists; reclaim it only if the holder is gone
		holder, readErr := readLockHolder(path)
		if readErr == nil && holder > 0 {
			alive, _ := process.PidExists(int32(holder))
			if alive {
				err := errors.Wrapf(errors.ErrLocked, "held by pid %d", holder)
				return nil, errors.WithHint(err, "another orchestrator is supervising this run")
			}
		}
		os.Remove(path)
	}

	return nil, errors.Wrap(errors.ErrLocked, "could not acquire lock after reclaim")
}

// Release removes the lock file
func (l *StateLock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to release state lock")
	}
	return nil
}

func readLockHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
