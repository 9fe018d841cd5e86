package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/imamik/dropship/internal/util/naming"
)

// ErrLocked is returned when another run holds the output directory.
var ErrLocked = errors.New("output directory is locked by another run")

// RunLock is an exclusive lock file in an output directory.
type RunLock struct {
	path string
}

// AcquireRunLock creates <dir>/.dropship.lock holding the current PID.
func AcquireRunLock(dir string) (*RunLock, error) {
	path := filepath.Join(dir, naming.LockFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		owner := "unknown"
		if data, rerr := os.ReadFile(path); rerr == nil {
			owner = strings.TrimSpace(string(data))
		}
		return nil, fmt.Errorf("%w: pid %s (remove %s if stale)", ErrLocked, owner, path)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	return &RunLock{path: path}, nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string { return l.path }

// Release removes the lock file. Releasing twice is a no-op.
func (l *RunLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
