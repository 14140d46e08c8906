package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ErrPIDFileMissing is returned by Check when the marker disappeared after startup.
var ErrPIDFileMissing = errors.New("pid file missing")

// PIDFile is the on-disk process identity marker. It is written once at
// startup and removed at most once during clean shutdown.
type PIDFile struct {
	path string
	pid  int

	once      sync.Once
	removeErr error
}

// WritePIDFile writes the current process id as decimal text to path,
// replacing any stale file.
func WritePIDFile(path string) (*PIDFile, error) {
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file %s: %w", path, err)
	}
	return &PIDFile{path: path, pid: pid}, nil
}

// Path returns the marker location.
func (p *PIDFile) Path() string {
	return p.path
}

// Check verifies the marker still exists and names this process.
func (p *PIDFile) Check() error {
	pid, err := ReadPID(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrPIDFileMissing, p.path)
	}
	if err != nil {
		return err
	}
	if pid != p.pid {
		return fmt.Errorf("pid file %s names process %d, expected %d", p.path, pid, p.pid)
	}
	return nil
}

// Remove deletes the marker. Only the first call touches the filesystem;
// later calls return the first call's result.
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	p.once.Do(func() {
		if err := os.Remove(p.path); err != nil {
			p.removeErr = fmt.Errorf("remove pid file %s: %w", p.path, err)
		}
	})
	return p.removeErr
}

// ReadPID reads a pid file written by WritePIDFile.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}
