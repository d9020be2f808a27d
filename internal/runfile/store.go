// Package runfile persists the identity of the active pipeline run at a
// well-known path, so a later invocation can discover and terminate it.
package runfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// DefaultPath is the well-known handle location shared by every invocation.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "outloud.pid")
}

// Store reads and writes the run handle file. Writes go through a temp file
// and rename, so readers never observe a torn handle; beyond that the
// protocol is last-writer-wins.
type Store struct {
	path string
	log  *log.Logger
}

// NewStore returns a store at path, or at DefaultPath when path is empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path, log: log.WithPrefix("runfile")}
}

// Path returns the handle file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the persisted PID. ok is false when no usable handle exists;
// unparsable content counts as absent, not as an error.
func (s *Store) Read() (pid int, ok bool, err error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("unable to read run handle: %w", err)
	}

	pid, perr := strconv.Atoi(strings.TrimSpace(string(b)))
	if perr != nil || pid <= 0 {
		return 0, false, nil
	}
	return pid, true, nil
}

// Acquire persists pid as the active handle, atomically replacing whatever
// was there.
func (s *Store) Acquire(pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".outloud-*")
	if err != nil {
		return fmt.Errorf("unable to create run handle: %w", err)
	}
	_, werr := fmt.Fprintf(tmp, "%d\n", pid)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("unable to write run handle: %w", errors.Join(werr, cerr))
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("unable to persist run handle: %w", err)
	}
	return nil
}

// Release removes the handle. A handle already gone is a success: the run it
// named may have been preempted and cleaned up by a newer invocation.
func (s *Store) Release() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to remove run handle: %w", err)
	}
	return nil
}

// Preempt forcibly terminates whatever run the handle points at, then
// removes the handle. A dead process, a foreign process and a missing or
// garbled file are expected races and succeed silently.
func (s *Store) Preempt() error {
	pid, ok, err := s.Read()
	if err != nil {
		return err
	}
	if ok {
		switch err := unix.Kill(pid, unix.SIGKILL); {
		case err == nil:
			s.log.Debug("terminated previous run", "pid", pid)
		case errors.Is(err, unix.ESRCH) || errors.Is(err, unix.EPERM):
			s.log.Debug("stale run handle", "pid", pid, "err", err)
		default:
			return fmt.Errorf("unable to terminate run %d: %w", pid, err)
		}
	}
	return s.Release()
}
