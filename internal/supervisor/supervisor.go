package supervisor

import (
	"context"
	"os"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/outloud/internal/runfile"
)

// RunFunc is one pipeline run. It must honor context cancellation promptly:
// preemption of this process arrives as SIGKILL, but an in-process shutdown
// (signal, supervisor teardown) arrives through the context.
type RunFunc func(context.Context) error

// Supervisor brackets a run with the handle protocol. It holds no state of
// its own across invocations; the handle file is the only cross-process
// truth, so a run that was SIGKILLed leaves its handle behind for the next
// invocation's preemption step to clean up.
type Supervisor struct {
	store *runfile.Store
	log   *log.Logger
}

// New returns a Supervisor over store.
func New(store *runfile.Store) *Supervisor {
	return &Supervisor{store: store, log: log.WithPrefix("supervisor")}
}

// Run preempts the previous run, persists this process as the active handle
// and blocks until fn returns. The handle is written before fn starts, so a
// newer invocation can always find us, and removed on the way out however fn
// ends.
func (s *Supervisor) Run(ctx context.Context, fn RunFunc) error {
	if err := s.store.Preempt(); err != nil {
		return err
	}
	if err := s.store.Acquire(os.Getpid()); err != nil {
		return err
	}
	defer func() {
		if err := s.store.Release(); err != nil {
			s.log.Warn("unable to release run handle", "err", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	return fn(runCtx)
}
