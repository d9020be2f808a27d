package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/outloud/internal/runfile"
)

func tempStore(t *testing.T) *runfile.Store {
	t.Helper()
	return runfile.NewStore(filepath.Join(t.TempDir(), "outloud.pid"))
}

func TestRunHoldsHandle(t *testing.T) {
	store := tempStore(t)
	sup := New(store)

	ran := false
	err := sup.Run(context.Background(), func(context.Context) error {
		ran = true
		pid, ok, err := store.Read()
		if err != nil || !ok {
			t.Errorf("Expected a handle during the run, got ok=%v err=%v", ok, err)
		}
		if pid != os.Getpid() {
			t.Errorf("Expected handle to point at this process, got %d", pid)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !ran {
		t.Fatal("Run function never executed")
	}

	if _, ok, _ := store.Read(); ok {
		t.Error("Expected the handle to be released after the run")
	}
}

func TestRunPreemptsPrevious(t *testing.T) {
	prev := exec.Command("sleep", "60")
	if err := prev.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = prev.Process.Kill()
		_ = prev.Wait()
	}()

	store := tempStore(t)
	if err := store.Acquire(prev.Process.Pid); err != nil {
		t.Fatal(err)
	}

	sup := New(store)
	err := sup.Run(context.Background(), func(context.Context) error {
		pid, ok, _ := store.Read()
		if !ok || pid != os.Getpid() {
			t.Errorf("Expected handle to point at the new run, got pid=%d ok=%v", pid, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := prev.Wait(); err == nil {
		t.Error("Expected the previous run to be terminated")
	}
}

func TestRunReleasesOnError(t *testing.T) {
	store := tempStore(t)
	sup := New(store)

	boom := errors.New("boom")
	if err := sup.Run(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected the run error to propagate, got %v", err)
	}
	if _, ok, _ := store.Read(); ok {
		t.Error("Expected the handle to be released after a failed run")
	}
}

func TestRunContextFlowsThrough(t *testing.T) {
	store := tempStore(t)
	sup := New(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sup.Run(ctx, func(runCtx context.Context) error {
		return runCtx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected cancellation to reach the run, got %v", err)
	}
}
