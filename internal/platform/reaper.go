package platform

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/virtbridge/vmcourier/internal/logging"
)

// Reaper collects children the kernel reparents onto the agent when it
// runs as PID 1 inside a VM. Exit statuses are recorded by pid so an
// exec call, which is the logical owner of its child, can still observe
// an exit the reaper physically collected first (see Process.TryWait).
type Reaper struct {
	logger logging.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	record map[int]int // pid -> exit code
}

func NewReaper(logger logging.Logger) *Reaper {
	return &Reaper{
		logger: logger,
		done:   make(chan struct{}),
		record: make(map[int]int),
	}
}

// Start begins reaping if the agent is PID 1; otherwise it does
// nothing. Wait4 always runs with WNOHANG so the loop never blocks.
func (r *Reaper) Start() {
	if os.Getpid() != 1 {
		close(r.done)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.logger.Info(ctx, "running as pid 1, starting zombie reaper")

	sigchld := make(chan os.Signal, 16)
	signal.Notify(sigchld, unix.SIGCHLD)

	go func() {
		defer close(r.done)
		defer signal.Stop(sigchld)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigchld:
				r.reapAll(ctx)
			}
		}
	}()
}

func (r *Reaper) reapAll(ctx context.Context) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// ECHILD just means there is nothing left to reap.
			if err != unix.ECHILD {
				r.logger.Warn(ctx, "wait4 failed", "error", err)
			}
			return
		}
		if pid <= 0 {
			return
		}
		code := exitCode(ws)
		r.note(pid, code)
		r.logger.Debug(ctx, "reaped child", "pid", pid, "code", code)
	}
}

// Stop shuts the reap loop down, waiting up to timeout for it to exit.
func (r *Reaper) Stop(timeout time.Duration) {
	if r.cancel != nil {
		r.cancel()
	}
	select {
	case <-r.done:
	case <-time.After(timeout):
		r.logger.Warn(context.Background(), "reaper did not stop in time")
	}
}

// Reaped reports the recorded exit code for pid, if the reaper
// collected it. Safe on a nil receiver so non-PID-1 processes can skip
// wiring a reaper entirely.
func (r *Reaper) Reaped(pid int) (int, bool) {
	if r == nil {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.record[pid]
	return code, ok
}

func (r *Reaper) note(pid, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Bound the record; entries for long-gone pids are worthless once
	// their call has finished.
	if len(r.record) >= 1024 {
		for p := range r.record {
			delete(r.record, p)
			if len(r.record) <= 896 {
				break
			}
		}
	}
	r.record[pid] = code
}
