package executor

import (
	"os"
	"sync"
	"syscall"
	"time"
)

// killGrace is how long a cancelled process gets between SIGTERM and
// SIGKILL.
const killGrace = 2 * time.Second

// handle is a cancellable reference to one running child process.
type handle struct {
	proc *os.Process
	done chan struct{} // closed when the process has been reaped
}

// Registry maps execution ids to their running child processes so each
// execution can be cancelled independently. A handle only arms its own
// kill timer: a timer fired after the execution finished, or after the
// id was re-registered, does nothing.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*handle
}

// NewRegistry creates an empty execution registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*handle)}
}

// register tracks a spawned process under an execution id and returns
// the handle the executor must release when the process is reaped.
func (r *Registry) register(id string, proc *os.Process) *handle {
	h := &handle{proc: proc, done: make(chan struct{})}
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
	return h
}

// release marks the process reaped and drops the registration, unless a
// newer handle has already superseded it.
func (r *Registry) release(id string, h *handle) {
	close(h.done)
	r.mu.Lock()
	if r.handles[id] == h {
		delete(r.handles, id)
	}
	r.mu.Unlock()
}

// Cancel sends SIGTERM to the execution's process and schedules a
// SIGKILL after the grace window. Returns false (no-op) when the id has
// no running process.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	_ = signalProcess(h.proc, syscall.SIGTERM)

	go func() {
		select {
		case <-h.done:
			return
		case <-time.After(killGrace):
		}
		// Stale-timer guard: only escalate while this handle is still
		// the one registered for the id.
		r.mu.Lock()
		current := r.handles[id] == h
		r.mu.Unlock()
		if current {
			_ = signalProcess(h.proc, syscall.SIGKILL)
		}
	}()
	return true
}

// CancelAll cancels every running execution and returns how many were
// signalled. Used on host SIGINT/SIGTERM.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	n := 0
	for _, id := range ids {
		if r.Cancel(id) {
			n++
		}
	}
	return n
}

// Active returns the number of running executions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// signalProcess sends sig to the process group led by proc, so any
// children the tool spawned are signalled too. An already-exited group
// is treated as success.
func signalProcess(proc *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-proc.Pid, sig)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
