// Package executor spawns CLI tool processes, streams their output,
// enforces timeouts with SIGTERM→SIGKILL escalation, and tracks running
// executions so they can be cancelled individually.
package executor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// timeoutGrace is how long a timed-out process gets between SIGTERM and
// SIGKILL.
const timeoutGrace = 5 * time.Second

// StreamKind identifies which stream a chunk arrived on.
type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
)

// OutputFunc receives output chunks as they arrive. Chunks are raw
// bytes, not lines; the callback must not retain the slice.
type OutputFunc func(kind StreamKind, chunk []byte)

// Request describes one process invocation.
type Request struct {
	Command string
	Args    []string
	Dir     string
	// Stdin, when non-empty, is written to the process and closed
	// immediately. Tools that take the prompt as an argument leave it
	// empty.
	Stdin    string
	OnOutput OutputFunc
	// Timeout of zero disables the executor's deadline; the caller owns
	// any external limit in that case.
	Timeout time.Duration
}

// Result is the raw outcome of one process run. Status classification
// happens separately in DetermineStatus.
type Result struct {
	ExitCode int
	TimedOut bool
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor runs one process per Run call and registers it for
// cancellation under the caller's execution id.
type Executor struct {
	registry *Registry
}

// New creates an executor backed by the given registry.
func New(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Registry returns the execution registry, for wiring cancellation.
func (e *Executor) Registry() *Registry { return e.registry }

// Run spawns the requested command and blocks until it exits and both
// output streams are drained. A spawn failure is returned as an error
// with command context; everything after a successful spawn is captured
// in the Result.
func (e *Executor) Run(ctx context.Context, executionID string, req Request) (*Result, error) {
	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Dir
	// Own process group, so timeout and cancel signals reach any
	// children the tool spawns, not just the tool itself. Without this
	// a surviving child holds the pipe write ends open and the drain
	// never finishes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdinPipe io.WriteCloser
	if req.Stdin != "" {
		p, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("spawn %s in %s: stdin pipe: %w", req.Command, req.Dir, err)
		}
		stdinPipe = p
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn %s in %s: stdout pipe: %w", req.Command, req.Dir, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn %s in %s: stderr pipe: %w", req.Command, req.Dir, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s %v in %s: %w", req.Command, req.Args, req.Dir, err)
	}

	h := e.registry.register(executionID, cmd.Process)
	defer e.registry.release(executionID, h)

	if stdinPipe != nil {
		// Write and close immediately; the tool reads the whole prompt
		// before producing output.
		go func() {
			_, _ = io.WriteString(stdinPipe, req.Stdin)
			_ = stdinPipe.Close()
		}()
	}

	var outBuf, errBuf syncBuffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		forward(stdout, StreamStdout, &outBuf, req.OnOutput)
	}()
	go func() {
		defer wg.Done()
		forward(stderr, StreamStderr, &errBuf, req.OnOutput)
	}()

	// Timeout path: SIGTERM at the deadline, SIGKILL after the grace
	// window if the process is still alive. procExited closes as soon
	// as the process is reaped, so a process that dies to the SIGTERM
	// never waits out the grace window and never sees the SIGKILL.
	var timedOut atomic.Bool
	procExited := make(chan struct{})
	if req.Timeout > 0 {
		timer := time.AfterFunc(req.Timeout, func() {
			timedOut.Store(true)
			_ = signalProcess(cmd.Process, syscall.SIGTERM)
			select {
			case <-procExited:
			case <-time.After(timeoutGrace):
				_ = signalProcess(cmd.Process, syscall.SIGKILL)
			}
		})
		defer timer.Stop()
	}

	// Context cancellation reuses the registry's escalation.
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.registry.Cancel(executionID)
		case <-ctxDone:
		}
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	duration := time.Since(start)
	close(procExited)
	close(ctxDone)

	exitCode := 0
	if waitErr != nil {
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			return nil, fmt.Errorf("wait %s: %w", req.Command, waitErr)
		}
	}

	return &Result{
		ExitCode: exitCode,
		TimedOut: timedOut.Load(),
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: duration,
	}, nil
}

// forward copies a stream to the accumulation buffer and the caller's
// callback chunk by chunk, with no line buffering.
func forward(r io.Reader, kind StreamKind, buf *syncBuffer, onOutput OutputFunc) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if onOutput != nil {
				onOutput(kind, chunk[:n])
			}
		}
		if err != nil {
			return
		}
	}
}

// syncBuffer is a mutex-guarded byte buffer; the two stream goroutines
// each own one, but Run reads them after wg.Wait so the lock also acts
// as a memory barrier.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	b.mu.Unlock()
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
