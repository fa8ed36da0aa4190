// Package executor runs shell commands as child processes with live output
// streaming and a hard wall-clock timeout. A finished process is always
// reported as a task.Attempt; a non-zero exit status is data, not an error.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"termpilot/internal/logging"
	"termpilot/internal/task"
)

// tailLimit caps how much of each stream an Attempt retains for recovery
// prompts and history.
const tailLimit = 4096

// pipeGrace is how long Wait may linger on the output pipes after the
// process exits or the context fires. A backgrounded child inherits the
// pipes and would otherwise hold Execute open indefinitely.
const pipeGrace = 500 * time.Millisecond

// Options control a single execution.
type Options struct {
	// Dir is the working directory; empty means the process inherits ours.
	Dir string
	// Timeout is the hard wall-clock limit. Zero means no limit.
	Timeout time.Duration
	// Stdout and Stderr receive the streams live as the process produces
	// them. Either may be nil.
	Stdout io.Writer
	Stderr io.Writer
	// Shell selects the interpreter: "sh" or "cmd". Empty means "sh".
	Shell string
}

// Engine spawns commands through the platform shell.
type Engine struct {
	logger *logging.Logger
}

func NewEngine() *Engine {
	return &Engine{logger: logging.NewComponentLogger("Executor")}
}

// Execute runs the command and blocks until it exits or the timeout fires.
// The shell runs in its own process group and the whole group is killed on
// timeout or cancellation, so descendants cannot outlive the deadline.
// The returned error covers only spawn failures and cancellation; command
// outcomes, including non-zero exits and timeouts, are reported inside the
// Attempt.
func (e *Engine) Execute(ctx context.Context, command string, opts Options) (task.Attempt, error) {
	attempt := task.Attempt{
		Command:   command,
		StartedAt: time.Now(),
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := buildCommand(runCtx, command, opts.Shell)
	cmd.Dir = opts.Dir
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = pipeGrace

	var stdoutTail, stderrTail tailBuffer
	cmd.Stdout = &streamWriter{live: opts.Stdout, tail: &stdoutTail}
	cmd.Stderr = &streamWriter{live: opts.Stderr, tail: &stderrTail}

	if err := cmd.Start(); err != nil {
		return attempt, err
	}
	e.logger.Debug("started pid %d: %s", cmd.Process.Pid, command)

	waitErr := cmd.Wait()

	finished := time.Now()
	attempt.FinishedAt = &finished
	attempt.StdoutTail = stdoutTail.String()
	attempt.StderrTail = stderrTail.String()

	if runCtx.Err() == context.DeadlineExceeded {
		attempt.TimedOut = true
		e.logger.Warn("command timed out after %s: %s", opts.Timeout, command)
		return attempt, nil
	}
	if runCtx.Err() != nil {
		// Parent cancellation, not a timeout.
		attempt.TimedOut = true
		return attempt, runCtx.Err()
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(waitErr, exec.ErrWaitDelay):
			// The shell exited but a descendant still holds the pipes;
			// the grace period expired and the rest of the stream was
			// abandoned. The exit status is still authoritative.
			exitCode = cmd.ProcessState.ExitCode()
		case errors.As(waitErr, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return attempt, waitErr
		}
	}
	attempt.ExitCode = &exitCode

	e.logger.Debug("pid %d exited with code %d after %s", cmd.Process.Pid, exitCode, attempt.Duration())
	return attempt, nil
}

func buildCommand(ctx context.Context, command, shell string) *exec.Cmd {
	if shell == "cmd" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// streamWriter tees a stream to the caller's live writer while keeping a
// bounded tail for the Attempt record.
type streamWriter struct {
	live io.Writer
	tail *tailBuffer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if w.live != nil {
		_, _ = w.live.Write(p)
	}
	return w.tail.Write(p)
}

// tailBuffer keeps the last tailLimit bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf.Write(p)
	if t.buf.Len() > tailLimit {
		data := t.buf.Bytes()
		trimmed := make([]byte, tailLimit)
		copy(trimmed, data[len(data)-tailLimit:])
		t.buf.Reset()
		t.buf.Write(trimmed)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
