package executor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteSuccess(t *testing.T) {
	e := NewEngine()
	var stdout bytes.Buffer

	attempt, err := e.Execute(context.Background(), "echo hello", Options{Stdout: &stdout})
	require.NoError(t, err)

	require.NotNil(t, attempt.ExitCode)
	assert.Equal(t, 0, *attempt.ExitCode)
	assert.True(t, attempt.Succeeded())
	assert.False(t, attempt.TimedOut)
	assert.Equal(t, "hello\n", stdout.String())
	assert.Equal(t, "hello\n", attempt.StdoutTail)
	require.NotNil(t, attempt.FinishedAt)
}

func TestExecuteNonZeroExitIsNotAnError(t *testing.T) {
	e := NewEngine()

	attempt, err := e.Execute(context.Background(), "exit 3", Options{})
	require.NoError(t, err)

	require.NotNil(t, attempt.ExitCode)
	assert.Equal(t, 3, *attempt.ExitCode)
	assert.False(t, attempt.Succeeded())
}

func TestExecuteCapturesStderr(t *testing.T) {
	e := NewEngine()
	var stderr bytes.Buffer

	attempt, err := e.Execute(context.Background(), "echo oops >&2; exit 1", Options{Stderr: &stderr})
	require.NoError(t, err)

	assert.Equal(t, "oops\n", stderr.String())
	assert.Equal(t, "oops\n", attempt.StderrTail)
	require.NotNil(t, attempt.ExitCode)
	assert.Equal(t, 1, *attempt.ExitCode)
}

func TestExecuteTimeout(t *testing.T) {
	e := NewEngine()

	start := time.Now()
	attempt, err := e.Execute(context.Background(), "sleep 5", Options{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)

	assert.True(t, attempt.TimedOut)
	assert.Nil(t, attempt.ExitCode)
	assert.False(t, attempt.Succeeded())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteWorkingDirectory(t *testing.T) {
	e := NewEngine()
	dir := t.TempDir()
	var stdout bytes.Buffer

	_, err := e.Execute(context.Background(), "pwd", Options{Dir: dir, Stdout: &stdout})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), dir)
}

func TestExecuteBoundsOutputTail(t *testing.T) {
	e := NewEngine()

	attempt, err := e.Execute(context.Background(), "head -c 20000 /dev/zero | tr '\\0' 'x'", Options{})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(attempt.StdoutTail), tailLimit)
	assert.NotEmpty(t, attempt.StdoutTail)
}

func TestExecuteParentCancellation(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	attempt, err := e.Execute(ctx, "echo partial; sleep 20", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, attempt.TimedOut)
	assert.Less(t, time.Since(start), 3*time.Second)

	// Output produced before the abort survives in the Attempt.
	assert.Contains(t, attempt.StdoutTail, "partial")
}

func TestExecuteBackgroundChildDoesNotHoldReturn(t *testing.T) {
	e := NewEngine()

	start := time.Now()
	attempt, err := e.Execute(context.Background(), "sleep 10 & echo started", Options{Timeout: 5 * time.Second})
	require.NoError(t, err)

	// The shell exits immediately; the backgrounded sleep keeps the pipes
	// open but must not delay Execute past the pipe grace window.
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, attempt.TimedOut)
	require.NotNil(t, attempt.ExitCode)
	assert.Equal(t, 0, *attempt.ExitCode)
	assert.Contains(t, attempt.StdoutTail, "started")
}

func TestExecuteTimeoutKillsProcessGroup(t *testing.T) {
	e := NewEngine()

	start := time.Now()
	attempt, err := e.Execute(context.Background(), "sleep 30 & wait", Options{Timeout: 500 * time.Millisecond})
	require.NoError(t, err)

	assert.True(t, attempt.TimedOut)
	assert.Nil(t, attempt.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}
