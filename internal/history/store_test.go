package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpilot/internal/task"
)

func attemptWithExit(command string, code int) task.Attempt {
	started := time.Now().Add(-50 * time.Millisecond)
	finished := time.Now()
	return task.Attempt{
		Command:    command,
		StartedAt:  started,
		FinishedAt: &finished,
		ExitCode:   &code,
	}
}

func TestRecordAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	store, err := NewStore(path, 100)
	require.NoError(t, err)

	require.NoError(t, store.Record(attemptWithExit("ls -la", 0)))
	require.NoError(t, store.Record(attemptWithExit("cat missing.txt", 1)))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ls -la", entries[0].Command)
	require.NotNil(t, entries[0].ExitCode)
	assert.Equal(t, 0, *entries[0].ExitCode)
	assert.Equal(t, "cat missing.txt", entries[1].Command)
	require.NotNil(t, entries[1].ExitCode)
	assert.Equal(t, 1, *entries[1].ExitCode)
	assert.GreaterOrEqual(t, entries[0].DurationMs, int64(0))
}

func TestListCapsAtMax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	store, err := NewStore(path, 3)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(attemptWithExit("echo", 0)))
	}

	entries, err := store.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestListMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	store, err := NewStore(path, 10)
	require.NoError(t, err)

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	store, err := NewStore(path, 10)
	require.NoError(t, err)
	require.NoError(t, store.Record(attemptWithExit("pwd", 0)))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, store.Record(attemptWithExit("whoami", 0)))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pwd", entries[0].Command)
	assert.Equal(t, "whoami", entries[1].Command)
}

func TestRecordTimedOutAttempt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	store, err := NewStore(path, 10)
	require.NoError(t, err)

	started := time.Now()
	finished := started.Add(30 * time.Second)
	require.NoError(t, store.Record(task.Attempt{
		Command:    "sleep 600",
		StartedAt:  started,
		FinishedAt: &finished,
		TimedOut:   true,
	}))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].TimedOut)
	assert.Nil(t, entries[0].ExitCode)
}
