package task

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTurnEvictsOldest(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.RecordTurn("user", fmt.Sprintf("turn %d", i))
	}

	snap := s.CurrentContext()
	require.Len(t, snap.Turns, 3)
	assert.Equal(t, "turn 2", snap.Turns[0].Content)
	assert.Equal(t, "turn 4", snap.Turns[2].Content)
}

func TestCurrentContextReturnsCopy(t *testing.T) {
	s := NewStore(10)
	s.RecordTurn("user", "original")

	snap := s.CurrentContext()
	snap.Turns[0].Content = "mutated"

	again := s.CurrentContext()
	assert.Equal(t, "original", again.Turns[0].Content)
}

func TestSetWorkingDirectory(t *testing.T) {
	s := NewStore(10)
	dir := t.TempDir()

	require.NoError(t, s.SetWorkingDirectory(dir))
	assert.Equal(t, dir, s.WorkingDirectory())
}

func TestSetWorkingDirectoryRelative(t *testing.T) {
	s := NewStore(10)
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "sub"), 0o755))
	require.NoError(t, s.SetWorkingDirectory(base))

	require.NoError(t, s.SetWorkingDirectory("sub"))
	assert.Equal(t, filepath.Join(base, "sub"), s.WorkingDirectory())
}

func TestSetWorkingDirectoryRejectsMissing(t *testing.T) {
	s := NewStore(10)
	before := s.WorkingDirectory()

	err := s.SetWorkingDirectory(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.Equal(t, before, s.WorkingDirectory())
}

func TestSetWorkingDirectoryRejectsFile(t *testing.T) {
	s := NewStore(10)
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	err := s.SetWorkingDirectory(file)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestSnapshotForPromptPrefersRecentTurns(t *testing.T) {
	s := NewStore(200)
	for i := 0; i < 200; i++ {
		s.RecordTurn("user", fmt.Sprintf("message number %d with some padding text to consume tokens", i))
	}

	prompt := s.SnapshotForPrompt()
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "message number 199")
	// The oldest turns should have been cut by the token budget.
	assert.NotContains(t, prompt, "message number 0 ")
}

func TestActiveTaskRoundTrip(t *testing.T) {
	s := NewStore(10)
	assert.Nil(t, s.ActiveTask())

	tk := New("list files")
	s.SetActiveTask(tk)
	assert.Same(t, tk, s.ActiveTask())
}
