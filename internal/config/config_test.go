package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, yaml string) (Settings, error) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	s, err := loadFrom(t, "")
	require.NoError(t, err)

	assert.Equal(t, 10, s.MaxSteps)
	assert.Equal(t, 1, s.MinSteps)
	assert.Equal(t, 3, s.MaxRetries)
	assert.Equal(t, 30, s.TimeoutSeconds)
	assert.Equal(t, 1, s.MaxParallelCommands)
	assert.False(t, s.AutoRun)
	assert.InDelta(t, 0.1, s.QuestionProbability, 1e-9)
	assert.Equal(t, 100, s.MaxHistory)
	assert.NotEmpty(t, s.HistoryFile)
	assert.NotEmpty(t, s.BaseURL)
	assert.NotEmpty(t, s.Model)
	assert.Equal(t, 30*time.Second, s.Timeout())
	assert.Equal(t, 60*time.Second, s.RequestTimeout())
}

func TestLoadOverridesFromFile(t *testing.T) {
	s, err := loadFrom(t, `
max_retries: 5
timeout_seconds: 120
auto_run: true
question_probability: 0.5
model: test-model
`)
	require.NoError(t, err)

	assert.Equal(t, 5, s.MaxRetries)
	assert.Equal(t, 120, s.TimeoutSeconds)
	assert.True(t, s.AutoRun)
	assert.InDelta(t, 0.5, s.QuestionProbability, 1e-9)
	assert.Equal(t, "test-model", s.Model)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TERMPILOT_MODEL", "env-model")
	t.Setenv("TERMPILOT_MAX_RETRIES", "7")

	s, err := loadFrom(t, "")
	require.NoError(t, err)
	assert.Equal(t, "env-model", s.Model)
	assert.Equal(t, 7, s.MaxRetries)
}

func TestLoadClampsQuestionProbability(t *testing.T) {
	s, err := loadFrom(t, "question_probability: 3.5")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.QuestionProbability, 1e-9)

	s, err = loadFrom(t, "question_probability: -1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s.QuestionProbability, 1e-9)
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	_, err := loadFrom(t, "min_steps: 8\nmax_steps: 2")
	require.Error(t, err)
}

func TestLoadRejectsNegativeRetries(t *testing.T) {
	_, err := loadFrom(t, "max_retries: -2")
	require.Error(t, err)
}

func TestLoadExpandsHomeInPaths(t *testing.T) {
	s, err := loadFrom(t, "history_file: ~/custom/history.json")
	require.NoError(t, err)
	assert.NotContains(t, s.HistoryFile, "~")
	assert.True(t, filepath.IsAbs(s.HistoryFile))
}
