package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"termpilot/internal/oracle"
	"termpilot/internal/task"
)

func newTestPrinter() (*Printer, *bytes.Buffer) {
	color.NoColor = true
	out := &bytes.Buffer{}
	return NewPrinter(out), out
}

func TestPlanRendering(t *testing.T) {
	p, out := newTestPrinter()
	p.Plan(&oracle.Plan{
		Summary: "set up the project",
		Subtasks: []oracle.SubtaskDraft{
			{Description: "create the directory", Commands: []string{"mkdir -p proj"}},
			{Description: "initialize git", Commands: []string{"git init"}, DependsOn: []int{0}},
		},
	})

	s := out.String()
	assert.Contains(t, s, "set up the project")
	assert.Contains(t, s, "I'll break this down into 2 subtasks:")
	assert.Contains(t, s, "1. create the directory")
	assert.Contains(t, s, "mkdir -p proj")
	assert.Contains(t, s, "after: 1")
}

func TestAttemptResultVariants(t *testing.T) {
	p, out := newTestPrinter()
	finished := time.Now()
	zero, seven := 0, 7

	p.AttemptResult(task.Attempt{StartedAt: finished, FinishedAt: &finished, ExitCode: &zero})
	assert.Contains(t, out.String(), "Done")

	out.Reset()
	p.AttemptResult(task.Attempt{StartedAt: finished, FinishedAt: &finished, ExitCode: &seven})
	assert.Contains(t, out.String(), "exit 7")

	out.Reset()
	p.AttemptResult(task.Attempt{StartedAt: finished, FinishedAt: &finished, TimedOut: true})
	assert.Contains(t, out.String(), "Timed out")
}

func TestTaskResultListsFailedSubtasks(t *testing.T) {
	p, out := newTestPrinter()
	tk := task.New("doomed")
	tk.Subtasks = []*task.Subtask{
		{Index: 0, Status: task.SubtaskSucceeded},
		{Index: 1, Status: task.SubtaskFailed, FailReason: "recovery attempts exhausted"},
	}
	tk.Finish(task.StatusFailed)

	p.TaskResult(tk)
	s := out.String()
	assert.Contains(t, s, "Task failed.")
	assert.Contains(t, s, "subtask 2:")
	assert.Contains(t, s, "recovery attempts exhausted")
}

func TestBlockedShowsRule(t *testing.T) {
	p, out := newTestPrinter()
	p.Blocked("rm -rf /", "recursive delete of root-like path")
	s := out.String()
	assert.Contains(t, s, "Blocked:")
	assert.Contains(t, s, "rm -rf /")
	assert.Contains(t, s, "recursive delete of root-like path")
}
