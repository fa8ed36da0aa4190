// Package task defines the task/subtask/attempt data model and the process-wide
// context store shared across tasks.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusCreated               Status = "created"
	StatusPlanning              Status = "planning"
	StatusExecuting             Status = "executing"
	StatusAwaitingClarification Status = "awaiting_clarification"
	StatusRecovering            Status = "recovering"
	StatusCompleted             Status = "completed"
	StatusFailed                Status = "failed"
)

// Terminal reports whether a task in this status will never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SubtaskStatus is the lifecycle state of a Subtask.
type SubtaskStatus string

const (
	SubtaskPending              SubtaskStatus = "pending"
	SubtaskAwaitingCommand      SubtaskStatus = "awaiting_command"
	SubtaskAwaitingConfirmation SubtaskStatus = "awaiting_confirmation"
	SubtaskRunning              SubtaskStatus = "running"
	SubtaskSucceeded            SubtaskStatus = "succeeded"
	SubtaskFailed               SubtaskStatus = "failed"
)

// Attempt is one concrete execution of a command for a Subtask. It is
// append-only: once FinishedAt is set the record is never mutated.
type Attempt struct {
	Command    string     `json:"command"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	StdoutTail string     `json:"stdout_tail,omitempty"`
	StderrTail string     `json:"stderr_tail,omitempty"`
	TimedOut   bool       `json:"timed_out"`
}

// Succeeded reports whether the attempt finished with exit code zero.
func (a Attempt) Succeeded() bool {
	return !a.TimedOut && a.ExitCode != nil && *a.ExitCode == 0
}

// Duration returns wall-clock time of the attempt, zero if still running.
func (a Attempt) Duration() time.Duration {
	if a.FinishedAt == nil {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Subtask is one atomic unit of work within a Task's plan. Index values are
// unique within a Task and a subtask may only depend on lower indices.
type Subtask struct {
	Index       int           `json:"index"`
	Description string        `json:"description"`
	DependsOn   []int         `json:"depends_on,omitempty"`
	Command     string        `json:"command,omitempty"`
	Fallbacks   []string      `json:"fallbacks,omitempty"`
	Attempts    []Attempt     `json:"attempts,omitempty"`
	Status      SubtaskStatus `json:"status"`
	FailReason  string        `json:"fail_reason,omitempty"`
}

// LastAttempt returns the most recent attempt, or nil if none ran.
func (s *Subtask) LastAttempt() *Attempt {
	if len(s.Attempts) == 0 {
		return nil
	}
	return &s.Attempts[len(s.Attempts)-1]
}

// Task is one natural-language request turned into an ordered plan.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Subtasks    []*Subtask `json:"subtasks,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a Task in the Created state.
func New(description string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StatusCreated,
		CreatedAt:   time.Now(),
	}
}

// Finish moves the task to a terminal status and stamps completion time.
func (t *Task) Finish(status Status) {
	t.Status = status
	now := time.Now()
	t.CompletedAt = &now
}
