// Package display renders plans, execution progress and results to the
// terminal with consistent coloring.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"termpilot/internal/oracle"
	"termpilot/internal/task"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold).SprintFunc()
	successColor  = color.New(color.FgGreen).SprintFunc()
	failureColor  = color.New(color.FgRed).SprintFunc()
	warnColor     = color.New(color.FgYellow).SprintFunc()
	commandColor  = color.New(color.FgWhite, color.Bold).SprintFunc()
	questionColor = color.New(color.FgMagenta, color.Bold).SprintFunc()
	dimColor      = color.New(color.Faint).SprintFunc()
)

// Printer writes human-facing output. All orchestration output funnels
// through it so tests can capture a buffer instead of the terminal.
type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out}
}

// Out exposes the underlying writer for streaming command output.
func (p *Printer) Out() io.Writer {
	return p.out
}

// Plan renders the proposed subtasks before confirmation.
func (p *Printer) Plan(plan *oracle.Plan) {
	if plan.Summary != "" {
		fmt.Fprintf(p.out, "%s %s\n", headerColor("Plan:"), plan.Summary)
	}
	fmt.Fprintf(p.out, "%s\n", headerColor(fmt.Sprintf("I'll break this down into %d subtasks:", len(plan.Subtasks))))
	for i, st := range plan.Subtasks {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, st.Description)
		if len(st.Commands) > 0 {
			fmt.Fprintf(p.out, "     %s\n", dimColor(strings.Join(st.Commands, " && ")))
		}
		if len(st.DependsOn) > 0 {
			deps := make([]string, len(st.DependsOn))
			for j, d := range st.DependsOn {
				deps[j] = fmt.Sprintf("%d", d+1)
			}
			fmt.Fprintf(p.out, "     %s\n", dimColor("after: "+strings.Join(deps, ", ")))
		}
	}
}

// SubtaskHeader announces which subtask is starting.
func (p *Printer) SubtaskHeader(index, total int, description string) {
	fmt.Fprintf(p.out, "\n%s %s\n", headerColor(fmt.Sprintf("SUBTASK %d/%d:", index+1, total)), description)
}

// Command shows the command about to run.
func (p *Printer) Command(command string) {
	fmt.Fprintf(p.out, "%s %s\n", dimColor("$"), commandColor(command))
}

// AttemptResult summarizes one finished attempt.
func (p *Printer) AttemptResult(attempt task.Attempt) {
	switch {
	case attempt.TimedOut:
		fmt.Fprintf(p.out, "%s after %s\n", failureColor("Timed out"), attempt.Duration().Round(10*time.Millisecond))
	case attempt.Succeeded():
		fmt.Fprintf(p.out, "%s in %s\n", successColor("Done"), attempt.Duration().Round(10*time.Millisecond))
	default:
		code := "?"
		if attempt.ExitCode != nil {
			code = fmt.Sprintf("%d", *attempt.ExitCode)
		}
		fmt.Fprintf(p.out, "%s (exit %s)\n", failureColor("Failed"), code)
	}
}

// Retrying announces a recovery attempt.
func (p *Printer) Retrying(attempt, maxAttempts int) {
	fmt.Fprintf(p.out, "%s\n", warnColor(fmt.Sprintf("Retrying (%d/%d)...", attempt, maxAttempts)))
}

// Question surfaces a clarification request from the model.
func (p *Printer) Question(text string) {
	fmt.Fprintf(p.out, "%s %s\n", questionColor("?"), text)
}

// Blocked explains why a command was refused.
func (p *Printer) Blocked(command, rule string) {
	fmt.Fprintf(p.out, "%s %s\n", failureColor("Blocked:"), commandColor(command))
	if rule != "" {
		fmt.Fprintf(p.out, "  %s\n", dimColor("matched rule: "+rule))
	}
}

// TaskResult prints the final task outcome.
func (p *Printer) TaskResult(t *task.Task) {
	switch t.Status {
	case task.StatusCompleted:
		fmt.Fprintf(p.out, "\n%s\n", successColor("Task completed."))
	case task.StatusFailed:
		fmt.Fprintf(p.out, "\n%s\n", failureColor("Task failed."))
		for _, st := range t.Subtasks {
			if st.Status == task.SubtaskFailed && st.FailReason != "" {
				fmt.Fprintf(p.out, "  %s %s\n", dimColor(fmt.Sprintf("subtask %d:", st.Index+1)), st.FailReason)
			}
		}
	}
}

// Info prints a neutral status line.
func (p *Printer) Info(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...interface{}) {
	fmt.Fprintf(p.out, "%s\n", warnColor(fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...interface{}) {
	fmt.Fprintf(p.out, "%s\n", failureColor(fmt.Sprintf(format, args...)))
}
