package oracle

import (
	"fmt"
	"strings"
	"time"

	"termpilot/internal/task"
)

const planningSystemPrompt = `You are a task planning agent for a terminal assistant.
You break a user's natural-language task into an ordered list of shell subtasks.

Return a JSON object with this exact structure and nothing else:
{
  "task_summary": "brief restatement of the task",
  "subtasks": [
    {
      "description": "what this step accomplishes",
      "commands": ["primary command"],
      "fallback_commands": ["alternative command"],
      "depends_on": [0]
    }
  ]
}

Rules:
- "depends_on" lists zero-based indexes of earlier subtasks this step needs; omit or leave empty when independent.
- A subtask may only depend on subtasks that appear before it.
- Commands must be non-interactive and runnable as-is in the user's shell.
- Prefer the minimum number of subtasks that accomplishes the task.`

const generationSystemPrompt = `You are a terminal command generator.
Given one subtask of a larger plan, respond with a JSON object and nothing else:
{"type": "command", "text": "<the shell command>"}
or, if you genuinely cannot proceed without information only the user has:
{"type": "question", "text": "<one specific question>"}

Rules:
- Commands must be non-interactive and runnable as-is.
- Never wrap the JSON in markdown fences or add commentary.
- Ask a question only as a last resort.`

const recoverySystemPrompt = `You are a terminal command error recovery specialist.
A command failed. Analyze the failure and produce a corrected command.

Respond with a JSON object and nothing else:
{"type": "command", "text": "<the corrected shell command>"}
or, if the failure cannot be resolved without information only the user has:
{"type": "question", "text": "<one specific question>"}

Rules:
- NEVER REPEAT THE EXACT FAILED COMMAND.
- The replacement must be non-interactive and runnable as-is.
- Address the specific error, not the task in general.`

// noQuestionsInstruction is appended when clarification surfacing is
// suppressed and the model must commit to a command.
const noQuestionsInstruction = `
- Do not ask questions in this response. Choose sensible defaults and return a command.`

func environmentBlock(snap task.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Working directory: %s\n", snap.WorkingDirectory)
	fmt.Fprintf(&b, "Operating system: %s (shell: %s)\n", snap.Platform.OS, snap.Platform.ShellKind)
	return b.String()
}

func planningUserPrompt(taskDescription string, snap task.Snapshot, history string, minSteps, maxSteps, maxPhases int) string {
	var b strings.Builder
	b.WriteString("## Task\n")
	b.WriteString(taskDescription)
	b.WriteString("\n\n## Environment\n")
	b.WriteString(environmentBlock(snap))
	fmt.Fprintf(&b, "\n## Limits\nUse between %d and %d subtasks. Dependency chains may be at most %d phases deep.\n", minSteps, maxSteps, maxPhases)
	if history != "" {
		b.WriteString("\n## Recent conversation\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	return b.String()
}

func generationUserPrompt(taskDescription, subtaskDescription string, snap task.Snapshot, history string) string {
	var b strings.Builder
	b.WriteString("## Overall task\n")
	b.WriteString(taskDescription)
	b.WriteString("\n\n## Current subtask\n")
	b.WriteString(subtaskDescription)
	b.WriteString("\n\n## Environment\n")
	b.WriteString(environmentBlock(snap))
	if history != "" {
		b.WriteString("\n## Recent conversation\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	return b.String()
}

func recoveryUserPrompt(taskDescription, subtaskDescription, failedCommand, errorOutput string, snap task.Snapshot) string {
	var b strings.Builder
	b.WriteString("## Original objective\n")
	b.WriteString(taskDescription)
	b.WriteString("\n\n## Subtask being attempted\n")
	b.WriteString(subtaskDescription)
	b.WriteString("\n\n## Failed command\n`")
	b.WriteString(failedCommand)
	b.WriteString("`\n\n## Error output\n")
	if errorOutput == "" {
		b.WriteString("(no output captured)")
	} else {
		b.WriteString(errorOutput)
	}
	b.WriteString("\n\n## Environment\n")
	b.WriteString(environmentBlock(snap))
	fmt.Fprintf(&b, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	return b.String()
}
