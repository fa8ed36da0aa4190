package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"termpilot/internal/logging"
	"termpilot/internal/task"
)

// Planning failure modes. ErrPlanningFailed wraps the last underlying cause
// after the malformed-response budget is spent.
var (
	ErrPlanTooSmall   = errors.New("plan has fewer subtasks than the minimum")
	ErrPlanTooLarge   = errors.New("plan has more subtasks than the maximum")
	ErrPlanTooDeep    = errors.New("plan dependency chain exceeds the phase limit")
	ErrPlanningFailed = errors.New("planning failed")
)

// malformedPlanRetries is how many additional attempts the planner makes when
// the model returns unparseable or structurally invalid plans.
const malformedPlanRetries = 2

// Plan is the parsed and validated output of a planning call.
type Plan struct {
	Summary  string
	Subtasks []SubtaskDraft
}

// SubtaskDraft is one planned step before it becomes a task.Subtask.
type SubtaskDraft struct {
	Description string
	DependsOn   []int
	Commands    []string
	Fallbacks   []string
}

type planPayload struct {
	TaskSummary string `json:"task_summary"`
	Subtasks    []struct {
		Description      string   `json:"description"`
		Commands         []string `json:"commands"`
		FallbackCommands []string `json:"fallback_commands"`
		DependsOn        []int    `json:"depends_on"`
	} `json:"subtasks"`
}

// Planner turns a task description into a validated Plan via the model.
type Planner struct {
	client    Client
	minSteps  int
	maxSteps  int
	maxPhases int
	logger    *logging.Logger
}

// NewPlanner builds a planner enforcing the configured step count range and
// the maximum number of sequential phases (the longest dependency chain a
// plan may contain).
func NewPlanner(client Client, minSteps, maxSteps, maxPhases int) *Planner {
	return &Planner{
		client:    client,
		minSteps:  minSteps,
		maxSteps:  maxSteps,
		maxPhases: maxPhases,
		logger:    logging.NewComponentLogger("Planner"),
	}
}

// Plan asks the model for an execution plan and validates it against the
// configured step limits. Malformed responses are retried a small fixed
// number of times; size violations are not retried within a single response
// but count against the same budget on the next attempt.
func (p *Planner) Plan(ctx context.Context, taskDescription string, snap task.Snapshot, history string) (*Plan, error) {
	messages := []Message{
		{Role: "system", Content: planningSystemPrompt},
		{Role: "user", Content: planningUserPrompt(taskDescription, snap, history, p.minSteps, p.maxSteps, p.maxPhases)},
	}

	var lastErr error
	for attempt := 0; attempt <= malformedPlanRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		reply, err := p.client.Chat(ctx, messages)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
		}

		plan, err := p.parse(reply)
		if err == nil {
			return plan, nil
		}
		lastErr = err
		p.logger.Warn("plan attempt %d rejected: %v", attempt+1, err)

		// Size violations are structural, not syntactic; tell the model
		// which bound it broke before asking again.
		messages = append(messages,
			Message{Role: "assistant", Content: reply},
			Message{Role: "user", Content: fmt.Sprintf("That plan was rejected: %v. Return a corrected JSON plan with between %d and %d subtasks and dependency chains no longer than %d phases.", err, p.minSteps, p.maxSteps, p.maxPhases)},
		)
	}

	return nil, fmt.Errorf("%w: %w", ErrPlanningFailed, lastErr)
}

func (p *Planner) parse(reply string) (*Plan, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	var payload planPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	if len(payload.Subtasks) < p.minSteps {
		return nil, fmt.Errorf("%w: got %d, minimum %d", ErrPlanTooSmall, len(payload.Subtasks), p.minSteps)
	}
	if len(payload.Subtasks) > p.maxSteps {
		return nil, fmt.Errorf("%w: got %d, maximum %d", ErrPlanTooLarge, len(payload.Subtasks), p.maxSteps)
	}

	plan := &Plan{Summary: strings.TrimSpace(payload.TaskSummary)}
	// phases[i] is the length of the longest dependency chain ending at
	// subtask i; independent subtasks all sit in phase 1.
	phases := make([]int, len(payload.Subtasks))
	for i, st := range payload.Subtasks {
		desc := strings.TrimSpace(st.Description)
		if desc == "" {
			return nil, fmt.Errorf("subtask %d has an empty description", i)
		}
		phases[i] = 1
		for _, dep := range st.DependsOn {
			if dep < 0 || dep >= i {
				return nil, fmt.Errorf("subtask %d has invalid dependency %d", i, dep)
			}
			if phases[dep]+1 > phases[i] {
				phases[i] = phases[dep] + 1
			}
		}
		if p.maxPhases > 0 && phases[i] > p.maxPhases {
			return nil, fmt.Errorf("%w: subtask %d sits at phase %d, maximum %d", ErrPlanTooDeep, i, phases[i], p.maxPhases)
		}
		plan.Subtasks = append(plan.Subtasks, SubtaskDraft{
			Description: desc,
			DependsOn:   append([]int(nil), st.DependsOn...),
			Commands:    cleanCommands(st.Commands),
			Fallbacks:   cleanCommands(st.FallbackCommands),
		})
	}
	return plan, nil
}

func cleanCommands(commands []string) []string {
	var out []string
	for _, c := range commands {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
