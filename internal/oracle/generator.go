package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"termpilot/internal/logging"
	"termpilot/internal/task"
)

// ErrMalformedGeneration means the model never produced a parseable result
// within the malformed-response budget.
var ErrMalformedGeneration = errors.New("malformed generation result")

// malformedGenerationRetries is the budget for unparseable generation
// replies; transport-level retries live in the client.
const malformedGenerationRetries = 2

// ResultKind discriminates the two shapes a generation can take.
type ResultKind string

const (
	KindCommand  ResultKind = "command"
	KindQuestion ResultKind = "question"
)

// Result is the model's answer for one subtask: either a runnable command or
// a clarification question for the user. Exactly one kind is ever set.
type Result struct {
	Kind ResultKind
	Text string
}

type resultPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// GenerateOptions tune a single generation call.
type GenerateOptions struct {
	// SuppressQuestions forces the model to commit to a command using
	// sensible defaults instead of asking the user anything.
	SuppressQuestions bool
}

// Generator produces commands for subtasks and corrected commands after
// failures. Identical generation requests within a process are served from a
// small LRU cache.
type Generator struct {
	client Client
	cache  *lru.Cache[string, Result]
	logger *logging.Logger
}

func NewGenerator(client Client) *Generator {
	cache, _ := lru.New[string, Result](128)
	return &Generator{
		client: client,
		cache:  cache,
		logger: logging.NewComponentLogger("Generator"),
	}
}

// Generate asks the model for a command fulfilling the subtask.
func (g *Generator) Generate(ctx context.Context, taskDescription, subtaskDescription string, snap task.Snapshot, history string, opts GenerateOptions) (Result, error) {
	system := generationSystemPrompt
	if opts.SuppressQuestions {
		system += noQuestionsInstruction
	}
	user := generationUserPrompt(taskDescription, subtaskDescription, snap, history)

	cacheKey := system + "\x00" + user
	if cached, ok := g.cache.Get(cacheKey); ok {
		g.logger.Debug("generation cache hit for subtask %q", subtaskDescription)
		return cached, nil
	}

	result, err := g.exchange(ctx, system, user)
	if err != nil {
		return Result{}, err
	}
	g.cache.Add(cacheKey, result)
	return result, nil
}

// Recover asks the model for a replacement after a failed attempt. Recovery
// results are never cached: the same failure context should be free to yield
// a different answer on a later retry.
func (g *Generator) Recover(ctx context.Context, taskDescription, subtaskDescription, failedCommand, errorOutput string, snap task.Snapshot, opts GenerateOptions) (Result, error) {
	system := recoverySystemPrompt
	if opts.SuppressQuestions {
		system += noQuestionsInstruction
	}
	user := recoveryUserPrompt(taskDescription, subtaskDescription, failedCommand, errorOutput, snap)

	result, err := g.exchange(ctx, system, user)
	if err != nil {
		return Result{}, err
	}
	if result.Kind == KindCommand && strings.TrimSpace(result.Text) == strings.TrimSpace(failedCommand) {
		return Result{}, fmt.Errorf("%w: model repeated the failed command", ErrMalformedGeneration)
	}
	return result, nil
}

func (g *Generator) exchange(ctx context.Context, system, user string) (Result, error) {
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	var lastErr error
	for attempt := 0; attempt <= malformedGenerationRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		reply, err := g.client.Chat(ctx, messages)
		if err != nil {
			return Result{}, err
		}

		result, err := parseResult(reply)
		if err == nil {
			return result, nil
		}
		lastErr = err
		g.logger.Warn("generation attempt %d rejected: %v", attempt+1, err)

		messages = append(messages,
			Message{Role: "assistant", Content: reply},
			Message{Role: "user", Content: fmt.Sprintf("That response was rejected: %v. Reply with only the JSON object.", err)},
		)
	}

	return Result{}, fmt.Errorf("%w: %w", ErrMalformedGeneration, lastErr)
}

func parseResult(reply string) (Result, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return Result{}, err
	}

	var payload resultPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return Result{}, fmt.Errorf("result has empty text")
	}

	switch payload.Type {
	case string(KindCommand):
		return Result{Kind: KindCommand, Text: text}, nil
	case string(KindQuestion):
		return Result{Kind: KindQuestion, Text: text}, nil
	default:
		return Result{}, fmt.Errorf("unknown result type %q", payload.Type)
	}
}
