// Package orchestrator drives a task from natural language to completion:
// planning, per-subtask command generation, safety gating, execution and the
// bounded recovery loop live here.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/semaphore"

	"termpilot/internal/config"
	"termpilot/internal/display"
	"termpilot/internal/executor"
	"termpilot/internal/history"
	"termpilot/internal/logging"
	"termpilot/internal/oracle"
	"termpilot/internal/plugin"
	"termpilot/internal/safety"
	"termpilot/internal/task"
)

var (
	// ErrPlanDeclined means the user rejected the proposed plan.
	ErrPlanDeclined = errors.New("plan declined")
	// ErrRecoveryExhausted means a subtask failed on every attempt the
	// retry budget allowed.
	ErrRecoveryExhausted = errors.New("recovery attempts exhausted")
)

// Orchestrator owns the task lifecycle. One Orchestrator serves the whole
// session; tasks run through it one at a time.
type Orchestrator struct {
	cfg        config.Settings
	store      *task.Store
	planner    *oracle.Planner
	generator  *oracle.Generator
	classifier *safety.Classifier
	engine     *executor.Engine
	history    *history.Store
	plugins    *plugin.Registry
	printer    *display.Printer
	interactor Interactor
	logger     *logging.Logger

	// promptMu serializes user interaction and task status flips when
	// subtasks run in parallel.
	promptMu sync.Mutex
	// randFloat injects the clarification dice roll for tests.
	randFloat func() float64
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Config     config.Settings
	Store      *task.Store
	Planner    *oracle.Planner
	Generator  *oracle.Generator
	Classifier *safety.Classifier
	Engine     *executor.Engine
	History    *history.Store
	Plugins    *plugin.Registry
	Printer    *display.Printer
	Interactor Interactor
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:        deps.Config,
		store:      deps.Store,
		planner:    deps.Planner,
		generator:  deps.Generator,
		classifier: deps.Classifier,
		engine:     deps.Engine,
		history:    deps.History,
		plugins:    deps.Plugins,
		printer:    deps.Printer,
		interactor: deps.Interactor,
		logger:     logging.NewComponentLogger("Orchestrator"),
		randFloat:  rand.Float64,
	}
}

// SetAutoRun toggles confirmation-free execution of safe commands for
// subsequent tasks.
func (o *Orchestrator) SetAutoRun(on bool) {
	o.promptMu.Lock()
	o.cfg.AutoRun = on
	o.classifier = safety.NewClassifier(on)
	o.promptMu.Unlock()
}

// Run executes one task end to end. The returned Task always reflects the
// final state, including on error.
func (o *Orchestrator) Run(ctx context.Context, description string) (*task.Task, error) {
	t := task.New(description)
	o.store.SetActiveTask(t)
	o.store.RecordTurn("user", description)
	o.logger.Info("task %s started: %s", t.ID, description)

	plan, err := o.buildPlan(ctx, t, description)
	if err != nil {
		t.Finish(task.StatusFailed)
		o.recordOutcome(t)
		return t, err
	}

	for i, draft := range plan.Subtasks {
		st := &task.Subtask{
			Index:       i,
			Description: draft.Description,
			DependsOn:   append([]int(nil), draft.DependsOn...),
			Fallbacks:   append([]string(nil), draft.Fallbacks...),
			Status:      task.SubtaskPending,
		}
		if len(draft.Commands) > 0 {
			st.Command = draft.Commands[0]
			st.Fallbacks = append(append([]string(nil), draft.Commands[1:]...), st.Fallbacks...)
		}
		t.Subtasks = append(t.Subtasks, st)
	}

	o.printer.Plan(plan)
	if !o.cfg.AutoRun {
		approved, err := o.interactor.ConfirmPlan(plan)
		if err != nil {
			t.Finish(task.StatusFailed)
			o.recordOutcome(t)
			return t, err
		}
		if !approved {
			t.Finish(task.StatusFailed)
			o.recordOutcome(t)
			return t, ErrPlanDeclined
		}
	}

	o.setStatus(t, task.StatusExecuting)
	execErr := o.executeAll(ctx, t)

	status := task.StatusCompleted
	for _, st := range t.Subtasks {
		if st.Status != task.SubtaskSucceeded {
			status = task.StatusFailed
			break
		}
	}
	t.Finish(status)
	o.printer.TaskResult(t)
	o.recordOutcome(t)
	o.logger.Info("task %s finished: %s", t.ID, t.Status)
	return t, execErr
}

// buildPlan produces the plan, consulting plugins before the model. A plugin
// match becomes a one-subtask plan carrying the canned command; it still
// passes through the safety gate like any other command.
func (o *Orchestrator) buildPlan(ctx context.Context, t *task.Task, description string) (*oracle.Plan, error) {
	if m := o.plugins.Match(description); m != nil {
		o.logger.Info("plugin %s matched task", m.Name)
		o.printer.Info("Using plugin: %s", m.Name)
		return &oracle.Plan{
			Summary: m.Description,
			Subtasks: []oracle.SubtaskDraft{{
				Description: m.Description,
				Commands:    []string{m.Command},
			}},
		}, nil
	}

	o.setStatus(t, task.StatusPlanning)
	plan, err := o.planner.Plan(ctx, description, o.store.CurrentContext(), o.store.SnapshotForPrompt())
	if err != nil {
		o.printer.Error("Planning failed: %v", err)
		return nil, err
	}
	return plan, nil
}

// executeAll runs subtasks in dependency order. Subtasks whose dependencies
// have all succeeded form a wave; waves run with bounded parallelism. A
// blocked command aborts everything still pending.
func (o *Orchestrator) executeAll(ctx context.Context, t *task.Task) error {
	parallel := o.cfg.MaxParallelCommands
	if parallel < 1 {
		parallel = 1
	}
	sem := semaphore.NewWeighted(int64(parallel))

	waveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatalMu sync.Mutex
	var fatalErr error
	setFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
		cancel()
	}

	for {
		if err := waveCtx.Err(); err != nil {
			setFatal(err)
			break
		}
		ready := readySubtasks(t)
		if len(ready) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, st := range ready {
			if err := sem.Acquire(waveCtx, 1); err != nil {
				break
			}
			wg.Add(1)
			go func(st *task.Subtask) {
				defer wg.Done()
				defer sem.Release(1)
				if err := o.runSubtask(waveCtx, t, st); err != nil {
					setFatal(err)
				}
			}(st)
		}
		wg.Wait()
	}

	// Anything still pending lost a dependency or was aborted.
	for _, st := range t.Subtasks {
		if st.Status == task.SubtaskPending {
			st.Status = task.SubtaskFailed
			fatalMu.Lock()
			if fatalErr != nil {
				st.FailReason = "aborted"
			} else {
				st.FailReason = "dependency failed"
			}
			fatalMu.Unlock()
		}
	}

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatalErr
}

// readySubtasks returns pending subtasks whose dependencies have all
// succeeded, in index order.
func readySubtasks(t *task.Task) []*task.Subtask {
	var ready []*task.Subtask
	for _, st := range t.Subtasks {
		if st.Status != task.SubtaskPending {
			continue
		}
		ok := true
		for _, dep := range st.DependsOn {
			if dep < 0 || dep >= len(t.Subtasks) || t.Subtasks[dep].Status != task.SubtaskSucceeded {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, st)
		}
	}
	return ready
}

// runSubtask drives one subtask through generation, gating, execution and
// recovery. The returned error is reserved for task-fatal conditions: a
// blocked command or context cancellation. Ordinary subtask failure is
// recorded on the subtask and returns nil so independent siblings continue.
func (o *Orchestrator) runSubtask(ctx context.Context, t *task.Task, st *task.Subtask) error {
	total := len(t.Subtasks)
	o.printer.SubtaskHeader(st.Index, total, st.Description)

	command := st.Command
	if command == "" {
		st.Status = task.SubtaskAwaitingCommand
		generated, err := o.generateCommand(ctx, t, st)
		if err != nil {
			if ctx.Err() != nil {
				st.Status = task.SubtaskFailed
				st.FailReason = "aborted"
				return ctx.Err()
			}
			st.Status = task.SubtaskFailed
			st.FailReason = fmt.Sprintf("command generation failed: %v", err)
			o.printer.Error("Could not generate a command: %v", err)
			return nil
		}
		command = generated
	}

	fallbacks := append([]string(nil), st.Fallbacks...)
	maxAttempts := o.cfg.MaxRetries + 1

	for attemptNo := 0; attemptNo < maxAttempts; attemptNo++ {
		if err := ctx.Err(); err != nil {
			st.Status = task.SubtaskFailed
			st.FailReason = "aborted"
			return err
		}

		approved, finalCommand, fatalErr := o.gateCommand(t, st, command)
		if fatalErr != nil {
			return fatalErr
		}
		if !approved {
			st.Status = task.SubtaskFailed
			st.FailReason = fmt.Sprintf("command declined: %s", command)
			return nil
		}
		command = finalCommand
		st.Command = command

		st.Status = task.SubtaskRunning
		o.printer.Command(command)
		attempt, err := o.engine.Execute(ctx, command, executor.Options{
			Dir:     o.store.WorkingDirectory(),
			Timeout: o.cfg.Timeout(),
			Stdout:  o.printer.Out(),
			Stderr:  o.printer.Out(),
			Shell:   o.store.CurrentContext().Platform.ShellKind,
		})
		if err != nil {
			if ctx.Err() != nil {
				// The process ran and was aborted mid-flight; keep the
				// partial output it produced.
				if attempt.FinishedAt != nil {
					st.Attempts = append(st.Attempts, attempt)
					if herr := o.history.Record(attempt); herr != nil {
						o.logger.Warn("recording history: %v", herr)
					}
				}
				st.Status = task.SubtaskFailed
				st.FailReason = "aborted"
				return err
			}
			st.Status = task.SubtaskFailed
			st.FailReason = fmt.Sprintf("failed to start command: %v", err)
			o.printer.Error("Could not start command: %v", err)
			return nil
		}

		st.Attempts = append(st.Attempts, attempt)
		if herr := o.history.Record(attempt); herr != nil {
			o.logger.Warn("recording history: %v", herr)
		}
		o.printer.AttemptResult(attempt)

		if attempt.Succeeded() {
			st.Status = task.SubtaskSucceeded
			return nil
		}

		if attemptNo == maxAttempts-1 {
			break
		}

		o.setStatus(t, task.StatusRecovering)
		o.printer.Retrying(attemptNo+1, o.cfg.MaxRetries)

		var next string
		if len(fallbacks) > 0 {
			next = fallbacks[0]
			fallbacks = fallbacks[1:]
			o.logger.Info("subtask %d using fallback command", st.Index)
		} else {
			recovered, err := o.recoverCommand(ctx, t, st, attempt)
			if err != nil {
				if ctx.Err() != nil {
					st.Status = task.SubtaskFailed
					st.FailReason = "aborted"
					return err
				}
				st.Status = task.SubtaskFailed
				st.FailReason = fmt.Sprintf("recovery generation failed: %v", err)
				o.printer.Error("Recovery failed: %v", err)
				o.setStatus(t, task.StatusExecuting)
				return nil
			}
			next = recovered
		}
		command = next
		o.setStatus(t, task.StatusExecuting)
	}

	st.Status = task.SubtaskFailed
	st.FailReason = ErrRecoveryExhausted.Error()
	o.printer.Error("Giving up after %d attempts.", maxAttempts)
	return nil
}

// gateCommand runs the safety gate, including the confirm/edit loop. Edited
// commands are re-gated before running. The returned error is task-fatal and
// only set for blocked commands.
func (o *Orchestrator) gateCommand(t *task.Task, st *task.Subtask, command string) (bool, string, error) {
	for {
		switch o.classifier.Classify(command) {
		case safety.Blocked:
			rule := o.classifier.MatchedRule(command)
			o.printer.Blocked(command, rule)
			st.Status = task.SubtaskFailed
			st.FailReason = fmt.Sprintf("blocked command: %s", command)
			o.logger.Warn("blocked command on subtask %d: %s (%s)", st.Index, command, rule)
			return false, "", fmt.Errorf("%w: %s", safety.ErrBlocked, command)
		case safety.RequiresConfirmation:
			st.Status = task.SubtaskAwaitingConfirmation
			o.promptMu.Lock()
			decision, err := o.interactor.ConfirmCommand(command)
			o.promptMu.Unlock()
			if err != nil {
				return false, "", err
			}
			if !decision.Approved {
				return false, "", nil
			}
			if decision.Edited != "" && decision.Edited != command {
				command = decision.Edited
				continue
			}
			return true, command, nil
		default:
			return true, command, nil
		}
	}
}

// generateCommand asks the model for the subtask's command and applies the
// clarification surfacing policy: a question is relayed to the user only
// when the configured probability allows; otherwise the model is told to
// commit to a command with sensible defaults.
func (o *Orchestrator) generateCommand(ctx context.Context, t *task.Task, st *task.Subtask) (string, error) {
	opts := oracle.GenerateOptions{}
	for {
		res, err := o.generator.Generate(ctx, t.Description, st.Description, o.store.CurrentContext(), o.store.SnapshotForPrompt(), opts)
		if err != nil {
			return "", err
		}
		if res.Kind == oracle.KindCommand {
			return res.Text, nil
		}

		if opts.SuppressQuestions {
			return "", fmt.Errorf("model would not commit to a command")
		}
		if o.randFloat() < o.cfg.QuestionProbability {
			answer, err := o.surfaceQuestion(t, res.Text)
			if err != nil {
				return "", err
			}
			o.store.RecordTurn("user", answer)
			continue
		}
		opts.SuppressQuestions = true
	}
}

// recoverCommand asks the model for a replacement after a failed attempt.
// Clarification questions on the recovery path are always surfaced; an
// answered question does not consume a retry slot.
func (o *Orchestrator) recoverCommand(ctx context.Context, t *task.Task, st *task.Subtask, failed task.Attempt) (string, error) {
	errorOutput := failed.StderrTail
	if errorOutput == "" {
		errorOutput = failed.StdoutTail
	}
	if failed.TimedOut {
		errorOutput = fmt.Sprintf("command exceeded the %s time limit\n%s", o.cfg.Timeout(), errorOutput)
	}

	for {
		res, err := o.generator.Recover(ctx, t.Description, st.Description, failed.Command, errorOutput, o.store.CurrentContext(), oracle.GenerateOptions{})
		if err != nil {
			return "", err
		}
		if res.Kind == oracle.KindCommand {
			return res.Text, nil
		}

		answer, err := o.surfaceQuestion(t, res.Text)
		if err != nil {
			return "", err
		}
		o.store.RecordTurn("user", answer)
	}
}

func (o *Orchestrator) surfaceQuestion(t *task.Task, question string) (string, error) {
	o.promptMu.Lock()
	defer o.promptMu.Unlock()

	o.setStatusLocked(t, task.StatusAwaitingClarification)
	o.printer.Question(question)
	o.store.RecordTurn("assistant", question)
	answer, err := o.interactor.AskClarification(question)
	o.setStatusLocked(t, task.StatusExecuting)
	if err != nil {
		return "", err
	}
	return answer, nil
}

func (o *Orchestrator) setStatus(t *task.Task, status task.Status) {
	o.promptMu.Lock()
	o.setStatusLocked(t, status)
	o.promptMu.Unlock()
}

func (o *Orchestrator) setStatusLocked(t *task.Task, status task.Status) {
	if !t.Status.Terminal() {
		t.Status = status
	}
}

func (o *Orchestrator) recordOutcome(t *task.Task) {
	succeeded := 0
	for _, st := range t.Subtasks {
		if st.Status == task.SubtaskSucceeded {
			succeeded++
		}
	}
	o.store.RecordTurn("assistant", fmt.Sprintf("task %s: %d/%d subtasks succeeded", t.Status, succeeded, len(t.Subtasks)))
}
