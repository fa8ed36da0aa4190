package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"termpilot/internal/oracle"
	"termpilot/internal/orchestrator"
)

// conversationalPrefixes mark input that is chat, not a task. These bypass
// planning entirely and go straight to the model.
var conversationalPrefixes = []string{
	"hi", "hello", "hey", "thanks", "thank you",
	"how are you", "who are you", "what can you do",
}

func isConversational(input string) bool {
	lowered := strings.ToLower(strings.TrimSpace(input))
	for _, p := range conversationalPrefixes {
		if lowered == p || strings.HasPrefix(lowered, p+" ") || strings.HasPrefix(lowered, p+",") || strings.HasPrefix(lowered, p+"!") {
			return true
		}
	}
	return false
}

// runInteractive is the REPL: local commands are handled in-process, chat
// bypasses planning, everything else becomes a task.
func (a *app) runInteractive(ctx context.Context) error {
	fmt.Println("termpilot - terminal AI assistant")
	fmt.Println("Describe a task and press Enter. Type 'help' for local commands, 'exit' to quit.")
	fmt.Println()

	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "termpilot> ",
		HistoryFile:       filepath.Join(homeDir, ".termpilot", "repl_history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if isLocal(input) {
			done, err := a.handleLocal(input)
			if err != nil {
				a.printer.Error("%v", err)
			}
			if done {
				return nil
			}
			continue
		}

		if isConversational(input) {
			a.chat(ctx, input)
			continue
		}

		if _, err := a.orch.Run(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if !errors.Is(err, orchestrator.ErrPlanDeclined) {
				a.printer.Error("%v", err)
			}
		}
	}
}

// localCommands are handled without touching the model. Bare words only;
// "help me install docker" is a task, "help" is not.
var localCommands = map[string]bool{
	"help": true, "history": true, "tasks": true, "context": true,
	"pwd": true, "clear": true, "exit": true, "quit": true,
}

func isLocal(input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	head := strings.ToLower(fields[0])
	if localCommands[head] {
		return len(fields) == 1
	}
	return head == "cd" || head == "auto"
}

// handleLocal dispatches REPL-local commands. The bool result means the REPL
// should exit.
func (a *app) handleLocal(input string) (bool, error) {
	fields := strings.Fields(input)
	head := strings.ToLower(fields[0])

	switch head {
	case "exit", "quit":
		return true, nil
	case "help":
		a.printHelp()
	case "history":
		return false, a.printHistory()
	case "tasks":
		a.printTaskStatus()
	case "context":
		a.printContext()
	case "pwd":
		a.printer.Info("%s", a.store.WorkingDirectory())
	case "cd":
		if len(fields) < 2 {
			return false, errors.New("usage: cd <directory>")
		}
		if err := a.store.SetWorkingDirectory(strings.Join(fields[1:], " ")); err != nil {
			return false, err
		}
		a.printer.Info("%s", a.store.WorkingDirectory())
	case "auto":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return false, errors.New("usage: auto on|off")
		}
		a.setAutoRun(fields[1] == "on")
		a.printer.Info("auto-run %s", fields[1])
	case "clear":
		fmt.Print("\033[2J\033[H")
	}
	return false, nil
}

// setAutoRun rebuilds the gate-sensitive pieces with the new mode.
func (a *app) setAutoRun(on bool) {
	a.cfg.AutoRun = on
	a.orch.SetAutoRun(on)
}

func (a *app) printHelp() {
	a.printer.Info("Local commands:")
	a.printer.Info("  help          show this help")
	a.printer.Info("  history       show executed commands")
	a.printer.Info("  tasks         show the current task's subtasks")
	a.printer.Info("  context       show working directory and recent turns")
	a.printer.Info("  cd <dir>      change the working directory")
	a.printer.Info("  pwd           print the working directory")
	a.printer.Info("  auto on|off   toggle auto-run of safe commands")
	a.printer.Info("  clear         clear the screen")
	a.printer.Info("  exit          quit")
	a.printer.Info("Anything else is treated as a task.")
}

func (a *app) printHistory() error {
	entries, err := a.history.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.printer.Info("no commands executed yet")
		return nil
	}
	for _, e := range entries {
		status := "?"
		switch {
		case e.TimedOut:
			status = "timeout"
		case e.ExitCode != nil:
			status = fmt.Sprintf("exit %d", *e.ExitCode)
		}
		a.printer.Info("%s  %-10s %s", e.Timestamp.Format("2006-01-02 15:04:05"), status, e.Command)
	}
	return nil
}

func (a *app) printTaskStatus() {
	t := a.store.ActiveTask()
	if t == nil {
		a.printer.Info("no task yet")
		return
	}
	a.printer.Info("task %s [%s]: %s", t.ID, t.Status, t.Description)
	for _, st := range t.Subtasks {
		a.printer.Info("  %d. [%s] %s", st.Index+1, st.Status, st.Description)
		if st.FailReason != "" {
			a.printer.Info("       %s", st.FailReason)
		}
	}
}

func (a *app) printContext() {
	snap := a.store.CurrentContext()
	a.printer.Info("working directory: %s", snap.WorkingDirectory)
	a.printer.Info("platform: %s (%s)", snap.Platform.OS, snap.Platform.ShellKind)
	if len(snap.Turns) == 0 {
		a.printer.Info("no conversation yet")
		return
	}
	a.printer.Info("recent turns:")
	for _, turn := range snap.Turns {
		content := turn.Content
		if len(content) > 120 {
			content = content[:120] + "..."
		}
		a.printer.Info("  [%s] %s", turn.Role, content)
	}
}

// chat answers conversational input directly, keeping it in the shared
// context so later tasks see it.
func (a *app) chat(ctx context.Context, input string) {
	a.store.RecordTurn("user", input)
	reply, err := a.client.Chat(ctx, []oracle.Message{
		{Role: "system", Content: "You are a concise, friendly terminal assistant. Answer in a sentence or two."},
		{Role: "user", Content: input},
	})
	if err != nil {
		a.printer.Error("%v", err)
		return
	}
	a.printer.Info("%s", reply)
	a.store.RecordTurn("assistant", reply)
}
