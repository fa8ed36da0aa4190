package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"termpilot/internal/config"
	"termpilot/internal/display"
	"termpilot/internal/executor"
	"termpilot/internal/history"
	"termpilot/internal/logging"
	"termpilot/internal/oracle"
	"termpilot/internal/orchestrator"
	"termpilot/internal/plugin"
	"termpilot/internal/safety"
	"termpilot/internal/task"
)

var version = "dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// app wires the long-lived pieces shared by one-shot and interactive mode.
type app struct {
	cfg     config.Settings
	store   *task.Store
	client  oracle.Client
	orch    *orchestrator.Orchestrator
	history *history.Store
	printer *display.Printer
}

func buildApp(cfg config.Settings) (*app, error) {
	hist, err := history.NewStore(cfg.HistoryFile, cfg.MaxHistory)
	if err != nil {
		return nil, err
	}
	plugins, err := plugin.Load(cfg.PluginDir)
	if err != nil {
		return nil, err
	}

	store := task.NewStore(cfg.MaxHistory)
	client := oracle.NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.RequestTimeout())
	printer := display.NewPrinter(os.Stdout)

	orch := orchestrator.New(orchestrator.Deps{
		Config:     cfg,
		Store:      store,
		Planner:    oracle.NewPlanner(client, cfg.MinSteps, cfg.MaxSteps, cfg.MaxPhases),
		Generator:  oracle.NewGenerator(client),
		Classifier: safety.NewClassifier(cfg.AutoRun),
		Engine:     executor.NewEngine(),
		History:    hist,
		Plugins:    plugins,
		Printer:    printer,
		Interactor: orchestrator.NewPromptInteractor(),
	})

	return &app{
		cfg:     cfg,
		store:   store,
		client:  client,
		orch:    orch,
		history: hist,
		printer: printer,
	}, nil
}

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func newRootCmd() *cobra.Command {
	var autoRun bool

	cmd := &cobra.Command{
		Use:           "termpilot [task...]",
		Short:         "Turn natural-language tasks into supervised shell commands",
		Long:          "termpilot plans a natural-language task, generates shell commands for each step, gates them through a safety classifier and executes them with bounded retries.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return usageError{err}
			}
			if cmd.Flags().Changed("auto") {
				cfg.AutoRun = autoRun
			}

			a, err := buildApp(cfg)
			if err != nil {
				return usageError{err}
			}
			defer func() {
				_ = logging.GetLogger().Close()
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(args) > 0 {
				return a.runOnce(ctx, joinArgs(args))
			}
			if !isTTY() {
				return usageError{errors.New("no task given and stdin is not a terminal")}
			}
			return a.runInteractive(ctx)
		},
	}

	cmd.Flags().BoolVar(&autoRun, "auto", false, "run safe commands without confirmation")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("termpilot %s\n", version)
		},
	})

	return cmd
}

// usageError marks configuration and invocation problems so main can exit 2
// instead of 1.
type usageError struct {
	err error
}

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

// runOnce executes a single task and reports its outcome through the exit
// code.
func (a *app) runOnce(ctx context.Context, description string) error {
	t, err := a.orch.Run(ctx, description)
	if err != nil && !errors.Is(err, orchestrator.ErrPlanDeclined) {
		a.printer.Error("%v", err)
	}
	if t.Status != task.StatusCompleted {
		return errors.New("task failed")
	}
	return nil
}

func joinArgs(args []string) string {
	out := args[0]
	for _, a := range args[1:] {
		out += " " + a
	}
	return out
}

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, "termpilot:", err)
			os.Exit(exitUsage)
		}
		os.Exit(exitFailed)
	}
	os.Exit(exitOK)
}
