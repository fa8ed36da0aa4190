package orchestrator

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	"termpilot/internal/oracle"
)

// CommandDecision is the user's verdict on a command awaiting confirmation.
type CommandDecision struct {
	Approved bool
	// Edited holds a replacement command when the user chose to edit.
	// Empty means run the original as shown.
	Edited string
}

// Interactor abstracts every point where execution pauses for the user, so
// the orchestrator can be driven by a terminal or by a test double.
type Interactor interface {
	// ConfirmPlan shows the plan has been rendered and asks whether to
	// proceed with it.
	ConfirmPlan(plan *oracle.Plan) (bool, error)
	// ConfirmCommand asks for approval of a single command, with the
	// option to edit it first.
	ConfirmCommand(command string) (CommandDecision, error)
	// AskClarification relays the model's question and returns the
	// user's answer.
	AskClarification(question string) (string, error)
}

// PromptInteractor drives confirmations through interactive terminal
// prompts.
type PromptInteractor struct{}

func NewPromptInteractor() *PromptInteractor {
	return &PromptInteractor{}
}

func (pi *PromptInteractor) ConfirmPlan(plan *oracle.Plan) (bool, error) {
	prompt := promptui.Select{
		Label: "Proceed with this plan",
		Items: []string{"yes", "no"},
	}
	_, choice, err := prompt.Run()
	if err != nil {
		return false, fmt.Errorf("plan confirmation: %w", err)
	}
	return choice == "yes", nil
}

func (pi *PromptInteractor) ConfirmCommand(command string) (CommandDecision, error) {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Run `%s`", command),
		Items: []string{"yes", "no", "edit"},
	}
	_, choice, err := prompt.Run()
	if err != nil {
		return CommandDecision{}, fmt.Errorf("command confirmation: %w", err)
	}

	switch choice {
	case "yes":
		return CommandDecision{Approved: true}, nil
	case "edit":
		edit := promptui.Prompt{
			Label:   "Command",
			Default: command,
		}
		edited, err := edit.Run()
		if err != nil {
			return CommandDecision{}, fmt.Errorf("command edit: %w", err)
		}
		edited = strings.TrimSpace(edited)
		if edited == "" {
			return CommandDecision{}, nil
		}
		return CommandDecision{Approved: true, Edited: edited}, nil
	default:
		return CommandDecision{}, nil
	}
}

func (pi *PromptInteractor) AskClarification(question string) (string, error) {
	prompt := promptui.Prompt{
		Label: question,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("an answer is required")
			}
			return nil
		},
	}
	answer, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("clarification: %w", err)
	}
	return strings.TrimSpace(answer), nil
}
