// Package wizard provides interactive prompts for CLI commands.
package wizard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the user leaves a prompt with ctrl+c or esc.
var ErrAborted = errors.New("prompt aborted")

// Setup is what `oracle init` asks for.
type Setup struct {
	Handle          string
	TrackedAccounts []string
	Keywords        []string
	Probability     float64
	DryRun          bool
}

// PromptSetup lets the user review and edit the initial configuration.
// Fields of s are used as the defaults.
func PromptSetup(s *Setup) error {
	accounts := strings.Join(s.TrackedAccounts, ", ")
	keywords := strings.Join(s.Keywords, ", ")
	probability := strconv.FormatFloat(s.Probability, 'f', -1, 64)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Persona handle").
				Description("The account the oracle posts as").
				Value(&s.Handle).
				Validate(func(v string) error {
					if strings.TrimSpace(strings.TrimPrefix(v, "@")) == "" {
						return fmt.Errorf("handle is required")
					}
					return nil
				}),

			huh.NewInput().
				Title("Tracked accounts (comma-separated)").
				Value(&accounts),

			huh.NewInput().
				Title("Keywords that deserve a reply (comma-separated)").
				Value(&keywords),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Autonomous post probability per pass").
				Value(&probability).
				Validate(validateProbability),

			huh.NewConfirm().
				Title("Start in dry-run mode?").
				Description("Generated content is logged instead of published").
				Value(&s.DryRun),
		),
	)

	if err := form.Run(); err != nil {
		return promptError(err)
	}

	s.Handle = strings.TrimPrefix(strings.TrimSpace(s.Handle), "@")
	s.TrackedAccounts = ParseList(accounts)
	s.Keywords = ParseList(keywords)
	s.Probability, _ = strconv.ParseFloat(strings.TrimSpace(probability), 64)
	return nil
}

// PromptMessage reads one chat line.
func PromptMessage(title string) (string, error) {
	var message string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Placeholder("message, /style, /trend, /philosophy or /quit").
				Value(&message),
		),
	)

	if err := form.Run(); err != nil {
		return "", promptError(err)
	}
	return message, nil
}

// ConfirmPublish shows generated content and asks whether to post it.
func ConfirmPublish(content string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Generated post").
				Description(content),

			huh.NewConfirm().
				Title("Publish this post?").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return false, promptError(err)
	}
	return confirmed, nil
}

func promptError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return fmt.Errorf("prompt failed: %w", err)
}

func validateProbability(v string) error {
	p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if p < 0 || p > 1 {
		return fmt.Errorf("must be between 0 and 1")
	}
	return nil
}

// ParseList splits a comma-separated list, dropping blanks and a leading @.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		if trimmed := strings.TrimPrefix(strings.TrimSpace(p), "@"); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
