// Package prompt asks the operator for missing credentials on a terminal.
package prompt

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

var (
	errUsernameRequired = errors.New("username is required")
	errPasswordRequired = errors.New("password is required")
	errTokenRequired    = errors.New("token is required")

	// ErrNotInteractive is returned when a prompt is needed without a terminal.
	ErrNotInteractive = errors.New("credentials missing and no terminal to prompt on")
)

// IsInteractive reports whether stdin and stdout are terminals.
func IsInteractive() bool {
	return isTerminal(os.Stdin.Fd()) && isTerminal(os.Stdout.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Credentials prompts for whichever of username and password is empty.
func Credentials(ctx context.Context, title string, username, password *string) error {
	if *username != "" && *password != "" {
		return nil
	}
	if !IsInteractive() {
		return ErrNotInteractive
	}

	var fields []huh.Field
	if *username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Value(username).
			Validate(required(errUsernameRequired)))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(required(errPasswordRequired)))
	}
	return huh.NewForm(huh.NewGroup(fields...).Title(title)).RunWithContext(ctx)
}

// Token prompts for an API token when token is empty.
func Token(ctx context.Context, title string, token *string) error {
	if *token != "" {
		return nil
	}
	if !IsInteractive() {
		return ErrNotInteractive
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Token").
				EchoMode(huh.EchoModePassword).
				Value(token).
				Validate(required(errTokenRequired)),
		).Title(title),
	).RunWithContext(ctx)
}

func required(err error) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return err
		}
		return nil
	}
}
