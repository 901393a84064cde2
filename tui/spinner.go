package tui

import (
	"context"

	"github.com/charmbracelet/huh/spinner"
)

// ShowSpinner displays a spinner while action runs. Without a TTY action
// simply runs.
func ShowSpinner(ctx context.Context, title string, action func()) error {
	if !HasTTY {
		action()
		return nil
	}
	return spinner.New().
		Context(ctx).
		Title(title).
		Action(action).
		Run()
}
