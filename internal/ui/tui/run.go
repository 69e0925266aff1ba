package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/edgerun/internal/provisioning"
)

// Run shows the dashboard while run executes with an observer feeding it.
// Quitting the dashboard cancels the context passed to run; the error run
// returns is returned either way.
func Run(ctx context.Context, prefix, region string, run func(context.Context, provisioning.Observer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewRunModel(prefix, region), tea.WithAltScreen())

	result := make(chan error, 1)
	go func() {
		err := run(ctx, NewObserver(p))
		if err != nil {
			p.Send(ErrMsg{Err: err})
		} else {
			p.Send(DoneMsg{})
		}
		result <- err
	}()

	final, err := p.Run()
	cancel()
	runErr := <-result
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// The alternate screen is gone; leave the final state on the terminal.
	fmt.Println(final.View())
	return runErr
}
