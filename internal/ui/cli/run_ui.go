package cli

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"qmakemodel/internal/core/buildsystem"
)

// runUI shows the updates produced by watch until the user quits, the
// parent ctx ends or watch fails.
func runUI(parent context.Context, watch func(context.Context, updateSink) error) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	p := tea.NewProgram(initialModel(), tea.WithAltScreen(), tea.WithContext(ctx))

	watchErr := make(chan error, 1)
	go func() {
		err := watch(ctx, func(u *buildsystem.Update, st buildsystem.State) {
			p.Send(updateMsg{update: u, state: st})
		})
		if err != nil {
			p.Quit()
		}
		watchErr <- err
	}()

	_, err := p.Run()
	cancel()
	if werr := <-watchErr; werr != nil {
		return werr
	}
	if errors.Is(err, tea.ErrProgramKilled) && parent.Err() != nil {
		return nil
	}
	return err
}
