package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the run view until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options, programOpts ...tea.ProgramOption) (Model, error) {
	m := NewModel(opts)
	defer opts.Adapter.Close()

	programOpts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, programOpts...)
	final, err := tea.NewProgram(m, programOpts...).Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return m, fmt.Errorf("running run view: %w", err)
	}
	if fm, ok := final.(Model); ok {
		return fm, nil
	}
	return m, nil
}
