package tui

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/events"
	"github.com/hugo-lorenzo-mato/teamflow/internal/transcript"
)

// PlainOutput streams a run as transcript lines for non-interactive use.
type PlainOutput struct {
	mu       sync.Mutex
	writer   io.Writer
	useColor bool
}

// NewPlainOutput creates a plain output writer.
func NewPlainOutput(w io.Writer, useColor bool) *PlainOutput {
	return &PlainOutput{writer: w, useColor: useColor}
}

// Follow writes events from ch until it is closed or ctx is done.
func (p *PlainOutput) Follow(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			p.Handle(event)
		}
	}
}

// Handle writes one event. Only transcript entries and resets produce output.
func (p *PlainOutput) Handle(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := event.(type) {
	case events.TranscriptAppendedEvent:
		p.writeEntry(e.Entry)
	case events.RunStateChangedEvent:
		if e.To == core.RunStateReset {
			p.println(SystemStyle, "run reset")
		}
	}
}

func (p *PlainOutput) writeEntry(e core.RunEvent) {
	if !p.useColor {
		_ = transcript.RenderEvents(p.writer, slices.Values([]core.RunEvent{e}), transcript.RenderOptions{})
		return
	}
	var b strings.Builder
	_ = transcript.RenderEvents(&b, slices.Values([]core.RunEvent{e}), transcript.RenderOptions{})
	style := MessageStyle
	if e.Kind == core.EventKindSystem {
		style = SystemStyle
	}
	p.println(style, strings.TrimRight(b.String(), "\n"))
}

func (p *PlainOutput) println(style lipgloss.Style, line string) {
	if p.useColor {
		line = style.Render(line)
	}
	fmt.Fprintln(p.writer, line)
}
