package transcript

import (
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
)

// RenderOptions controls transcript rendering.
type RenderOptions struct {
	Markdown   bool
	TimeFormat string // defaults to 15:04:05
	Title      string // markdown heading, optional
}

// Render writes the transcript's current contents.
func (t *Transcript) Render(w io.Writer, opts RenderOptions) error {
	return RenderEvents(w, t.Snapshot(), opts)
}

// RenderEvents writes events as plain text (one line per event) or markdown.
func RenderEvents(w io.Writer, events iter.Seq[core.RunEvent], opts RenderOptions) error {
	layout := opts.TimeFormat
	if layout == "" {
		layout = "15:04:05"
	}

	if opts.Markdown && opts.Title != "" {
		if _, err := fmt.Fprintf(w, "# %s\n\n", opts.Title); err != nil {
			return err
		}
	}

	for e := range events {
		ts := e.Timestamp.Format(layout)
		var err error
		switch {
		case !opts.Markdown:
			_, err = fmt.Fprintf(w, "[%s] %s: %s\n", ts, e.AgentLabel, oneLine(e.Content))
		case e.Kind == core.EventKindSystem:
			_, err = fmt.Fprintf(w, "> _%s %s: %s_\n\n", ts, e.AgentLabel, oneLine(e.Content))
		default:
			_, err = fmt.Fprintf(w, "### %s\n_%s_\n\n%s\n\n", e.AgentLabel, ts, strings.TrimSpace(e.Content))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Text renders the transcript's current contents.
func (t *Transcript) Text(opts RenderOptions) string {
	var b strings.Builder
	_ = t.Render(&b, opts)
	return b.String()
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", " ")), " ")
}
