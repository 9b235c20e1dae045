package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	levelStyles = map[slog.Level]lipgloss.Style{
		slog.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		slog.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		slog.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		slog.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
	levelNames = map[slog.Level]string{
		slog.LevelDebug: "DBG",
		slog.LevelInfo:  "INF",
		slog.LevelWarn:  "WRN",
		slog.LevelError: "ERR",
	}
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// contextKeys are pulled out of the attribute list and shown as a
// "[workflow › run › node]" prefix, in this order.
var contextKeys = []string{"workflow_id", "run_id", "node"}

// PrettyHandler writes compact, colourised lines for a terminal.
type PrettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr
	prefix string // group prefix for attribute keys
}

// NewPrettyHandler creates a handler writing to w.
func NewPrettyHandler(w io.Writer, level slog.Level) *PrettyHandler {
	return &PrettyHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})

	ctx := make(map[string]string, len(contextKeys))
	var b strings.Builder
	var rest []slog.Attr
	for _, a := range attrs {
		if isContextKey(a.Key) {
			ctx[a.Key] = a.Value.String()
			continue
		}
		rest = append(rest, a)
	}

	b.WriteString(timeStyle.Render(r.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(renderLevel(r.Level))
	if parts := contextParts(ctx); len(parts) > 0 {
		b.WriteByte(' ')
		b.WriteString(contextStyle.Render("[" + strings.Join(parts, " › ") + "]"))
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range rest {
		writeAttr(&b, a)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.qualify(a))
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *PrettyHandler) qualify(a slog.Attr) slog.Attr {
	if h.prefix == "" {
		return a
	}
	return slog.Attr{Key: h.prefix + a.Key, Value: a.Value}
}

func isContextKey(key string) bool {
	for _, k := range contextKeys {
		if k == key {
			return true
		}
	}
	return false
}

func contextParts(ctx map[string]string) []string {
	parts := make([]string, 0, len(ctx))
	for _, k := range contextKeys {
		if v := ctx[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return parts
}

func renderLevel(level slog.Level) string {
	name, ok := levelNames[level]
	if !ok {
		name = level.String()
	}
	if style, ok := levelStyles[level]; ok {
		return style.Render(name)
	}
	return name
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, g := range v.Group() {
			writeAttr(b, slog.Attr{Key: a.Key + "." + g.Key, Value: g.Value})
		}
		return
	}
	s := v.String()
	if strings.ContainsAny(s, " \t\n\"") {
		s = fmt.Sprintf("%q", s)
	}
	b.WriteByte(' ')
	b.WriteString(keyStyle.Render(a.Key))
	b.WriteByte('=')
	b.WriteString(s)
}
