package log

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// ANSI codes for the level tags. The handler never probes the terminal:
// pretty output is an explicit configuration choice, so color is always on.
const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiCyan   = "\033[36m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
)

// terminalHandler renders records as single human-readable lines for local
// development: dimmed timestamp, colored level tag, message, then key=value
// attributes. Production deployments use the JSON handler instead.
type terminalHandler struct {
	level slog.Leveler
	attrs []slog.Attr
	group string

	mu *sync.Mutex
	w  io.Writer
}

func newTerminalHandler(w io.Writer, opts *slog.HandlerOptions) *terminalHandler {
	h := &terminalHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = h.attrs[:len(h.attrs):len(h.attrs)]
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return &c
}

func (h *terminalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group != "" {
		c.group += "."
	}
	c.group += name
	return &c
}

// qualify prefixes an attribute key with the open group path.
func (h *terminalHandler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(ansiDim)
	b.WriteString(r.Time.Format("15:04:05.000"))
	b.WriteString(ansiReset)
	b.WriteByte(' ')
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.qualify(a))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed + "ERROR" + ansiReset
	case level >= slog.LevelWarn:
		return ansiYellow + "WARN " + ansiReset
	case level >= slog.LevelInfo:
		return ansiGreen + "INFO " + ansiReset
	default:
		return ansiCyan + "DEBUG" + ansiReset
	}
}

// writeAttr appends one " key=value" pair, flattening nested groups into
// dotted keys so every line stays grep-able.
func writeAttr(b *strings.Builder, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		for _, m := range members {
			if a.Key != "" {
				m.Key = a.Key + "." + m.Key
			}
			writeAttr(b, m)
		}
		return
	}
	if a.Key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(ansiDim)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(ansiReset)
	b.WriteString(renderValue(a.Value.String()))
}

func renderValue(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}
