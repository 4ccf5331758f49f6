package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	levelStyles = map[slog.Level]lipgloss.Style{
		slog.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A89")),
		slog.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#20B9B4")).Bold(true),
		slog.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F")).Bold(true),
		slog.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")).Bold(true),
	}
	styleMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A89"))
	styleKey   = lipgloss.NewStyle().Foreground(lipgloss.Color("#1D9EA3"))
)

// PrettyHandler renders slog records as a single colorized line —
// `LEVEL message key=value ...` — the console-ergonomics counterpart to
// slog.TextHandler that --pretty selects, using lipgloss for the
// terminal styling rather than a hand-rolled ANSI writer.
type PrettyHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	groups []string
}

// NewPrettyHandler builds a PrettyHandler writing to w.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{mu: &sync.Mutex{}, w: w, opts: *opts}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := h.opts.Level
	if min == nil {
		return level >= slog.LevelInfo
	}
	return level >= min.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	style, ok := levelStyles[r.Level]
	if !ok {
		style = styleMuted
	}

	line := fmt.Sprintf("%s %s", style.Render(r.Level.String()), r.Message)

	for _, a := range h.attrs {
		line += " " + formatAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += " " + formatAttr(a)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func formatAttr(a slog.Attr) string {
	return fmt.Sprintf("%s=%s", styleKey.Render(a.Key), a.Value.String())
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrettyHandler{mu: h.mu, w: h.w, opts: h.opts, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...), groups: h.groups}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	return &PrettyHandler{mu: h.mu, w: h.w, opts: h.opts, attrs: h.attrs, groups: append(append([]string{}, h.groups...), name)}
}

// IndentingWriter re-indents every line slog.JSONHandler writes to it,
// turning its default single-line-compact NDJSON into a human-readable
// multi-line record per line, for `--log-json --pretty` (`--compact`,
// the default, writes through unchanged since JSONHandler's own output
// already is compact).
type IndentingWriter struct {
	w io.Writer
}

// NewIndentingWriter wraps w so every complete JSON line written to it
// is expanded with two-space indentation before being forwarded.
func NewIndentingWriter(w io.Writer) *IndentingWriter {
	return &IndentingWriter{w: w}
}

func (iw *IndentingWriter) Write(p []byte) (int, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimRight(p, "\n"), "", "  "); err != nil {
		return iw.w.Write(p)
	}
	buf.WriteByte('\n')
	if _, err := iw.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
