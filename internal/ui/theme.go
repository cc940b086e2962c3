package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// ColorMode controls when escape sequences are emitted.
type ColorMode string

const (
	ColorAuto ColorMode = "auto" // Color only when the stream is a terminal
	ColorOn   ColorMode = "on"
	ColorOff  ColorMode = "off"
)

// ParseColorMode validates a -c/--color value.
func ParseColorMode(s string) (ColorMode, error) {
	switch ColorMode(strings.ToLower(s)) {
	case ColorAuto:
		return ColorAuto, nil
	case ColorOn:
		return ColorOn, nil
	case ColorOff:
		return ColorOff, nil
	}
	return "", fmt.Errorf("invalid color mode %q (want auto, on or off)", s)
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Theme holds the styles used to render output onto one writer.
type Theme struct {
	renderer *lipgloss.Renderer
	enabled  bool

	host    lipgloss.Style
	stdout  lipgloss.Style
	stderr  lipgloss.Style
	number  lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
}

// NewTheme builds a theme for w. In auto mode color follows IsTerminal(w).
func NewTheme(w io.Writer, mode ColorMode) *Theme {
	enabled := false
	switch mode {
	case ColorOn:
		enabled = true
	case ColorAuto, "":
		enabled = IsTerminal(w)
	}

	r := lipgloss.NewRenderer(w)
	if enabled {
		r.SetColorProfile(termenv.ANSI)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	style := func(c lipgloss.Color) lipgloss.Style {
		return r.NewStyle().Foreground(c).TabWidth(lipgloss.NoTabConversion)
	}

	return &Theme{
		renderer: r,
		enabled:  enabled,
		host:     style(ColorInfo),
		stdout:   style(ColorSuccess),
		stderr:   style(ColorError),
		number:   style(ColorNumber),
		muted:    style(ColorMuted),
		success:  style(ColorSuccess),
		failure:  style(ColorError),
		warning:  style(ColorWarning),
	}
}

// Plain returns a theme that never emits escape sequences.
func Plain(w io.Writer) *Theme {
	return NewTheme(w, ColorOff)
}

// Enabled reports whether this theme emits color.
func (t *Theme) Enabled() bool { return t.enabled }

// render leaves text untouched when color is off; host output may contain
// anything, including tabs and escape sequences of its own.
func (t *Theme) render(st lipgloss.Style, s string) string {
	if !t.enabled || s == "" {
		return s
	}
	return st.Render(s)
}

func (t *Theme) Host(s string) string    { return t.render(t.host, s) }
func (t *Theme) Stdout(s string) string  { return t.render(t.stdout, s) }
func (t *Theme) Stderr(s string) string  { return t.render(t.stderr, s) }
func (t *Theme) Number(s string) string  { return t.render(t.number, s) }
func (t *Theme) Muted(s string) string   { return t.render(t.muted, s) }
func (t *Theme) Success(s string) string { return t.render(t.success, s) }
func (t *Theme) Failure(s string) string { return t.render(t.failure, s) }
func (t *Theme) Warning(s string) string { return t.render(t.warning, s) }

// Numberf formats a value and renders it in the number color.
func (t *Theme) Numberf(format string, args ...any) string {
	return t.render(t.number, fmt.Sprintf(format, args...))
}
