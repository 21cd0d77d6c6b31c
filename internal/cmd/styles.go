package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette shared by the report commands.
var (
	colorPass   = lipgloss.Color("#10B981")
	colorFail   = lipgloss.Color("#EF4444")
	colorWarn   = lipgloss.Color("#F59E0B")
	colorMuted  = lipgloss.Color("#6B7280")
	colorAccent = lipgloss.Color("#7C3AED")
	colorInfo   = lipgloss.Color("#3B82F6")
)

// styles holds the report styles. Plain styles render text unchanged.
type styles struct {
	title  lipgloss.Style
	pass   lipgloss.Style
	fail   lipgloss.Style
	warn   lipgloss.Style
	muted  lipgloss.Style
	accent lipgloss.Style
	info   lipgloss.Style
	box    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if !isTerminal(w) {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain, plain}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(colorAccent),
		pass:   r.NewStyle().Bold(true).Foreground(colorPass),
		fail:   r.NewStyle().Bold(true).Foreground(colorFail),
		warn:   r.NewStyle().Foreground(colorWarn),
		muted:  r.NewStyle().Foreground(colorMuted),
		accent: r.NewStyle().Foreground(colorAccent),
		info:   r.NewStyle().Foreground(colorInfo),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1),
	}
}

// verdict renders ok as a colored PASS or FAIL.
func (s styles) verdict(ok bool) string {
	if ok {
		return s.pass.Render("PASS")
	}
	return s.fail.Render("FAIL")
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
