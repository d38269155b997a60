package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Status colors, adaptive to light and dark terminals.
var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorHead = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

// Status icons
const (
	iconPass = "✓"
	iconWarn = "⚠"
	iconFail = "✗"
)

// styles renders status text for one output stream. Color is dropped when
// the stream is not a terminal.
type styles struct {
	pass     lipgloss.Style
	warn     lipgloss.Style
	fail     lipgloss.Style
	category lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w, termenv.WithColorCache(true))
	return styles{
		pass:     r.NewStyle().Foreground(colorPass),
		warn:     r.NewStyle().Foreground(colorWarn),
		fail:     r.NewStyle().Foreground(colorFail),
		category: r.NewStyle().Bold(true).Foreground(colorHead),
	}
}

// statusIcon returns the colored icon for a check status.
func (s styles) statusIcon(status string) string {
	switch status {
	case "warning":
		return s.warn.Render(iconWarn)
	case "error":
		return s.fail.Render(iconFail)
	default:
		return s.pass.Render(iconPass)
	}
}
