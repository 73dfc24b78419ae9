// Package output renders pipeline progress for terminals and logs.
package output

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme holds the colours used for build output.
type Theme struct {
	Name string

	Accent  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Dim       lipgloss.Color
}

// DarkTheme is the default theme.
var DarkTheme = Theme{
	Name:      "dark",
	Accent:    lipgloss.Color("#f97316"),
	Success:   lipgloss.Color("#22c55e"),
	Warning:   lipgloss.Color("#eab308"),
	Error:     lipgloss.Color("#ef4444"),
	Primary:   lipgloss.Color("#e0e0e8"),
	Secondary: lipgloss.Color("#888888"),
	Dim:       lipgloss.Color("#5a5a70"),
}

// LightTheme suits light terminal backgrounds.
var LightTheme = Theme{
	Name:      "light",
	Accent:    lipgloss.Color("#c2410c"),
	Success:   lipgloss.Color("#15803d"),
	Warning:   lipgloss.Color("#a16207"),
	Error:     lipgloss.Color("#b91c1c"),
	Primary:   lipgloss.Color("#0f172a"),
	Secondary: lipgloss.Color("#374151"),
	Dim:       lipgloss.Color("#4b5563"),
}

// DetectTheme picks a theme from the --theme flag, then FOUNDRY_THEME,
// then the COLORFGBG hint terminals export, defaulting to dark.
func DetectTheme(flagVal string) Theme {
	switch strings.ToLower(flagVal) {
	case "dark":
		return DarkTheme
	case "light":
		return LightTheme
	}

	switch strings.ToLower(os.Getenv("FOUNDRY_THEME")) {
	case "dark":
		return DarkTheme
	case "light":
		return LightTheme
	}

	// COLORFGBG is "fg;bg"; 7 and 15 are light backgrounds.
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) >= 2 {
		if bg := parts[len(parts)-1]; bg == "15" || bg == "7" {
			return LightTheme
		}
	}
	return DarkTheme
}

// Styles are the lipgloss styles derived from a theme for one writer.
type Styles struct {
	Theme Theme

	Title     lipgloss.Style
	Phase     lipgloss.Style
	Stage     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Secondary lipgloss.Style
	Dim       lipgloss.Style
}

// NewStyles builds styles for w. The lipgloss renderer inspects w, so
// writers that are not terminals get plain text.
func NewStyles(theme Theme, w io.Writer) *Styles {
	r := lipgloss.NewRenderer(w)
	return &Styles{
		Theme:     theme,
		Title:     r.NewStyle().Foreground(theme.Accent).Bold(true),
		Phase:     r.NewStyle().Foreground(theme.Accent),
		Stage:     r.NewStyle().Foreground(theme.Primary).Bold(true),
		Success:   r.NewStyle().Foreground(theme.Success),
		Warning:   r.NewStyle().Foreground(theme.Warning),
		Error:     r.NewStyle().Foreground(theme.Error).Bold(true),
		Secondary: r.NewStyle().Foreground(theme.Secondary),
		Dim:       r.NewStyle().Foreground(theme.Dim),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Width returns the terminal width of w, or fallback when unknown.
func Width(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}
