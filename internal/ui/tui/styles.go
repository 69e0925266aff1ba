package tui

import "github.com/charmbracelet/lipgloss"

// Palette adapts to light and dark terminals.
var (
	ok      = lipgloss.AdaptiveColor{Light: "#15803d", Dark: "#22c55e"}
	bad     = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#ef4444"}
	caution = lipgloss.AdaptiveColor{Light: "#a16207", Dark: "#eab308"}
	accent  = lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#3b82f6"}
	muted   = lipgloss.AdaptiveColor{Light: "#4b5563", Dark: "#6b7280"}
	strong  = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#f9fafb"}
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(strong)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1)
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(strong)
	readyStyle   = lipgloss.NewStyle().Foreground(ok)
	failedStyle  = lipgloss.NewStyle().Foreground(bad)
	warningStyle = lipgloss.NewStyle().Foreground(caution)
	dimStyle     = lipgloss.NewStyle().Foreground(muted)
	footerStyle  = dimStyle.MarginTop(1)

	progressBarFull  = readyStyle
	progressBarEmpty = dimStyle
)

// Stage row markers.
const (
	checkMark = "[OK]"
	crossMark = "[!!]"
	spinner   = "[..]"
	pending   = "[  ]"
)

var spinnerFrames = []string{"[.  ]", "[.. ]", "[...]", "[ ..]", "[  .]", "[   ]"}
