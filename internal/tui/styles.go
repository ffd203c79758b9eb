package tui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#00bfff")
	green  = lipgloss.Color("#4caf50")
	muted  = lipgloss.Color("241")
	red    = lipgloss.Color("#ff5f5f")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Padding(0, 1)

	assistantLabel = lipgloss.NewStyle().Bold(true).Foreground(accent)
	userLabel      = lipgloss.NewStyle().Bold(true).Foreground(green)

	userText = lipgloss.NewStyle().PaddingLeft(2)

	statusStyle = lipgloss.NewStyle().Foreground(muted).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(red)

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent)
)
