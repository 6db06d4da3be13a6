package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#5B8DEF")
	colorMuted   = lipgloss.Color("#888888")
	colorHint    = lipgloss.Color("#AAAAAA")
	colorSuccess = lipgloss.Color("#3FB950")
	colorError   = lipgloss.Color("#F85149")
	colorUser    = lipgloss.Color("#D2A8FF")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	hintStyle  = lipgloss.NewStyle().Foreground(colorHint).MarginTop(1)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle = lipgloss.NewStyle().Foreground(colorError)
	doneStyle  = lipgloss.NewStyle().Foreground(colorSuccess)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
	focusedPanelStyle = panelStyle.BorderForeground(colorAccent)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorAccent).
			Padding(0, 1)
)

func panel(focused bool) lipgloss.Style {
	if focused {
		return focusedPanelStyle
	}
	return panelStyle
}
