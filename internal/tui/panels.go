package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/reportsmith/internal/chat"
	"github.com/kingrea/reportsmith/internal/job"
	"github.com/kingrea/reportsmith/internal/progress"
)

// renderProgress draws one line per stage: ✓ for completed, the spinner for
// the current stage, and the stage number otherwise.
func renderProgress(snap job.Snapshot, spin string, width int) string {
	lines := []string{titleStyle.Render("Progress")}
	if snap.State == job.Idle {
		lines = append(lines, mutedStyle.Render("No report requested yet."))
		return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
	}
	for i, info := range progress.Stages {
		var marker string
		style := lipgloss.NewStyle()
		switch snap.View.States[i] {
		case progress.StateCompleted:
			marker = doneStyle.Render("✓")
		case progress.StateCurrent:
			marker = spin
			style = style.Bold(true)
		default:
			marker = mutedStyle.Render(fmt.Sprintf("%d", i+1))
			style = mutedStyle
		}
		lines = append(lines, fmt.Sprintf("%s %s", marker, style.Render(info.Label)))
		if snap.View.States[i] == progress.StateCurrent {
			lines = append(lines, mutedStyle.Render("  "+info.Description))
		}
	}
	switch snap.State {
	case job.Submitting:
		lines = append(lines, mutedStyle.Render("Submitting…"))
	case job.Completed:
		lines = append(lines, doneStyle.Render("Report ready."))
	case job.Failed:
		lines = append(lines, errorStyle.Render("Error: "+job.ErrorMessage(snap.Err)))
	}
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}

// renderTranscript lays out chat messages. Right-to-left messages are right
// aligned.
func renderTranscript(msgs []chat.Message, width int) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("Chat opens once a report is ready.")
	}
	width = max(10, width)
	blocks := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var label string
		style := lipgloss.NewStyle().Width(width)
		switch m.Role {
		case chat.RoleUser:
			label = lipgloss.NewStyle().Bold(true).Foreground(colorUser).Render("You")
		case chat.RoleAssistant:
			label = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Render("Assistant")
		case chat.RoleError:
			label = errorStyle.Bold(true).Render("Error")
			style = style.Foreground(colorError)
		default:
			label = mutedStyle.Render("System")
			style = style.Foreground(colorMuted)
		}
		content := m.Content
		if m.Role == chat.RoleAssistant && content == "" {
			content = "…"
		}
		if m.Direction == chat.RTL {
			style = style.Align(lipgloss.Right)
			label = lipgloss.NewStyle().Width(width).Align(lipgloss.Right).Render(label)
		}
		blocks = append(blocks, label+"\n"+style.Render(content))
	}
	return strings.Join(blocks, "\n\n")
}

// renderLogs shows the most recent journey entries.
func renderLogs(lines []string, total int, width int) string {
	header := titleStyle.Render(fmt.Sprintf("Log (%d)", total))
	if len(lines) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, mutedStyle.Render("No entries yet."))
	}
	clipped := make([]string, len(lines))
	for i, line := range lines {
		clipped[i] = truncate(line, width)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, mutedStyle.Render(strings.Join(clipped, "\n")))
}

func truncate(s string, width int) string {
	if width <= 1 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
