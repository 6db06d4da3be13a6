package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/reportsmith/internal/job"
)

// requestForm collects topic, language and subtopic count.
type requestForm struct {
	topic     textinput.Model
	language  int
	subtopics int
	example   int
}

func newRequestForm(language string, subtopics int) requestForm {
	ti := textinput.New()
	ti.Placeholder = job.ExampleTopics[0]
	ti.CharLimit = job.MaxTopicLength
	ti.Prompt = "Topic › "
	ti.Width = 40
	ti.Cursor.SetMode(cursor.CursorStatic)
	f := requestForm{topic: ti, subtopics: subtopics, example: -1}
	f.setLanguage(language)
	if f.subtopics < job.MinSubtopics || f.subtopics > job.MaxSubtopics {
		f.subtopics = 3
	}
	return f
}

func (f *requestForm) setLanguage(language string) {
	for i, l := range job.Languages {
		if strings.EqualFold(l, language) {
			f.language = i
			return
		}
	}
	f.language = 0
}

func (f *requestForm) Focus() tea.Cmd { return f.topic.Focus() }

func (f *requestForm) Blur() { f.topic.Blur() }

// Update handles keys while the form has focus. submit is true on enter.
func (f *requestForm) Update(msg tea.Msg) (cmd tea.Cmd, submit bool) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			return nil, true
		case "up":
			if f.subtopics < job.MaxSubtopics {
				f.subtopics++
			}
			return nil, false
		case "down":
			if f.subtopics > job.MinSubtopics {
				f.subtopics--
			}
			return nil, false
		case "ctrl+l":
			f.language = (f.language + 1) % len(job.Languages)
			return nil, false
		case "ctrl+x":
			f.example = (f.example + 1) % len(job.ExampleTopics)
			f.topic.SetValue(job.ExampleTopics[f.example])
			f.topic.CursorEnd()
			return nil, false
		}
	}
	f.topic, cmd = f.topic.Update(msg)
	return cmd, false
}

func (f requestForm) Request() job.Request {
	return job.Request{
		Topic:     f.topic.Value(),
		Language:  job.Languages[f.language],
		Subtopics: f.subtopics,
	}
}

func (f requestForm) View(width int, disabled bool) string {
	label := lipgloss.NewStyle().Foreground(colorMuted)
	value := lipgloss.NewStyle().Bold(true)
	lines := []string{
		titleStyle.Render("New Report"),
		f.topic.View(),
		label.Render("Language  › ") + value.Render(job.Languages[f.language]) + label.Render("  (ctrl+l)"),
		label.Render("Subtopics › ") + value.Render(fmt.Sprintf("%d", f.subtopics)) + label.Render(fmt.Sprintf("  (↑/↓, %d-%d)", job.MinSubtopics, job.MaxSubtopics)),
	}
	hint := "Enter → generate    ctrl+x → example topic"
	if disabled {
		hint = "Generating… enter resubmits"
	}
	lines = append(lines, hintStyle.Render(hint))
	return lipgloss.NewStyle().Width(width).Render(strings.Join(lines, "\n"))
}
