// internal/tui/app.go
//
// This is the main TUI for reportsmith. It uses bubbletea, which follows
// The Elm Architecture: the App holds all UI state, Update turns messages
// into new state plus commands, and View renders the state.
//
// Report state lives in the workspace. The App forwards every domain
// message to it and only keeps widgets (form, editor, chat input) in sync.

package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/chat"
	"github.com/kingrea/reportsmith/internal/config"
	"github.com/kingrea/reportsmith/internal/job"
	"github.com/kingrea/reportsmith/internal/logbook"
	"github.com/kingrea/reportsmith/internal/rewrite"
	"github.com/kingrea/reportsmith/internal/workspace"
)

// focusArea is the pane receiving key presses.
type focusArea int

const (
	focusForm focusArea = iota
	focusReport
	focusChat
)

const logTailLines = 8

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithBackend replaces the HTTP client built from config.
func WithBackend(b workspace.Backend) AppOption {
	return func(a *App) {
		if b != nil {
			a.backend = b
		}
	}
}

// WithTicker replaces tea.Tick for polling and chat error expiry.
func WithTicker(tick func(time.Duration, func(time.Time) tea.Msg) tea.Cmd) AppOption {
	return func(a *App) {
		a.tick = tick
	}
}

// WithClock overrides the time used to stamp exports.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// App is the main application model.
type App struct {
	config  *config.Config
	logbook *logbook.Logbook
	client  *api.Client
	backend workspace.Backend
	tick    func(time.Duration, func(time.Time) tea.Msg) tea.Cmd
	now     func() time.Time
	ws      *workspace.Workspace

	// UI components
	form       requestForm
	spinner    spinner.Model
	reportView viewport.Model
	editor     textarea.Model
	chatView   viewport.Model
	chatInput  textinput.Model

	focus   focusArea
	mark    int
	hasMark bool
	pointer *rewrite.Point

	statusMsg string
	lastErr   error

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// NewApp creates a new App instance for projectDir.
func NewApp(projectDir string, opts ...AppOption) (*App, error) {
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	lb, err := logbook.New(cfg.LogPath())
	if err != nil {
		lb = nil
	}
	client := api.New(cfg.BaseURL(), api.WithTimeout(cfg.RequestTimeout()))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	ed := textarea.New()
	ed.ShowLineNumbers = false
	ed.CharLimit = 0
	ed.MaxHeight = 0
	ed.Placeholder = "Report text"
	ed.Cursor.SetMode(cursor.CursorStatic)

	in := textinput.New()
	in.Placeholder = "Ask about the report…"
	in.Prompt = "› "
	in.Cursor.SetMode(cursor.CursorStatic)

	app := &App{
		config:     cfg,
		logbook:    lb,
		client:     client,
		backend:    client,
		now:        time.Now,
		form:       newRequestForm(cfg.Project.Defaults.Language, cfg.Project.Defaults.Subtopics),
		spinner:    sp,
		reportView: viewport.New(40, 10),
		editor:     ed,
		chatView:   viewport.New(40, 8),
		chatInput:  in,
		focus:      focusForm,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.ws = workspace.New(app.backend, workspace.Options{
		PollInterval: cfg.PollInterval(),
		ErrorDisplay: cfg.ErrorDisplay(),
		Tick:         app.tick,
		Logger:       lb,
	})
	app.logInfo("Session opened · backend %s", cfg.BaseURL())
	app.syncChat()
	return app, nil
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

// Workspace exposes the underlying session for headless callers and tests.
func (a *App) Workspace() *workspace.Workspace { return a.ws }

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.form.Focus()
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		return a, nil

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease {
			a.pointer = &rewrite.Point{X: msg.X, Y: msg.Y}
		}
		return a, nil

	case spinner.TickMsg:
		if !a.ws.Job().Snapshot().Generating() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	cmd := a.ws.Update(msg)
	a.observe(msg)
	a.syncChat()
	return a, cmd
}

// observe keeps widgets in step with workspace events.
func (a *App) observe(msg tea.Msg) {
	switch msg := msg.(type) {
	case job.CompletedMsg:
		if !a.ws.Active(msg.Artifact) {
			break
		}
		a.statusMsg = fmt.Sprintf("Report ready: %s", msg.Artifact.Topic)
		a.hasMark = false
		a.refreshReport()
	case job.FailedMsg:
		a.statusMsg = "Generation failed: " + job.ErrorMessage(msg.Err)
	case rewrite.RewrittenMsg:
		a.statusMsg = fmt.Sprintf("Rewrote %d characters", msg.Selection.Len())
		a.refreshReport()
	case rewrite.SavedMsg:
		if !a.ws.Active(msg.Artifact) {
			break
		}
		a.statusMsg = fmt.Sprintf("Saved revision %d", msg.Artifact.Revision)
		a.editor.Blur()
		a.hasMark = false
		a.refreshReport()
	}
	if err := a.ws.Editor().Err(); err != nil && err != a.lastErr {
		a.statusMsg = "Report action failed: " + job.ErrorMessage(err)
	}
	a.lastErr = a.ws.Editor().Err()
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	editing := a.ws.Editor().Editing()
	switch msg.String() {
	case "ctrl+c":
		a.ws.Teardown()
		a.logInfo("Session closed")
		return a, tea.Quit
	case "tab":
		if !editing {
			return a, a.cycleFocus()
		}
	}
	switch a.focus {
	case focusForm:
		return a.updateForm(msg)
	case focusReport:
		if editing {
			return a.updateEditor(msg)
		}
		return a.updateReportView(msg)
	case focusChat:
		return a.updateChat(msg)
	}
	return a, nil
}

func (a *App) cycleFocus() tea.Cmd {
	a.form.Blur()
	a.chatInput.Blur()
	a.focus = (a.focus + 1) % 3
	switch a.focus {
	case focusForm:
		return a.form.Focus()
	case focusChat:
		return a.chatInput.Focus()
	}
	return nil
}

func (a *App) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmd, submit := a.form.Update(msg)
	if !submit {
		return a, cmd
	}
	return a, a.submit()
}

func (a *App) submit() tea.Cmd {
	req := a.form.Request()
	cmd, err := a.ws.Submit(req)
	if err != nil {
		var verr *job.ValidationError
		if errors.As(err, &verr) {
			a.statusMsg = fmt.Sprintf("Invalid %s: %s", verr.Field, verr.Reason)
		} else {
			a.statusMsg = err.Error()
		}
		return nil
	}
	if err := a.config.SetDefaults(req.Language, req.Subtopics); err != nil {
		a.logWarn("Could not remember form defaults: %v", err)
	}
	a.hasMark = false
	a.editor.Blur()
	a.refreshReport()
	a.syncChat()
	a.statusMsg = fmt.Sprintf("Generating %q…", strings.TrimSpace(req.Topic))
	return tea.Batch(cmd, a.spinner.Tick)
}

func (a *App) updateReportView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		a.ws.Teardown()
		return a, tea.Quit
	case "e":
		if !a.ws.Editor().Loaded() {
			a.statusMsg = "No report loaded yet"
			return a, nil
		}
		a.ws.Editor().ToggleEdit()
		a.editor.SetValue(a.ws.Editor().Text())
		a.hasMark = false
		a.statusMsg = "Editing: ctrl+t marks, ctrl+r rewrites, ctrl+s saves, esc leaves"
		return a, a.editor.Focus()
	case "d":
		a.download()
		return a, nil
	case "o":
		key := a.ws.Job().Snapshot().Key
		if art, ok := a.ws.Artifact(); ok {
			key = art.Key
		}
		if key.IsZero() {
			a.statusMsg = "No report to open"
			return a, nil
		}
		a.statusMsg = "View at " + a.client.ViewURL(key)
		return a, nil
	}
	var cmd tea.Cmd
	a.reportView, cmd = a.reportView.Update(msg)
	return a, cmd
}

func (a *App) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ed := a.ws.Editor()
	switch msg.String() {
	case "esc":
		ed.ToggleEdit()
		a.editor.Blur()
		a.hasMark = false
		a.refreshReport()
		a.statusMsg = ""
		return a, nil
	case "ctrl+s":
		if ed.Saving() {
			a.statusMsg = "Save already in progress"
			return a, nil
		}
		cmd, err := ed.Save("", "")
		if err != nil {
			a.statusMsg = err.Error()
			return a, nil
		}
		a.statusMsg = "Saving…"
		return a, cmd
	case "ctrl+t":
		a.mark = cursorOffset(a.editor)
		a.hasMark = true
		a.statusMsg = fmt.Sprintf("Mark set at %d", a.mark)
		return a, nil
	case "ctrl+r":
		return a, a.rewriteMarked()
	}
	if ed.Rewriting() {
		a.statusMsg = "Rewrite in progress; text is locked"
		return a, nil
	}
	var cmd tea.Cmd
	a.editor, cmd = a.editor.Update(msg)
	if value := a.editor.Value(); value != ed.Text() {
		if err := ed.SetText(value); err != nil {
			a.editor.SetValue(ed.Text())
			a.statusMsg = err.Error()
		}
	}
	return a, cmd
}

func (a *App) rewriteMarked() tea.Cmd {
	if !a.hasMark {
		a.statusMsg = "Set a mark with ctrl+t first"
		return nil
	}
	ed := a.ws.Editor()
	sel := ed.Select(a.mark, cursorOffset(a.editor), a.pointer, rewrite.Viewport{Width: a.width, Height: a.height})
	if !sel.Visible {
		a.statusMsg = fmt.Sprintf("Select at least %d characters", rewrite.MinSelection)
		return nil
	}
	cmd, err := ed.Rewrite("")
	if err != nil {
		a.statusMsg = err.Error()
		return nil
	}
	a.hasMark = false
	a.statusMsg = fmt.Sprintf("Rewriting %d characters…", sel.Len())
	return cmd
}

func (a *App) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		cmd, err := a.ws.Chat().Send(a.chatInput.Value())
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			return a, nil
		case err != nil:
			a.statusMsg = "Chat is not ready yet"
			return a, nil
		}
		a.chatInput.Reset()
		a.syncChat()
		return a, cmd
	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.chatView, cmd = a.chatView.Update(msg)
		return a, cmd
	}
	var cmd tea.Cmd
	a.chatInput, cmd = a.chatInput.Update(msg)
	return a, cmd
}

func (a *App) download() {
	art, ok := a.ws.Artifact()
	if !ok {
		a.statusMsg = "No report to download"
		return
	}
	dir := a.config.DownloadsDir()
	path, err := art.WriteFile(dir)
	if err != nil {
		a.statusMsg = "Download failed: " + err.Error()
		return
	}
	if _, err := art.WriteText(dir, a.now()); err != nil {
		a.logWarn("Text export failed: %v", err)
	}
	a.logInfo("Downloaded %s", path)
	a.statusMsg = "Saved " + path
}

func (a *App) refreshReport() {
	a.reportView.SetContent(a.ws.Editor().Text())
	a.reportView.GotoTop()
	if a.ws.Editor().Editing() {
		a.editor.SetValue(a.ws.Editor().Text())
	}
}

func (a *App) syncChat() {
	a.chatView.SetContent(renderTranscript(a.ws.Chat().Messages(), a.chatView.Width))
	a.chatView.GotoBottom()
}

func (a *App) layout() {
	left := max(30, a.width*2/5)
	right := max(30, a.width-left-6)
	body := max(12, a.height-logTailLines-8)
	reportH := max(5, body/2)
	chatH := max(4, body-reportH-6)

	a.reportView.Width = right
	a.reportView.Height = reportH
	a.editor.SetWidth(right)
	a.editor.SetHeight(reportH)
	a.chatView.Width = right
	a.chatView.Height = chatH
	a.chatInput.Width = right - 4
	a.form.topic.Width = left - 12
	a.syncChat()
}

// View renders the whole screen.
func (a *App) View() string {
	width := max(80, a.width)
	left := max(30, width*2/5)
	right := max(30, width-left-6)

	header := headerStyle.Render("reportsmith") + " " + mutedStyle.Render(a.config.BaseURL())

	snap := a.ws.Job().Snapshot()
	leftCol := lipgloss.JoinVertical(lipgloss.Left,
		panel(a.focus == focusForm).Render(a.form.View(left, snap.Generating())),
		panel(false).Render(renderProgress(snap, a.spinner.View(), left)),
	)
	rightCol := lipgloss.JoinVertical(lipgloss.Left,
		panel(a.focus == focusReport).Render(a.renderReport(right)),
		panel(a.focus == focusChat).Render(a.renderChat(right)),
	)
	columns := lipgloss.JoinHorizontal(lipgloss.Top, leftCol, rightCol)

	lines, total := a.logbook.Tail(logTailLines)
	logs := panel(false).Render(renderLogs(lines, total, width-4))

	footer := mutedStyle.Render("tab → switch pane    ctrl+c → quit")
	if a.statusMsg != "" {
		footer = lipgloss.NewStyle().Bold(true).Render(a.statusMsg) + "\n" + footer
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, columns, logs, footer)
}

func (a *App) renderReport(width int) string {
	ed := a.ws.Editor()
	if !ed.Loaded() {
		return lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Report"),
			mutedStyle.Width(width).Render("Generate a report to see it here."),
		)
	}
	title := titleStyle.Render("Report · " + ed.Key().Topic())
	if art, ok := a.ws.Artifact(); ok {
		title += mutedStyle.Render(fmt.Sprintf(" (rev %d)", art.Revision))
	}
	if !ed.Editing() {
		hint := hintStyle.Render("e → edit    d → download    o → view URL")
		return lipgloss.JoinVertical(lipgloss.Left, title, a.reportView.View(), hint)
	}
	var notes []string
	if a.hasMark {
		notes = append(notes, fmt.Sprintf("mark at %d", a.mark))
	}
	if ed.Rewriting() {
		notes = append(notes, "rewriting…")
	}
	if ed.Saving() {
		notes = append(notes, "saving…")
	}
	hint := "ctrl+t mark · ctrl+r rewrite · ctrl+s save · esc done"
	if len(notes) > 0 {
		hint = strings.Join(notes, " · ") + "    " + hint
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, a.editor.View(), hintStyle.Render(hint))
}

func (a *App) renderChat(width int) string {
	c := a.ws.Chat()
	title := titleStyle.Render("Chat")
	if c.State() != chat.Uninitialized {
		title += mutedStyle.Render(" · " + c.State().String())
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		lipgloss.NewStyle().Width(width).Render(a.chatView.View()),
		a.chatInput.View(),
	)
}

// cursorOffset converts the textarea cursor into a rune offset in its value.
func cursorOffset(ta textarea.Model) int {
	lines := strings.Split(ta.Value(), "\n")
	row := ta.Line()
	offset := 0
	for i := 0; i < row && i < len(lines); i++ {
		offset += len([]rune(lines[i])) + 1
	}
	info := ta.LineInfo()
	return offset + info.StartColumn + info.ColumnOffset
}
