package tui

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportsmith/internal/artifact"
	"github.com/kingrea/reportsmith/internal/cachekey"
	"github.com/kingrea/reportsmith/internal/chat"
	"github.com/kingrea/reportsmith/internal/job"
	"github.com/kingrea/reportsmith/internal/progress"
	"github.com/kingrea/reportsmith/internal/workspace"
)

var (
	// ErrChatUnavailable is returned when the chat session could not be bound
	// to the report.
	ErrChatUnavailable = errors.New("tui: chat could not be initialized")
	// ErrChatFailed is returned when the reply stream broke.
	ErrChatFailed = errors.New("tui: chat reply failed")
)

// RunGenerate submits req and blocks until the report is ready or the job
// fails. Completed stages are written to out as they land.
func RunGenerate(ctx context.Context, backend workspace.Backend, req job.Request, opts workspace.Options, out io.Writer) (artifact.Artifact, error) {
	ws := workspace.New(backend, opts)
	defer ws.Teardown()
	cmd, err := ws.Submit(req)
	if err != nil {
		return artifact.Artifact{}, err
	}
	m := &generateModel{ws: ws, start: cmd, out: orDiscard(out)}
	if err := runHeadless(ctx, m); err != nil {
		return artifact.Artifact{}, err
	}
	if m.err != nil {
		return artifact.Artifact{}, m.err
	}
	return m.result, nil
}

// RunChat binds a chat session to the finished report for key, asks one
// question and streams the reply to out.
func RunChat(ctx context.Context, backend workspace.Backend, key cachekey.Key, question string, opts workspace.Options, out io.Writer) error {
	resp, err := backend.Report(ctx, key)
	if err != nil {
		return err
	}
	a, err := artifact.Decode(key, resp.PDFBase64, resp.ReportText)
	if err != nil {
		return fmt.Errorf("%w: %v", job.ErrMissingArtifact, err)
	}
	ws := workspace.New(backend, opts)
	defer ws.Teardown()
	m := &chatModel{ws: ws, start: ws.Chat().Initialize(a), question: question, out: orDiscard(out)}
	if err := runHeadless(ctx, m); err != nil {
		return err
	}
	return m.err
}

func runHeadless(ctx context.Context, m tea.Model) error {
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithoutRenderer(),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)
	if _, err := p.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

type generateModel struct {
	ws     *workspace.Workspace
	start  tea.Cmd
	out    io.Writer
	shown  [progress.StageCount]bool
	result artifact.Artifact
	err    error
}

func (m *generateModel) Init() tea.Cmd { return m.start }

func (m *generateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.ws.Update(msg)
	m.reportStages()
	switch msg := msg.(type) {
	case job.CompletedMsg:
		m.result = msg.Artifact
		return m, tea.Quit
	case job.FailedMsg:
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, cmd
}

func (m *generateModel) reportStages() {
	flags := m.ws.Job().Snapshot().Progress.Bools()
	for i, done := range flags {
		if done && !m.shown[i] {
			m.shown[i] = true
			fmt.Fprintf(m.out, "✓ %s\n", progress.Stages[i].Label)
		}
	}
}

func (m *generateModel) View() string { return "" }

type chatModel struct {
	ws       *workspace.Workspace
	start    tea.Cmd
	question string
	out      io.Writer
	sent     bool
	written  int
	err      error
}

func (m *chatModel) Init() tea.Cmd { return m.start }

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.ws.Update(msg)
	c := m.ws.Chat()
	if !m.sent {
		switch c.State() {
		case chat.Ready:
			send, err := c.Send(m.question)
			if err != nil {
				m.err = err
				return m, tea.Quit
			}
			m.sent = true
			return m, tea.Batch(cmd, send)
		case chat.Failed:
			m.err = ErrChatUnavailable
			return m, tea.Quit
		}
		return m, cmd
	}
	m.flush()
	if c.State() == chat.Failed {
		m.err = ErrChatFailed
		return m, tea.Quit
	}
	if !c.Loading() {
		fmt.Fprintln(m.out)
		return m, tea.Quit
	}
	return m, cmd
}

// flush writes the part of the assistant reply not yet printed.
func (m *chatModel) flush() {
	msgs := m.ws.Chat().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != chat.RoleAssistant {
			continue
		}
		content := []rune(msgs[i].Content)
		if len(content) > m.written {
			fmt.Fprint(m.out, string(content[m.written:]))
			m.written = len(content)
		}
		return
	}
}

func (m *chatModel) View() string { return "" }

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
