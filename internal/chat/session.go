// Package chat binds a conversational session to the current document and
// streams assistant replies into it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/artifact"
	"github.com/kingrea/reportsmith/internal/logbook"
)

// DefaultErrorDisplay is how long a transient error stays on screen.
const DefaultErrorDisplay = 3 * time.Second

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrNotReady     = errors.New("chat: session is not ready")
)

// State is the lifecycle position of a session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Sending
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Sending:
		return "sending"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Role tags who a message came from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is one entry of the transcript.
type Message struct {
	ID        int
	Role      Role
	Content   string
	Direction Direction
}

// Backend is the part of the report service a session needs.
type Backend interface {
	InitChat(ctx context.Context, req api.ChatInitRequest) error
	SendChatMessage(ctx context.Context, req api.ChatMessageRequest) (io.ReadCloser, error)
}

// TickFunc schedules a message after d. tea.Tick satisfies it.
type TickFunc func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// Option customizes a Session.
type Option func(*Session)

// WithTicker replaces tea.Tick for the self-clearing timers.
func WithTicker(tick TickFunc) Option {
	return func(s *Session) {
		if tick != nil {
			s.tick = tick
		}
	}
}

// WithErrorDisplay sets how long transient errors stay visible.
func WithErrorDisplay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.errorDisplay = d
		}
	}
}

// WithLogger routes session events to logger.
func WithLogger(logger logbook.Logger) Option {
	return func(s *Session) {
		s.logger = logbook.OrNop(logger)
	}
}

// WithSessionID overrides the id generator used when a document has no topic.
func WithSessionID(gen func() string) Option {
	return func(s *Session) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// Session is the chat state machine. All methods run on the update loop;
// network work happens inside the returned commands.
type Session struct {
	backend      Backend
	tick         TickFunc
	errorDisplay time.Duration
	logger       logbook.Logger
	newID        func() string

	gen      int
	id       string
	topic    string
	state    State
	ready    bool
	loading  bool
	messages []Message
	nextID   int
	buffer   strings.Builder
	// assistant is the ID of the placeholder being streamed into.
	assistant int
}

// New creates an uninitialized session.
func New(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend:      backend,
		tick:         tea.Tick,
		errorDisplay: DefaultErrorDisplay,
		logger:       logbook.Nop(),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type initResultMsg struct {
	gen int
	err error
}

type initExpiredMsg struct{ gen int }

type streamOpenedMsg struct {
	gen    int
	stream *Stream
	err    error
}

type chunkMsg struct {
	gen    int
	stream *Stream
	text   string
	err    error
}

type errorExpiredMsg struct {
	gen int
	id  int
}

// Initialize starts a new generation bound to a. Everything from the
// previous generation is dropped.
func (s *Session) Initialize(a artifact.Artifact) tea.Cmd {
	s.reset()
	s.topic = strings.TrimSpace(a.Topic)
	s.id = s.topic
	if s.id == "" {
		s.id = s.newID()
	}
	s.state = Initializing
	s.appendMessage(RoleSystem, "Initializing new report chat...")
	gen := s.gen
	req := api.ChatInitRequest{SessionID: s.id, PDFBase64: a.Base64()}
	backend := s.backend
	s.logger.Info("chat: initializing session %q", s.id)
	return func() tea.Msg {
		return initResultMsg{gen: gen, err: backend.InitChat(context.Background(), req)}
	}
}

// Send posts text and streams the reply into a new assistant message.
func (s *Session) Send(text string) (tea.Cmd, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !s.ready || s.loading {
		return nil, ErrNotReady
	}
	s.loading = true
	s.state = Sending
	s.appendMessage(RoleUser, text)
	s.assistant = s.appendMessage(RoleAssistant, "")
	s.buffer.Reset()

	gen := s.gen
	req := api.ChatMessageRequest{SessionID: s.id, Message: text, Stream: true}
	backend := s.backend
	return func() tea.Msg {
		body, err := backend.SendChatMessage(context.Background(), req)
		if err != nil {
			return streamOpenedMsg{gen: gen, err: err}
		}
		return streamOpenedMsg{gen: gen, stream: NewStream(body)}
	}, nil
}

// Update applies a message produced by one of the session's commands.
// Messages from other packages are ignored.
func (s *Session) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case initResultMsg:
		if msg.gen != s.gen {
			s.logger.Warn("chat: stale init result discarded")
			return nil
		}
		if msg.err != nil {
			s.state = Failed
			s.ready = false
			s.messages = nil
			s.appendMessage(RoleError, "Failed to initialize chat. Please try again.")
			s.logger.Error("chat: init failed: %v", msg.err)
			gen := s.gen
			return s.tick(s.errorDisplay, func(time.Time) tea.Msg { return initExpiredMsg{gen: gen} })
		}
		s.state = Ready
		s.ready = true
		label := s.topic
		if label == "" {
			label = "New Report"
		}
		s.messages = nil
		s.appendMessage(RoleSystem, fmt.Sprintf("Chat initialized for report %q. You can now ask questions.", label))
		s.logger.Info("chat: session %q ready", s.id)
		return nil
	case initExpiredMsg:
		if msg.gen != s.gen || s.state != Failed || s.ready {
			return nil
		}
		s.messages = nil
		s.state = Uninitialized
		return nil
	case streamOpenedMsg:
		if msg.gen != s.gen {
			s.logger.Warn("chat: stale stream discarded")
			return drain(msg.stream)
		}
		if msg.err != nil {
			return s.fail(msg.err)
		}
		return readNext(msg.gen, msg.stream)
	case chunkMsg:
		if msg.gen != s.gen {
			s.logger.Warn("chat: stale stream discarded")
			return drain(msg.stream)
		}
		if msg.text != "" {
			s.buffer.WriteString(msg.text)
			s.setContent(s.assistant, s.buffer.String())
		}
		switch {
		case msg.err == nil:
			return readNext(msg.gen, msg.stream)
		case errors.Is(msg.err, io.EOF):
			_ = msg.stream.Close()
			s.finish()
			if s.contentOf(s.assistant) == "" {
				s.removeMessage(s.assistant)
			}
			return nil
		default:
			_ = msg.stream.Close()
			return s.fail(msg.err)
		}
	case errorExpiredMsg:
		if msg.gen != s.gen {
			return nil
		}
		s.removeMessage(msg.id)
		if s.state == Failed && s.ready {
			s.state = Ready
		}
		return nil
	}
	return nil
}

// Reset returns the session to Uninitialized and orphans in-flight work.
func (s *Session) Reset() {
	s.reset()
}

func (s *Session) reset() {
	s.gen++
	s.id = ""
	s.topic = ""
	s.state = Uninitialized
	s.ready = false
	s.loading = false
	s.messages = nil
	s.buffer.Reset()
	s.assistant = 0
}

func (s *Session) fail(err error) tea.Cmd {
	s.finish()
	if s.contentOf(s.assistant) == "" {
		s.removeMessage(s.assistant)
	}
	s.state = Failed
	id := s.appendMessage(RoleError, "Failed to get AI response. Please try again.")
	s.logger.Error("chat: reply failed: %v", err)
	gen := s.gen
	return s.tick(s.errorDisplay, func(time.Time) tea.Msg { return errorExpiredMsg{gen: gen, id: id} })
}

func (s *Session) finish() {
	s.loading = false
	if s.ready {
		s.state = Ready
	}
}

func readNext(gen int, stream *Stream) tea.Cmd {
	return func() tea.Msg {
		text, err := stream.Next()
		return chunkMsg{gen: gen, stream: stream, text: text, err: err}
	}
}

func drain(stream *Stream) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		_ = stream.Drain()
		return nil
	}
}

func (s *Session) appendMessage(role Role, content string) int {
	s.nextID++
	s.messages = append(s.messages, Message{ID: s.nextID, Role: role, Content: content})
	return s.nextID
}

func (s *Session) indexOf(id int) int {
	for i, m := range s.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) setContent(id int, content string) {
	if i := s.indexOf(id); i >= 0 {
		s.messages[i].Content = content
	}
}

func (s *Session) contentOf(id int) string {
	if i := s.indexOf(id); i >= 0 {
		return s.messages[i].Content
	}
	return ""
}

func (s *Session) removeMessage(id int) {
	if i := s.indexOf(id); i >= 0 {
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
	}
}

// Messages returns the transcript with per-message direction filled in.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		m.Direction = DirectionOf(m.Content)
		out[i] = m
	}
	return out
}

// State reports the lifecycle position.
func (s *Session) State() State { return s.state }

// Loading is true while a reply is streaming.
func (s *Session) Loading() bool { return s.loading }

// SessionID is the backend session identifier, empty before Initialize.
func (s *Session) SessionID() string { return s.id }

// CanSend reports whether Send would accept a message.
func (s *Session) CanSend() bool { return s.ready && !s.loading }
