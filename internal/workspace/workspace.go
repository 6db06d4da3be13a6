// Package workspace is the orchestration context: it owns the artifact
// store and the job, editor and chat components, and routes messages
// between them.
package workspace

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportsmith/internal/artifact"
	"github.com/kingrea/reportsmith/internal/chat"
	"github.com/kingrea/reportsmith/internal/job"
	"github.com/kingrea/reportsmith/internal/logbook"
	"github.com/kingrea/reportsmith/internal/rewrite"
)

// Backend is the full report service surface.
type Backend interface {
	job.Backend
	rewrite.Backend
	chat.Backend
}

// Options tunes timing and logging. Zero values select defaults.
type Options struct {
	PollInterval time.Duration
	ErrorDisplay time.Duration
	// Tick replaces tea.Tick for every timer.
	Tick   func(time.Duration, func(time.Time) tea.Msg) tea.Cmd
	Logger logbook.Logger
}

// Workspace wires one user's session together.
type Workspace struct {
	store  *artifact.Store
	job    *job.Orchestrator
	editor *rewrite.Editor
	chat   *chat.Session
	logger logbook.Logger
}

// New builds a workspace over backend.
func New(backend Backend, opts Options) *Workspace {
	logger := logbook.OrNop(opts.Logger)
	store := artifact.NewStore()
	jobOpts := []job.Option{job.WithPollInterval(opts.PollInterval), job.WithLogger(logger)}
	chatOpts := []chat.Option{chat.WithErrorDisplay(opts.ErrorDisplay), chat.WithLogger(logger)}
	if opts.Tick != nil {
		jobOpts = append(jobOpts, job.WithTicker(opts.Tick))
		chatOpts = append(chatOpts, chat.WithTicker(opts.Tick))
	}
	return &Workspace{
		store:  store,
		job:    job.New(backend, store, jobOpts...),
		editor: rewrite.NewEditor(backend, store, logger),
		chat:   chat.New(backend, chatOpts...),
		logger: logger,
	}
}

// Submit starts a new job. The editor and chat are reset first so nothing
// from the previous report survives.
func (w *Workspace) Submit(req job.Request) (tea.Cmd, error) {
	if err := req.Normalize().Validate(); err != nil {
		return nil, err
	}
	w.chat.Reset()
	w.editor.Reset()
	return w.job.Submit(req)
}

// Update forwards msg to every component and reacts to cross-component
// events.
func (w *Workspace) Update(msg tea.Msg) tea.Cmd {
	cmds := []tea.Cmd{
		w.job.Update(msg),
		w.editor.Update(msg),
		w.chat.Update(msg),
	}
	switch msg := msg.(type) {
	case job.CompletedMsg:
		if !w.current(msg.Artifact, msg) {
			break
		}
		w.editor.Load(msg.Artifact)
		cmds = append(cmds, w.chat.Initialize(msg.Artifact))
	case rewrite.SavedMsg:
		if !w.current(msg.Artifact, msg) {
			break
		}
		w.logger.Info("workspace: report saved, re-binding chat")
		cmds = append(cmds, w.chat.Initialize(msg.Artifact))
	}
	return tea.Batch(cmds...)
}

// Active reports whether a is still the active job's stored artifact.
func (w *Workspace) Active(a artifact.Artifact) bool {
	stored, ok := w.store.Current()
	return ok && a.Key == w.job.Snapshot().Key && stored.Key == a.Key && stored.Revision == a.Revision
}

// current is Active plus a log line when a follow-up message delivered after
// a resubmit or a newer save is dropped.
func (w *Workspace) current(a artifact.Artifact, msg tea.Msg) bool {
	if w.Active(a) {
		return true
	}
	w.logger.Warn("workspace: stale operation: dropped %T for %s revision %d (active %s)", msg, a.Key, a.Revision, w.job.Snapshot().Key)
	return false
}

// Teardown stops polling and abandons chat.
func (w *Workspace) Teardown() {
	w.job.Stop()
	w.chat.Reset()
}

// Artifact returns a copy of the current artifact.
func (w *Workspace) Artifact() (artifact.Artifact, bool) {
	return w.store.Current()
}

// Job exposes the orchestrator for rendering and stopping.
func (w *Workspace) Job() *job.Orchestrator { return w.job }

// Editor exposes the rewrite editor.
func (w *Workspace) Editor() *rewrite.Editor { return w.editor }

// Chat exposes the chat session.
func (w *Workspace) Chat() *chat.Session { return w.chat }
