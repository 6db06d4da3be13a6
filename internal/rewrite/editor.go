// Package rewrite edits the report text: span selection, remote rewrites
// spliced back in place, and saving edits for re-rendering.
package rewrite

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/artifact"
	"github.com/kingrea/reportsmith/internal/cachekey"
	"github.com/kingrea/reportsmith/internal/logbook"
)

var (
	ErrNoSelection      = errors.New("rewrite: no visible selection")
	ErrRewriteInFlight  = errors.New("rewrite: a rewrite is already in flight")
	ErrSaveInFlight     = errors.New("rewrite: a save is in flight")
	ErrEditLocked       = errors.New("rewrite: text is locked while a rewrite is in flight")
	ErrStaleSelection   = errors.New("rewrite: text changed since the selection was captured")
	ErrNothingLoaded    = errors.New("rewrite: no report loaded")
	ErrEmptyReplacement = errors.New("rewrite: backend returned empty text")
)

// Backend is the part of the report service the editor needs.
type Backend interface {
	Rewrite(ctx context.Context, req api.RewriteRequest) (api.RewriteResponse, error)
	UpdateReport(ctx context.Context, req api.UpdateRequest) (api.ReportResponse, error)
}

// SavedMsg is emitted after a save replaced the stored artifact.
type SavedMsg struct {
	Artifact artifact.Artifact
}

// RewrittenMsg is emitted after a replacement was spliced into the text.
type RewrittenMsg struct {
	Selection   Selection
	Replacement string
}

type rewriteResultMsg struct {
	gen  int
	sel  Selection
	resp api.RewriteResponse
	err  error
}

type saveResultMsg struct {
	gen  int
	key  cachekey.Key
	sent string
	resp api.ReportResponse
	err  error
}

// Editor owns the editable copy of the report text.
type Editor struct {
	backend Backend
	store   *artifact.Store
	logger  logbook.Logger

	gen       int
	loaded    bool
	key       cachekey.Key
	language  string
	text      string
	revision  int
	selection Selection
	editing   bool
	rewriting bool
	saving    int
	err       error
}

// NewEditor creates an empty editor that saves into store.
func NewEditor(backend Backend, store *artifact.Store, logger logbook.Logger) *Editor {
	return &Editor{backend: backend, store: store, logger: logbook.OrNop(logger)}
}

// Load replaces the editable text with a's text and leaves edit mode.
func (e *Editor) Load(a artifact.Artifact) {
	e.Reset()
	e.loaded = true
	e.key = a.Key
	e.language = a.Language
	e.text = a.Text
}

// Reset drops everything and orphans in-flight rewrites and saves.
func (e *Editor) Reset() {
	e.gen++
	e.loaded = false
	e.key = ""
	e.language = ""
	e.text = ""
	e.revision++
	e.selection = Selection{}
	e.editing = false
	e.rewriting = false
	e.saving = 0
	e.err = nil
}

// SetText records a user edit. Any captured selection becomes stale.
func (e *Editor) SetText(text string) error {
	if e.rewriting {
		return ErrEditLocked
	}
	if text == e.text {
		return nil
	}
	e.text = text
	e.revision++
	e.selection = Selection{}
	return nil
}

// Select captures a span of the current text.
func (e *Editor) Select(start, end int, pointer *Point, viewport Viewport) Selection {
	sel := Capture(e.text, start, end, pointer, e.selection, viewport)
	sel.Revision = e.revision
	e.selection = sel
	return sel
}

// ClearSelection hides the rewrite affordance.
func (e *Editor) ClearSelection() {
	e.selection = Selection{}
}

// ToggleEdit flips edit mode and reports the new value.
func (e *Editor) ToggleEdit() bool {
	if !e.loaded {
		return false
	}
	e.editing = !e.editing
	if !e.editing {
		e.selection = Selection{}
	}
	return e.editing
}

// Rewrite sends the visible selection to the rewrite service. The selection
// is hidden immediately and the text stays locked until the result lands.
// Rewrites and saves exclude each other.
func (e *Editor) Rewrite(language string) (tea.Cmd, error) {
	if e.rewriting {
		return nil, ErrRewriteInFlight
	}
	if e.saving > 0 {
		return nil, ErrSaveInFlight
	}
	sel := e.selection
	if !sel.Visible {
		return nil, ErrNoSelection
	}
	if language == "" {
		language = e.language
	}
	e.rewriting = true
	e.selection = Selection{}
	e.err = nil
	e.logger.Info("rewrite: requesting %d runes at [%d,%d) in %s", sel.Len(), sel.Start, sel.End, language)

	gen, backend := e.gen, e.backend
	req := api.RewriteRequest{Text: sel.Text, Language: language}
	return func() tea.Msg {
		resp, err := backend.Rewrite(context.Background(), req)
		return rewriteResultMsg{gen: gen, sel: sel, resp: resp, err: err}
	}, nil
}

// Save posts the current text for re-rendering under key.
func (e *Editor) Save(key cachekey.Key, language string) (tea.Cmd, error) {
	if !e.loaded {
		return nil, ErrNothingLoaded
	}
	if e.rewriting {
		return nil, ErrRewriteInFlight
	}
	if key == "" {
		key = e.key
	}
	if language == "" {
		language = e.language
	}
	e.saving++
	e.err = nil
	e.logger.Info("rewrite: saving %d runes for %s", len([]rune(e.text)), key)

	gen, backend, text := e.gen, e.backend, e.text
	req := api.UpdateRequest{CacheKey: key.String(), ReportText: text, Language: language}
	return func() tea.Msg {
		resp, err := backend.UpdateReport(context.Background(), req)
		return saveResultMsg{gen: gen, key: key, sent: text, resp: resp, err: err}
	}, nil
}

// Update applies results of the editor's own commands.
func (e *Editor) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case rewriteResultMsg:
		if msg.gen != e.gen {
			e.logger.Warn("rewrite: stale rewrite result discarded")
			return nil
		}
		e.rewriting = false
		if msg.err != nil {
			e.err = msg.err
			e.logger.Error("rewrite: request failed: %v", msg.err)
			return nil
		}
		if msg.resp.RewrittenText == "" {
			e.err = ErrEmptyReplacement
			e.logger.Error("rewrite: %v", ErrEmptyReplacement)
			return nil
		}
		if msg.sel.Revision != e.revision {
			e.err = ErrStaleSelection
			e.logger.Warn("rewrite: %v", ErrStaleSelection)
			return nil
		}
		next, err := Splice(e.text, msg.sel.Start, msg.sel.End, msg.resp.RewrittenText)
		if err != nil {
			e.logger.Warn("rewrite: %v", err)
			return nil
		}
		e.text = next
		e.revision++
		e.logger.Info("rewrite: spliced %d runes at %d", len([]rune(msg.resp.RewrittenText)), msg.sel.Start)
		sel, replacement := msg.sel, msg.resp.RewrittenText
		return func() tea.Msg { return RewrittenMsg{Selection: sel, Replacement: replacement} }
	case saveResultMsg:
		if msg.gen != e.gen {
			e.logger.Warn("rewrite: stale save result discarded")
			return nil
		}
		if e.saving > 0 {
			e.saving--
		}
		if msg.err != nil {
			e.err = msg.err
			e.logger.Error("rewrite: save failed: %v", msg.err)
			return nil
		}
		text := msg.resp.ReportText
		if text == "" {
			text = msg.sent
		}
		decoded, err := artifact.Decode(msg.key, msg.resp.PDFBase64, text)
		if err != nil {
			e.err = fmt.Errorf("rewrite: save returned no document: %w", err)
			e.logger.Error("%v", e.err)
			return nil
		}
		saved, err := e.store.Replace(msg.key, decoded.Document, text)
		if err != nil {
			e.err = err
			e.logger.Warn("rewrite: save result not applied: %v", err)
			return nil
		}
		if e.text == msg.sent && text != e.text {
			e.text = text
			e.revision++
			e.selection = Selection{}
		}
		e.editing = false
		e.logger.Info("rewrite: saved revision %d of %s", saved.Revision, msg.key)
		return func() tea.Msg { return SavedMsg{Artifact: saved} }
	}
	return nil
}

// Text is the current editable text.
func (e *Editor) Text() string { return e.text }

// Revision increases on every change to the text.
func (e *Editor) Revision() int { return e.revision }

// Selection is the current capture, visible or not.
func (e *Editor) Selection() Selection { return e.selection }

// Editing reports whether edit mode is on.
func (e *Editor) Editing() bool { return e.editing }

// Rewriting reports whether a rewrite is in flight.
func (e *Editor) Rewriting() bool { return e.rewriting }

// Saving reports whether any save is outstanding.
func (e *Editor) Saving() bool { return e.saving > 0 }

// Loaded reports whether a report is available for editing.
func (e *Editor) Loaded() bool { return e.loaded }

// Err is the last surfaced error, cleared by the next rewrite or save.
func (e *Editor) Err() error { return e.err }

// Key is the cache key of the loaded report.
func (e *Editor) Key() cachekey.Key { return e.key }

// Language is the language of the loaded report.
func (e *Editor) Language() string { return e.language }
