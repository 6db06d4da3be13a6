package workspace

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/chat"
	"github.com/kingrea/reportsmith/internal/job"
	"github.com/kingrea/reportsmith/internal/logbook"
	"github.com/kingrea/reportsmith/internal/rewrite"
	"github.com/kingrea/reportsmith/internal/stubbackend"
)

func immediateTick(_ time.Duration, fn func(time.Time) tea.Msg) tea.Cmd {
	return func() tea.Msg { return fn(time.Time{}) }
}

// drive runs cmd and every follow-up through the workspace, returning all
// messages observed.
func drive(t *testing.T, w *Workspace, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	var seen []tea.Msg
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 2000 {
			t.Fatalf("command queue did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		if msg == nil {
			continue
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		seen = append(seen, msg)
		queue = append(queue, w.Update(msg))
	}
	return seen
}

func newStubWorkspace(t *testing.T) (*Workspace, *logbook.Recorder) {
	t.Helper()
	settings := stubbackend.DefaultSettings()
	settings.StageDelay = 0
	settings.ChunkDelay = 0
	srv := stubbackend.NewServer(settings)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	rec := &logbook.Recorder{}
	w := New(api.New(ts.URL), Options{Tick: immediateTick, Logger: rec})
	return w, rec
}

func TestGenerateEditChatAgainstStub(t *testing.T) {
	w, _ := newStubWorkspace(t)
	req := job.Request{Topic: "Impact of Renewable Energy", Language: "English", Subtopics: 3}

	cmd, err := w.Submit(req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	msgs := drive(t, w, cmd)

	var completed bool
	for _, msg := range msgs {
		if _, ok := msg.(job.CompletedMsg); ok {
			completed = true
		}
	}
	if !completed {
		t.Fatalf("no CompletedMsg in %d messages", len(msgs))
	}
	snap := w.Job().Snapshot()
	if snap.State != job.Completed || !snap.Progress.Complete() {
		t.Fatalf("snapshot = %+v", snap)
	}
	a, ok := w.Artifact()
	if !ok || a.Key != req.Key() || len(a.Document) == 0 {
		t.Fatalf("artifact = %+v, %v", a, ok)
	}
	if !w.Editor().Loaded() || w.Editor().Text() != a.Text {
		t.Fatalf("editor not loaded with artifact text")
	}
	if w.Chat().State() != chat.Ready || w.Chat().SessionID() != req.Topic {
		t.Fatalf("chat state = %v id = %q", w.Chat().State(), w.Chat().SessionID())
	}

	// Rewrite the leading word.
	sel := w.Editor().Select(0, 6, nil, rewrite.Viewport{Width: 80, Height: 24})
	if sel.Text != "Impact" {
		t.Fatalf("selection = %+v", sel)
	}
	cmd, err = w.Editor().Rewrite("")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	drive(t, w, cmd)
	if !strings.HasPrefix(w.Editor().Text(), "Impact. of Renewable Energy") {
		t.Fatalf("text after rewrite = %q", firstLine(w.Editor().Text()))
	}

	// Save re-renders and re-binds chat to the new document.
	before := a.Revision
	cmd, err = w.Editor().Save("", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	msgs = drive(t, w, cmd)
	var saved bool
	for _, msg := range msgs {
		if _, ok := msg.(rewrite.SavedMsg); ok {
			saved = true
		}
	}
	if !saved {
		t.Fatalf("no SavedMsg")
	}
	a, _ = w.Artifact()
	if a.Revision <= before || !strings.HasPrefix(a.Text, "Impact.") {
		t.Fatalf("artifact after save = rev %d text %q", a.Revision, firstLine(a.Text))
	}
	if w.Chat().State() != chat.Ready {
		t.Fatalf("chat state after save = %v", w.Chat().State())
	}

	// Ask a question and collect the streamed reply.
	cmd, err = w.Chat().Send("What are the main drivers?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	drive(t, w, cmd)
	history := w.Chat().Messages()
	last := history[len(history)-1]
	if last.Role != chat.RoleAssistant || !strings.Contains(last.Content, "What are the main drivers?") {
		t.Fatalf("last message = %+v", last)
	}
	if w.Chat().Loading() {
		t.Fatalf("chat still loading after stream end")
	}
}

func TestSubmitRejectsInvalidRequestWithoutReset(t *testing.T) {
	w, _ := newStubWorkspace(t)
	cmd, err := w.Submit(job.Request{Topic: "AI", Language: "English", Subtopics: 3})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drive(t, w, cmd)
	if w.Chat().State() != chat.Ready {
		t.Fatalf("chat state = %v", w.Chat().State())
	}

	_, err = w.Submit(job.Request{Topic: "AI", Language: "English", Subtopics: 1})
	var verr *job.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if w.Chat().State() != chat.Ready || !w.Editor().Loaded() {
		t.Fatalf("invalid submit reset the session")
	}
	if _, ok := w.Artifact(); !ok {
		t.Fatalf("invalid submit cleared the artifact")
	}
}

func TestResubmitClearsPreviousReport(t *testing.T) {
	w, _ := newStubWorkspace(t)
	cmd, _ := w.Submit(job.Request{Topic: "AI", Language: "English", Subtopics: 2})
	drive(t, w, cmd)

	cmd, err := w.Submit(job.Request{Topic: "Climate Change Effects", Language: "Spanish", Subtopics: 4})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, ok := w.Artifact(); ok {
		t.Fatalf("artifact survived resubmission")
	}
	if w.Editor().Loaded() || w.Chat().State() != chat.Uninitialized {
		t.Fatalf("editor or chat survived resubmission")
	}
	drive(t, w, cmd)
	a, ok := w.Artifact()
	if !ok || a.Topic != "Climate Change Effects" || a.Language != "Spanish" {
		t.Fatalf("artifact = %+v", a)
	}
}

func TestTeardownStopsPolling(t *testing.T) {
	w, rec := newStubWorkspace(t)
	cmd, _ := w.Submit(job.Request{Topic: "AI", Language: "English", Subtopics: 2})
	w.Teardown()
	drive(t, w, cmd)
	if _, ok := w.Artifact(); ok {
		t.Fatalf("artifact stored after teardown")
	}
	if !rec.Contains(logbook.LevelWarn, "dropped") {
		t.Fatalf("expected stale drop to be logged: %+v", rec.Entries())
	}
}

// driveUntil runs cmd like drive but hands back the first message matching
// hold without delivering it.
func driveUntil(t *testing.T, w *Workspace, cmd tea.Cmd, hold func(tea.Msg) bool) tea.Msg {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 2000 {
			t.Fatalf("command queue did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		if msg == nil {
			continue
		}
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		if hold(msg) {
			return msg
		}
		queue = append(queue, w.Update(msg))
	}
	t.Fatalf("no message matched")
	return nil
}

func isCompleted(msg tea.Msg) bool {
	_, ok := msg.(job.CompletedMsg)
	return ok
}

func TestCompletionDeliveredAfterResubmitIsDropped(t *testing.T) {
	w, rec := newStubWorkspace(t)
	first := job.Request{Topic: "Old Topic", Language: "English", Subtopics: 3}
	cmd, err := w.Submit(first)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	held := driveUntil(t, w, cmd, isCompleted)

	second := job.Request{Topic: "New Topic", Language: "French", Subtopics: 4}
	next, err := w.Submit(second)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drive(t, w, w.Update(held))

	if snap := w.Job().Snapshot(); snap.Key != second.Key() || snap.State != job.Submitting {
		t.Fatalf("job = %s %s", snap.State, snap.Key)
	}
	if w.Editor().Loaded() {
		t.Fatalf("editor bound to superseded report %s", w.Editor().Key())
	}
	if w.Chat().State() != chat.Uninitialized || w.Chat().SessionID() != "" {
		t.Fatalf("chat = %s %q", w.Chat().State(), w.Chat().SessionID())
	}
	if !rec.Contains(logbook.LevelWarn, "dropped job.CompletedMsg") {
		t.Fatalf("expected drop to be logged: %+v", rec.Entries())
	}

	drive(t, w, next)
	if a, ok := w.Artifact(); !ok || a.Key != second.Key() || w.Editor().Key() != second.Key() {
		t.Fatalf("second job did not complete cleanly: %+v", a)
	}
	if w.Chat().SessionID() != second.Topic {
		t.Fatalf("chat session = %q", w.Chat().SessionID())
	}
}

func TestSameKeyResubmitDropsEarlierCompletion(t *testing.T) {
	w, _ := newStubWorkspace(t)
	req := job.Request{Topic: "AI", Language: "English", Subtopics: 2}
	cmd, _ := w.Submit(req)
	held := driveUntil(t, w, cmd, isCompleted)

	if _, err := w.Submit(req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drive(t, w, w.Update(held))
	if w.Editor().Loaded() || w.Chat().State() != chat.Uninitialized {
		t.Fatalf("earlier completion applied: loaded=%v chat=%s", w.Editor().Loaded(), w.Chat().State())
	}
}

func TestSavedMsgForOlderRevisionIsDropped(t *testing.T) {
	w, rec := newStubWorkspace(t)
	cmd, _ := w.Submit(job.Request{Topic: "AI", Language: "English", Subtopics: 2})
	drive(t, w, cmd)

	save := func() tea.Msg {
		c, err := w.Editor().Save("", "")
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		return driveUntil(t, w, c, func(msg tea.Msg) bool {
			_, ok := msg.(rewrite.SavedMsg)
			return ok
		})
	}
	older := save()
	newer := save()
	drive(t, w, w.Update(newer))
	state := w.Chat().State()
	if cmd := w.Update(older); cmd != nil {
		t.Fatalf("older save produced follow-up work")
	}
	if w.Chat().State() != state {
		t.Fatalf("older save re-bound chat: %s -> %s", state, w.Chat().State())
	}
	if !rec.Contains(logbook.LevelWarn, "dropped rewrite.SavedMsg") {
		t.Fatalf("expected drop to be logged: %+v", rec.Entries())
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
