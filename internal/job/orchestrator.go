// Package job drives one report generation from submission through progress
// polling to the fetched artifact.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/artifact"
	"github.com/kingrea/reportsmith/internal/cachekey"
	"github.com/kingrea/reportsmith/internal/logbook"
	"github.com/kingrea/reportsmith/internal/progress"
)

// DefaultPollInterval is the spacing between progress polls.
const DefaultPollInterval = time.Second

var (
	// ErrMissingArtifact means the backend reported completion but the
	// report payload had no usable document.
	ErrMissingArtifact = errors.New("job: completed report has no document")
	// ErrStale marks a result that belongs to a superseded job.
	ErrStale = errors.New("job: stale operation")
	// ErrGenerationFailed means the backend gave up on the job.
	ErrGenerationFailed = errors.New("job: generation failed")
)

// State is the lifecycle position of the active job.
type State int

const (
	Idle State = iota
	Submitting
	Polling
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Polling:
		return "polling"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Backend is the part of the report service a job needs.
type Backend interface {
	GenerateReport(ctx context.Context, req api.GenerateRequest) error
	Progress(ctx context.Context, key cachekey.Key) (api.ProgressResponse, error)
	Report(ctx context.Context, key cachekey.Key) (api.ReportResponse, error)
}

// TickFunc schedules a message after d. tea.Tick satisfies it.
type TickFunc func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// CompletedMsg is emitted once the artifact for a job is stored.
type CompletedMsg struct {
	Key      cachekey.Key
	Artifact artifact.Artifact
}

// FailedMsg is emitted when a job ends in Failed.
type FailedMsg struct {
	Key cachekey.Key
	Err error
}

type submittedMsg struct {
	epoch int
	err   error
}

type pollTickMsg struct{ epoch int }

type progressMsg struct {
	epoch int
	resp  api.ProgressResponse
	err   error
}

type artifactMsg struct {
	epoch int
	resp  api.ReportResponse
	err   error
}

// Snapshot is a read-only view of the orchestrator for rendering.
type Snapshot struct {
	State    State
	Request  Request
	Key      cachekey.Key
	Progress progress.Vector
	View     progress.View
	Err      error
	Polls    int
}

// Generating reports whether a job is between submission and a terminal state.
func (s Snapshot) Generating() bool {
	return s.State == Submitting || s.State == Polling
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTicker replaces tea.Tick for poll scheduling.
func WithTicker(tick TickFunc) Option {
	return func(o *Orchestrator) {
		if tick != nil {
			o.tick = tick
		}
	}
}

// WithPollInterval sets the spacing between polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithLogger routes job events to logger.
func WithLogger(logger logbook.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logbook.OrNop(logger)
	}
}

// Orchestrator owns the submit, poll and fetch cycle. Every method runs on
// the update loop. Results are tagged with the epoch they were issued under
// and dropped when the epoch has moved on.
type Orchestrator struct {
	backend  Backend
	store    *artifact.Store
	tick     TickFunc
	interval time.Duration
	logger   logbook.Logger

	epoch    int
	state    State
	req      Request
	key      cachekey.Key
	tracker  progress.Tracker
	fetching bool
	err      error
	polls    int
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates an idle orchestrator that writes finished artifacts to store.
func New(backend Backend, store *artifact.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  backend,
		store:    store,
		tick:     tea.Tick,
		interval: DefaultPollInterval,
		logger:   logbook.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Submit validates req and starts a new job, superseding any job in flight.
// An invalid request leaves the orchestrator untouched.
func (o *Orchestrator) Submit(req Request) (tea.Cmd, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o.supersede()
	o.store.Clear()
	o.tracker.Reset()
	o.req = req
	o.key = req.Key()
	o.state = Submitting
	o.err = nil
	o.fetching = false
	o.polls = 0
	o.logger.Info("job: submitting %q (%s, %d subtopics)", req.Topic, req.Language, req.Subtopics)

	epoch, ctx, backend := o.epoch, o.ctx, o.backend
	payload := req.payload()
	return func() tea.Msg {
		return submittedMsg{epoch: epoch, err: backend.GenerateReport(ctx, payload)}
	}, nil
}

// Stop abandons the active job. Late results are discarded.
func (o *Orchestrator) Stop() {
	if o.state == Submitting || o.state == Polling {
		o.logger.Info("job: stopped %s", o.key)
		o.state = Idle
	}
	o.supersede()
	o.fetching = false
}

func (o *Orchestrator) supersede() {
	if o.cancel != nil {
		o.cancel()
	}
	o.epoch++
	o.ctx, o.cancel = context.WithCancel(context.Background())
}

// Update applies results of the orchestrator's own commands.
func (o *Orchestrator) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case submittedMsg:
		if o.stale(msg.epoch, msg) {
			return nil
		}
		if msg.err != nil {
			return o.fail(msg.err)
		}
		o.state = Polling
		o.tracker.Observe(progress.Vector{})
		o.logger.Info("job: accepted %s, polling every %s", o.key, o.interval)
		return o.schedulePoll()
	case pollTickMsg:
		if o.stale(msg.epoch, msg) || o.state != Polling {
			return nil
		}
		epoch, ctx, backend, key := o.epoch, o.ctx, o.backend, o.key
		o.polls++
		return func() tea.Msg {
			resp, err := backend.Progress(ctx, key)
			return progressMsg{epoch: epoch, resp: resp, err: err}
		}
	case progressMsg:
		if o.stale(msg.epoch, msg) || o.state != Polling {
			return nil
		}
		return o.handleProgress(msg)
	case artifactMsg:
		if o.stale(msg.epoch, msg) {
			return nil
		}
		o.fetching = false
		if msg.err != nil {
			return o.fail(msg.err)
		}
		a, err := artifact.Decode(o.key, msg.resp.PDFBase64, msg.resp.ReportText)
		if err != nil {
			return o.fail(fmt.Errorf("%w: %v", ErrMissingArtifact, err))
		}
		stored := o.store.Set(a)
		o.state = Completed
		o.logger.Info("job: completed %s (%d bytes)", o.key, len(stored.Document))
		key := o.key
		return func() tea.Msg { return CompletedMsg{Key: key, Artifact: stored} }
	}
	return nil
}

func (o *Orchestrator) handleProgress(msg progressMsg) tea.Cmd {
	if msg.err != nil {
		o.tracker.Fail(msg.err)
		return o.fail(msg.err)
	}
	merged, regressed := o.tracker.Observe(msg.resp.Progress)
	if regressed {
		o.logger.Warn("job: backend cleared a completed stage for %s; keeping it", o.key)
	}
	if msg.resp.Status == api.StatusFailed || merged.Failed() {
		detail := merged.Error
		if detail == "" {
			detail = "backend reported failure"
		}
		err := fmt.Errorf("%w: %s", ErrGenerationFailed, detail)
		o.tracker.Fail(err)
		return o.fail(err)
	}
	if !msg.resp.IsComplete {
		return o.schedulePoll()
	}
	if o.fetching {
		return nil
	}
	o.fetching = true
	o.logger.Info("job: %s complete, fetching report", o.key)
	epoch, ctx, backend, key := o.epoch, o.ctx, o.backend, o.key
	return func() tea.Msg {
		resp, err := backend.Report(ctx, key)
		return artifactMsg{epoch: epoch, resp: resp, err: err}
	}
}

func (o *Orchestrator) schedulePoll() tea.Cmd {
	epoch := o.epoch
	return o.tick(o.interval, func(time.Time) tea.Msg { return pollTickMsg{epoch: epoch} })
}

func (o *Orchestrator) stale(epoch int, msg tea.Msg) bool {
	if epoch == o.epoch {
		return false
	}
	o.logger.Warn("%v: dropped %T from epoch %d (current %d)", ErrStale, msg, epoch, o.epoch)
	return true
}

func (o *Orchestrator) fail(err error) tea.Cmd {
	o.state = Failed
	o.err = err
	o.logger.Error("job: %s failed: %v", o.key, err)
	key := o.key
	return func() tea.Msg { return FailedMsg{Key: key, Err: err} }
}

// Snapshot returns the current job state for rendering.
func (o *Orchestrator) Snapshot() Snapshot {
	snap := Snapshot{
		State:    o.state,
		Request:  o.req,
		Key:      o.key,
		Progress: o.tracker.Last(),
		Err:      o.err,
		Polls:    o.polls,
	}
	snap.View = progress.Derive(snap.Progress, snap.Generating())
	return snap
}

// ErrorMessage renders err for a banner, preferring the backend's own text.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *api.TransportError
	if errors.As(err, &te) {
		return te.Message()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("%s %s", ve.Field, ve.Reason)
	}
	return err.Error()
}
