package stubbackend

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/cachekey"
	"github.com/kingrea/reportsmith/internal/progress"
)

// report is one generation job. Stage i is done once (i+1)*stageDelay has
// passed since started.
type report struct {
	topic    string
	language string
	pages    int
	started  time.Time
	failure  string
	document []byte
	text     string
	// edited reports are complete regardless of the clock.
	edited bool
}

type chatSession struct {
	document []byte
	turns    int
}

// registry is the in-memory state behind the HTTP handlers.
type registry struct {
	mu         sync.Mutex
	stageDelay time.Duration
	reports    map[cachekey.Key]*report
	sessions   map[string]*chatSession
	failures   map[string]string
}

func newRegistry(stageDelay time.Duration) *registry {
	return &registry{
		stageDelay: stageDelay,
		reports:    map[cachekey.Key]*report{},
		sessions:   map[string]*chatSession{},
		failures:   map[string]string{},
	}
}

type startOutcome int

const (
	outcomeStarted startOutcome = iota
	outcomeInProgress
	outcomeReady
)

// start begins a job for key unless one is running or already finished. The
// finished document is returned for outcomeReady.
func (r *registry) start(key cachekey.Key, req api.GenerateRequest, now time.Time) (startOutcome, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.reports[key]; ok {
		_, status := r.stateLocked(existing, now)
		switch status {
		case api.StatusCompleted:
			return outcomeReady, bytes.Clone(existing.document)
		case api.StatusInProgress:
			return outcomeInProgress, nil
		}
	}
	rep := &report{
		topic:    req.Topic,
		language: req.Language,
		pages:    req.Pages,
		started:  now,
		failure:  r.failures[req.Topic],
	}
	r.reports[key] = rep
	return outcomeStarted, nil
}

// progress reports the vector and status for key as of now.
func (r *registry) progress(key cachekey.Key, now time.Time) (progress.Vector, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[key]
	if !ok {
		return progress.Vector{}, api.StatusNotStarted
	}
	return r.stateLocked(rep, now)
}

func (r *registry) stateLocked(rep *report, now time.Time) (progress.Vector, string) {
	if rep.edited {
		return progress.FromBools([progress.StageCount]bool{true, true, true, true}), api.StatusCompleted
	}
	elapsed := now.Sub(rep.started)
	var flags [progress.StageCount]bool
	for i := range flags {
		flags[i] = elapsed >= time.Duration(i+1)*r.stageDelay
	}
	v := progress.FromBools(flags)
	if rep.failure != "" && flags[progress.TopicAnalysis] {
		v = progress.FromBools([progress.StageCount]bool{true})
		v.Error = rep.failure
		return v, api.StatusFailed
	}
	if !v.Complete() {
		return v, api.StatusInProgress
	}
	if rep.document == nil {
		rep.text = composeReport(rep.topic, rep.language, rep.pages)
		rep.document = renderPDF(rep.topic, rep.text)
	}
	return v, api.StatusCompleted
}

// finished returns a copy of the report for key once it is complete.
func (r *registry) finished(key cachekey.Key, now time.Time) (report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[key]
	if !ok {
		return report{}, false
	}
	if _, status := r.stateLocked(rep, now); status != api.StatusCompleted {
		return report{}, false
	}
	out := *rep
	out.document = bytes.Clone(rep.document)
	return out, true
}

// replace re-renders key from edited text. Unknown keys are created, as the
// report service does.
func (r *registry) replace(key cachekey.Key, text, language string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[key]
	if !ok {
		rep = &report{topic: key.Topic(), language: language}
		r.reports[key] = rep
	}
	rep.text = text
	rep.language = language
	rep.failure = ""
	rep.document = renderPDF(rep.topic, text)
	rep.edited = true
	return rep.document
}

func (r *registry) openSession(id string, document []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &chatSession{document: document}
}

// turn records one message on session id and returns the turn number.
func (r *registry) turn(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return 0, false
	}
	s.turns++
	return s.turns, true
}

func (r *registry) failTopic(topic, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[topic] = message
}

var subtopicThemes = []string{
	"Background and Definitions",
	"Current Landscape",
	"Key Drivers",
	"Challenges and Risks",
	"Case Studies",
	"Economic Impact",
	"Policy and Regulation",
	"Emerging Trends",
	"Future Outlook",
	"Recommendations",
}

func composeReport(topic, language string, pages int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", topic)
	fmt.Fprintf(&b, "A %d-part report written in %s.\n", pages, language)
	for i := 0; i < pages && i < len(subtopicThemes); i++ {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, subtopicThemes[i])
		fmt.Fprintf(&b, "This section covers %s as it relates to %s. ", strings.ToLower(subtopicThemes[i]), topic)
		b.WriteString("It summarises the evidence gathered and the insights drawn from it.\n")
	}
	return b.String()
}
