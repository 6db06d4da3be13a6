// Package progress interprets the four-stage progress vector reported while a
// report is generated.
package progress

import "strings"

// Stage identifies one generation step.
type Stage int

const (
	TopicAnalysis Stage = iota
	DataGathering
	DraftingReport
	Finalizing
)

// NoStage is the current index once every stage is done.
const NoStage = -1

// StageCount is the fixed number of stages.
const StageCount = 4

// StageInfo describes a stage for display.
type StageInfo struct {
	Stage       Stage
	Key         string
	Label       string
	Description string
}

// Stages lists every stage in order.
var Stages = [StageCount]StageInfo{
	{TopicAnalysis, "topicAnalysis", "Topic Analysis", "Analyzing the topic and planning structure"},
	{DataGathering, "dataGathering", "Data Gathering", "Researching and collecting information"},
	{DraftingReport, "draftingReport", "Drafting Report", "Writing summaries and insights"},
	{Finalizing, "finalizing", "Finalizing", "Creating PDF"},
}

// String returns the wire key of the stage.
func (s Stage) String() string {
	if s < 0 || int(s) >= StageCount {
		return "unknown"
	}
	return Stages[s].Key
}

// Vector is the progress payload. Error is only set by the backend when
// generation failed.
type Vector struct {
	TopicAnalysis  bool   `json:"topicAnalysis"`
	DataGathering  bool   `json:"dataGathering"`
	DraftingReport bool   `json:"draftingReport"`
	Finalizing     bool   `json:"finalizing"`
	Error          string `json:"error,omitempty"`
}

// FromBools builds a vector from stage flags in order.
func FromBools(flags [StageCount]bool) Vector {
	return Vector{
		TopicAnalysis:  flags[0],
		DataGathering:  flags[1],
		DraftingReport: flags[2],
		Finalizing:     flags[3],
	}
}

// Bools returns the stage flags in order.
func (v Vector) Bools() [StageCount]bool {
	return [StageCount]bool{v.TopicAnalysis, v.DataGathering, v.DraftingReport, v.Finalizing}
}

// Done reports whether a stage is complete.
func (v Vector) Done(s Stage) bool {
	if s < 0 || int(s) >= StageCount {
		return false
	}
	return v.Bools()[s]
}

// Complete reports whether all four stages are done.
func (v Vector) Complete() bool {
	for _, done := range v.Bools() {
		if !done {
			return false
		}
	}
	return true
}

// Failed reports whether the backend attached a failure message.
func (v Vector) Failed() bool {
	return strings.TrimSpace(v.Error) != ""
}

// Merge ORs next into v so that a stage never reverts. It reports whether
// next tried to clear a stage that v already had.
func (v Vector) Merge(next Vector) (Vector, bool) {
	prev := v.Bools()
	incoming := next.Bools()
	var merged [StageCount]bool
	regressed := false
	for i := range merged {
		merged[i] = prev[i] || incoming[i]
		if prev[i] && !incoming[i] {
			regressed = true
		}
	}
	out := FromBools(merged)
	out.Error = next.Error
	return out, regressed
}

// StageState is the display classification of one stage.
type StageState int

const (
	StateUpcoming StageState = iota
	StateCurrent
	StateCompleted
)

func (s StageState) String() string {
	switch s {
	case StateCurrent:
		return "current"
	case StateCompleted:
		return "completed"
	default:
		return "upcoming"
	}
}

// View is the derived UI state of a vector.
type View struct {
	Current   int
	Completed []Stage
	Upcoming  []Stage
	States    [StageCount]StageState
}

// Derive classifies every stage. It is recomputed from the raw vector on each
// update and holds no state of its own.
func Derive(v Vector, generating bool) View {
	flags := v.Bools()
	view := View{Current: NoStage}
	for i, done := range flags {
		if !done {
			view.Current = i
			break
		}
	}
	allDone := view.Current == NoStage
	for i, done := range flags {
		stage := Stage(i)
		switch {
		case done:
			view.States[i] = StateCompleted
			view.Completed = append(view.Completed, stage)
		case generating && i == view.Current && !allDone:
			view.States[i] = StateCurrent
		default:
			view.States[i] = StateUpcoming
			view.Upcoming = append(view.Upcoming, stage)
		}
	}
	return view
}

// CurrentStage returns the current stage and whether there is one.
func (v View) CurrentStage() (Stage, bool) {
	for i, st := range v.States {
		if st == StateCurrent {
			return Stage(i), true
		}
	}
	return 0, false
}
