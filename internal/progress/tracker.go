package progress

// Tracker keeps the last known good vector for one job so the display
// survives a failed poll. An error is kept next to the vector, never in place
// of it.
type Tracker struct {
	last Vector
	seen bool
	err  error
}

// Reset clears state for a new job.
func (t *Tracker) Reset() {
	*t = Tracker{}
}

// Observe merges a freshly polled vector. The returned vector is monotonic
// with respect to everything observed since Reset; regressed reports that the
// backend tried to clear a completed stage.
func (t *Tracker) Observe(v Vector) (Vector, bool) {
	if !t.seen {
		t.last = v
		t.seen = true
		t.err = nil
		return v, false
	}
	merged, regressed := t.last.Merge(v)
	t.last = merged
	t.err = nil
	return merged, regressed
}

// Fail records a polling error without touching the last vector.
func (t *Tracker) Fail(err error) {
	t.err = err
}

// Last returns the last known vector.
func (t *Tracker) Last() Vector {
	return t.last
}

// Seen reports whether any vector has been observed since Reset.
func (t *Tracker) Seen() bool {
	return t.seen
}

// Err returns the most recent polling error, if any.
func (t *Tracker) Err() error {
	return t.err
}
