package artifact

import (
	"errors"

	"github.com/kingrea/reportsmith/internal/cachekey"
)

// ErrKeyMismatch is returned when an update targets an artifact that is no
// longer current.
var ErrKeyMismatch = errors.New("artifact: key does not match current artifact")

// ErrNoArtifact is returned when an update arrives with nothing stored.
var ErrNoArtifact = errors.New("artifact: no current artifact")

// Store owns the latest artifact. It is mutated only from the orchestration
// loop; readers get copies.
type Store struct {
	current  Artifact
	has      bool
	revision int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set installs a freshly generated artifact.
func (s *Store) Set(a Artifact) Artifact {
	s.revision++
	a = a.clone()
	a.Revision = s.revision
	s.current = a
	s.has = true
	return a.clone()
}

// Replace swaps document and text together for the current key.
func (s *Store) Replace(key cachekey.Key, doc []byte, text string) (Artifact, error) {
	if !s.has {
		return Artifact{}, ErrNoArtifact
	}
	if s.current.Key != key {
		return Artifact{}, ErrKeyMismatch
	}
	if len(doc) == 0 {
		return Artifact{}, ErrEmptyDocument
	}
	next := s.current
	next.Document = doc
	next.Text = text
	return s.Set(next), nil
}

// Current returns a copy of the active artifact.
func (s *Store) Current() (Artifact, bool) {
	if !s.has {
		return Artifact{}, false
	}
	return s.current.clone(), true
}

// Key returns the key of the active artifact, or "".
func (s *Store) Key() cachekey.Key {
	if !s.has {
		return ""
	}
	return s.current.Key
}

// Clear drops the active artifact.
func (s *Store) Clear() {
	s.current = Artifact{}
	s.has = false
}
