package job

import (
	"fmt"
	"strings"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/cachekey"
)

const (
	MinSubtopics = 2
	MaxSubtopics = 10
	// MaxTopicLength matches the input limit of the topic field.
	MaxTopicLength = 60
	// DefaultLanguage is used when a request names none.
	DefaultLanguage = "English"
)

// Languages lists the languages the backend renders, in display order.
var Languages = []string{
	"English",
	"Hindi",
	"Tamil",
	"Telugu",
	"Bengali",
	"Marathi",
	"Spanish",
	"French",
	"German",
	"Italian",
}

// SupportedLanguage reports whether lang is in Languages.
func SupportedLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// ExampleTopics are offered as suggestions in the submit form.
var ExampleTopics = []string{
	"Artificial Intelligence in Healthcare",
	"Impact of Renewable Energy",
	"Climate Change Effects",
	"Blockchain in Finance",
}

// Request is one generation job as the user entered it.
type Request struct {
	Topic     string
	Language  string
	Subtopics int
}

// ValidationError rejects a request before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("job: invalid %s: %s", e.Field, e.Reason)
}

// Normalize trims the topic and fills the default language.
func (r Request) Normalize() Request {
	r.Topic = strings.TrimSpace(r.Topic)
	r.Language = strings.TrimSpace(r.Language)
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	return r
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	switch {
	case r.Topic == "":
		return &ValidationError{Field: "topic", Reason: "must not be empty"}
	case len([]rune(r.Topic)) > MaxTopicLength:
		return &ValidationError{Field: "topic", Reason: fmt.Sprintf("must be at most %d characters", MaxTopicLength)}
	case r.Subtopics < MinSubtopics || r.Subtopics > MaxSubtopics:
		return &ValidationError{Field: "subtopics", Reason: fmt.Sprintf("must be between %d and %d", MinSubtopics, MaxSubtopics)}
	case !SupportedLanguage(r.Language):
		return &ValidationError{Field: "language", Reason: fmt.Sprintf("%q is not supported", r.Language)}
	}
	return nil
}

// Key is the cache key the backend files this request under.
func (r Request) Key() cachekey.Key {
	return cachekey.Encode(r.Topic, r.Language, r.Subtopics)
}

func (r Request) payload() api.GenerateRequest {
	return api.GenerateRequest{Topic: r.Topic, Language: r.Language, Pages: r.Subtopics}
}
