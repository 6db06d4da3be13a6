// Package cachekey derives the identity string that ties a report job to its
// progress, artifact and update endpoints.
//
// A key is topic, language and subtopic count joined by "||". Backslash and
// pipe characters inside a field are escaped with a backslash, so a topic that
// contains the separator can never collide with a different
// (topic, language) pair. Fields without those characters encode exactly as
// the backend builds its own keys.
package cachekey

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Separator joins the three key fields.
const Separator = "||"

const escapeChar = '\\'

// Key is the encoded job identity.
type Key string

// Fields are the decoded parts of a Key.
type Fields struct {
	Topic     string
	Language  string
	Subtopics int
}

// Encode builds the key for a job. Range checks on subtopics belong to the
// caller; Encode accepts any value.
func Encode(topic, language string, subtopics int) Key {
	var b strings.Builder
	b.Grow(len(topic) + len(language) + 2*len(Separator) + 2)
	writeEscaped(&b, topic)
	b.WriteString(Separator)
	writeEscaped(&b, language)
	b.WriteString(Separator)
	b.WriteString(strconv.Itoa(subtopics))
	return Key(b.String())
}

// Parse splits a key back into its fields.
func Parse(k Key) (Fields, error) {
	parts, err := split(string(k))
	if err != nil {
		return Fields{}, err
	}
	if len(parts) != 3 {
		return Fields{}, fmt.Errorf("cachekey: expected 3 fields, got %d", len(parts))
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return Fields{}, fmt.Errorf("cachekey: subtopic count %q: %w", parts[2], err)
	}
	return Fields{Topic: parts[0], Language: parts[1], Subtopics: n}, nil
}

// String returns the raw key.
func (k Key) String() string { return string(k) }

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool { return k == "" }

// PathSegment percent-encodes the key for use as one URL path segment.
func (k Key) PathSegment() string {
	return url.PathEscape(string(k))
}

// Topic returns the decoded topic, or "" when the key does not parse.
func (k Key) Topic() string {
	f, err := Parse(k)
	if err != nil {
		return ""
	}
	return f.Topic
}

func writeEscaped(b *strings.Builder, field string) {
	for _, r := range field {
		if r == escapeChar || r == '|' {
			b.WriteRune(escapeChar)
		}
		b.WriteRune(r)
	}
}

func split(raw string) ([]string, error) {
	var (
		parts   []string
		current strings.Builder
	)
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == escapeChar:
			if i+1 >= len(runes) {
				return nil, fmt.Errorf("cachekey: dangling escape at offset %d", i)
			}
			i++
			current.WriteRune(runes[i])
		case r == '|':
			if i+1 >= len(runes) || runes[i+1] != '|' {
				return nil, fmt.Errorf("cachekey: unescaped '|' at offset %d", i)
			}
			i++
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	parts = append(parts, current.String())
	return parts, nil
}
