// Package artifact holds the generated document for the active job.
package artifact

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/reportsmith/internal/cachekey"
)

// DataURIPrefix marks an inline PDF. It is stripped before transport and
// added back for local rendering.
const DataURIPrefix = "data:application/pdf;base64,"

// ErrEmptyDocument is returned when a payload carries no document bytes.
var ErrEmptyDocument = errors.New("artifact: document is empty")

// Artifact is a rendered document plus its editable text.
type Artifact struct {
	Key      cachekey.Key
	Topic    string
	Language string
	Document []byte
	Text     string
	// Revision increases each time the store replaces the artifact.
	Revision int
}

// Decode builds an artifact from a backend payload.
func Decode(key cachekey.Key, pdfBase64, text string) (Artifact, error) {
	raw := StripDataURI(strings.TrimSpace(pdfBase64))
	if raw == "" {
		return Artifact{}, ErrEmptyDocument
	}
	doc, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: decode document: %w", err)
	}
	if len(doc) == 0 {
		return Artifact{}, ErrEmptyDocument
	}
	a := Artifact{Key: key, Document: doc, Text: text}
	if fields, err := cachekey.Parse(key); err == nil {
		a.Topic = fields.Topic
		a.Language = fields.Language
	}
	return a, nil
}

// StripDataURI removes the inline-PDF prefix if present.
func StripDataURI(s string) string {
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ","); idx >= 0 {
			return s[idx+1:]
		}
	}
	return s
}

// DataURI renders doc as an inline PDF address.
func DataURI(doc []byte) string {
	return DataURIPrefix + base64.StdEncoding.EncodeToString(doc)
}

// Base64 returns the document in transport form, without the data-URI prefix.
func (a Artifact) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Document)
}

// IsZero reports whether the artifact is empty.
func (a Artifact) IsZero() bool {
	return a.Key == "" && len(a.Document) == 0
}

// FileName is the download name: the topic, or "report" when there is none.
func (a Artifact) FileName() string {
	name := strings.TrimSpace(a.Topic)
	if name == "" {
		name = "report"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	return name + ".pdf"
}

// WriteFile stores the document under dir and returns the written path.
func (a Artifact) WriteFile(dir string) (string, error) {
	if len(a.Document) == 0 {
		return "", ErrEmptyDocument
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: ensure dir: %w", err)
	}
	path := filepath.Join(dir, a.FileName())
	if err := os.WriteFile(path, a.Document, 0o644); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", path, err)
	}
	return path, nil
}

func (a Artifact) clone() Artifact {
	a.Document = bytes.Clone(a.Document)
	return a
}
