package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/reportsmith/internal/cachekey"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence.
	ErrMissingFrontMatter = errors.New("artifact: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed.
	ErrMalformedFrontMatter = errors.New("artifact: malformed frontmatter")
)

// Metadata is the provenance block written above an exported report text.
type Metadata struct {
	Key       cachekey.Key
	Topic     string
	Language  string
	Subtopics int
	Revision  int
	Exported  time.Time
	Checksum  string
}

// MetadataFor describes a at time now. Checksum covers the document bytes.
func MetadataFor(a Artifact, now time.Time) Metadata {
	meta := Metadata{
		Key:      a.Key,
		Topic:    a.Topic,
		Language: a.Language,
		Revision: a.Revision,
		Exported: now.UTC(),
	}
	if f, err := cachekey.Parse(a.Key); err == nil {
		meta.Subtopics = f.Subtopics
	}
	if len(a.Document) > 0 {
		sum := sha256.Sum256(a.Document)
		meta.Checksum = hex.EncodeToString(sum[:])
	}
	return meta
}

// ParseFrontMatter extracts the metadata block and body from a document that starts
// with `---` YAML fences.
func ParseFrontMatter(content []byte) (Metadata, []byte, error) {
	if len(content) == 0 {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	normalized := normalizeNewlines(content)
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return Metadata{}, nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]
	parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
	if len(parts) < 2 {
		return Metadata{}, nil, ErrMalformedFrontMatter
	}
	var envelope reportEnvelope
	if err := yaml.Unmarshal(parts[0], &envelope); err != nil {
		return Metadata{}, nil, fmt.Errorf("artifact: parse frontmatter: %w", err)
	}
	meta, err := envelope.toMetadata()
	if err != nil {
		return Metadata{}, nil, err
	}
	return meta, bytes.TrimPrefix(parts[1], []byte("\n")), nil
}

// WriteFrontMatter renders metadata + body with YAML fences.
func WriteFrontMatter(meta Metadata, body []byte) ([]byte, error) {
	if meta.Key.IsZero() {
		return nil, fmt.Errorf("artifact: metadata missing cache key")
	}
	envelope := reportEnvelope{}
	envelope.fromMetadata(meta)
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(bytes.TrimRight(data, "\n"))
	buf.WriteString("\n---\n\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// WriteText exports the editable text beside the document as Markdown with
// a provenance header, and returns the written path.
func (a Artifact) WriteText(dir string, now time.Time) (string, error) {
	content, err := WriteFrontMatter(MetadataFor(a, now), []byte(a.Text))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifact: ensure dir: %w", err)
	}
	name := strings.TrimSuffix(a.FileName(), ".pdf") + ".md"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("artifact: write %s: %w", path, err)
	}
	return path, nil
}

type reportEnvelope struct {
	Report reportMetadata `yaml:"reportsmith"`
}

type reportMetadata struct {
	Key       string `yaml:"cache_key"`
	Topic     string `yaml:"topic"`
	Language  string `yaml:"language"`
	Subtopics int    `yaml:"subtopics,omitempty"`
	Revision  int    `yaml:"revision,omitempty"`
	Exported  string `yaml:"exported"`
	Checksum  string `yaml:"checksum,omitempty"`
}

func (e reportEnvelope) toMetadata() (Metadata, error) {
	if e.Report.Key == "" {
		return Metadata{}, ErrMalformedFrontMatter
	}
	exported, err := parseTime(e.Report.Exported)
	if err != nil {
		return Metadata{}, fmt.Errorf("artifact: parse exported timestamp: %w", err)
	}
	return Metadata{
		Key:       cachekey.Key(e.Report.Key),
		Topic:     e.Report.Topic,
		Language:  e.Report.Language,
		Subtopics: e.Report.Subtopics,
		Revision:  e.Report.Revision,
		Exported:  exported,
		Checksum:  e.Report.Checksum,
	}, nil
}

func (e *reportEnvelope) fromMetadata(meta Metadata) {
	e.Report.Key = meta.Key.String()
	e.Report.Topic = meta.Topic
	e.Report.Language = meta.Language
	e.Report.Subtopics = meta.Subtopics
	e.Report.Revision = meta.Revision
	e.Report.Exported = meta.Exported.UTC().Format(timeLayout)
	e.Report.Checksum = meta.Checksum
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("artifact: empty exported timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func normalizeNewlines(content []byte) []byte {
	return bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
}
