package artifact

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kingrea/reportsmith/internal/cachekey"
)

func TestDecodeStripsDataURI(t *testing.T) {
	key := cachekey.Encode("AI", "English", 3)
	doc := []byte("%PDF-1.4 test")
	a, err := Decode(key, DataURI(doc), "body")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(a.Document) != string(doc) || a.Text != "body" {
		t.Fatalf("artifact = %+v", a)
	}
	if a.Topic != "AI" || a.Language != "English" {
		t.Fatalf("fields not derived from key: %+v", a)
	}
	if a.Base64() != base64.StdEncoding.EncodeToString(doc) {
		t.Fatalf("Base64() kept a prefix: %q", a.Base64())
	}
}

func TestDecodeRejectsMissingDocument(t *testing.T) {
	if _, err := Decode("k", "", "text"); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Decode("k", "!!!not-base64", "text"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestStoreReplaceIsKeyChecked(t *testing.T) {
	s := NewStore()
	key := cachekey.Encode("AI", "English", 3)
	first := s.Set(Artifact{Key: key, Document: []byte("v1"), Text: "one"})

	if _, err := s.Replace(cachekey.Encode("Other", "English", 3), []byte("x"), "x"); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("Replace with stale key: %v", err)
	}
	updated, err := s.Replace(key, []byte("v2"), "two")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if updated.Revision <= first.Revision {
		t.Fatalf("revision did not advance: %d -> %d", first.Revision, updated.Revision)
	}
	cur, _ := s.Current()
	if string(cur.Document) != "v2" || cur.Text != "two" {
		t.Fatalf("current = %+v", cur)
	}
}

func TestStoreSnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.Set(Artifact{Key: "k", Document: []byte("abc")})
	snap, _ := s.Current()
	snap.Document[0] = 'z'
	again, _ := s.Current()
	if string(again.Document) != "abc" {
		t.Fatalf("store mutated through snapshot: %q", again.Document)
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.Set(Artifact{Key: "k", Document: []byte("abc")})
	s.Clear()
	if _, ok := s.Current(); ok || s.Key() != "" {
		t.Fatalf("store not cleared")
	}
	if _, err := s.Replace("k", []byte("x"), ""); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("Replace on empty store: %v", err)
	}
}

func TestWriteFileUsesTopicName(t *testing.T) {
	dir := t.TempDir()
	a := Artifact{Topic: "AI/ML", Document: []byte("%PDF")}
	path, err := a.WriteFile(dir)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if filepath.Base(path) != "AI_ML.pdf" {
		t.Fatalf("path = %s", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "%PDF" {
		t.Fatalf("contents = %q", data)
	}
	if (Artifact{}).FileName() != "report.pdf" {
		t.Fatalf("fallback name = %s", (Artifact{}).FileName())
	}
}
