package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/artifact"
	"github.com/kingrea/reportsmith/internal/cachekey"
	"github.com/kingrea/reportsmith/internal/stubbackend"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := rootCMD()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func startStub(t *testing.T) *api.Client {
	t.Helper()
	settings := stubbackend.DefaultSettings()
	settings.StageDelay = 0
	settings.ChunkDelay = 0
	ts := httptest.NewServer(stubbackend.NewServer(settings).Handler())
	t.Cleanup(ts.Close)
	t.Setenv("REPORTSMITH_BASE_URL", ts.URL)
	t.Setenv("REPORTSMITH_POLL_INTERVAL", "10ms")
	return api.New(ts.URL)
}

func TestInitProjectPreparesStateDirOnly(t *testing.T) {
	dir := t.TempDir()
	got, err := initProject(filepath.Join(dir, "."))
	if err != nil {
		t.Fatalf("initProject: %v", err)
	}
	if !filepath.IsAbs(got) || got != filepath.Clean(dir) {
		t.Fatalf("project dir = %q, want %q", got, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, ".reportsmith", "config.yaml")); err != nil {
		t.Fatalf("config not created: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, ".reportsmith", "logs"))
	if err != nil {
		t.Fatalf("logs dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("initProject opened a log file: %v", entries)
	}
}

func TestKeyEncodeDecode(t *testing.T) {
	out, _, err := execute(t, "key", "encode", "--topic", "A||B", "--language", "French", "-n", "4")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != `A\|\|B||French||4` {
		t.Fatalf("encode output = %q", out)
	}
	if strings.Contains(lines[1], "|") {
		t.Fatalf("path segment not escaped: %q", lines[1])
	}

	out, _, err = execute(t, "key", "decode", lines[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, want := range []string{"topic:     A||B", "language:  French", "subtopics: 4"} {
		if !strings.Contains(out, want) {
			t.Fatalf("decode output %q missing %q", out, want)
		}
	}

	if _, _, err := execute(t, "key", "decode", "only-one-field"); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}

func TestGenerateChatAndUpdate(t *testing.T) {
	client := startStub(t)
	dir := t.TempDir()

	out, progress, err := execute(t, "generate", "-C", dir, "--topic", "Solar Power", "-n", "2")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(progress, "✓") {
		t.Fatalf("progress output = %q", progress)
	}
	pdf := filepath.Join(dir, "downloads", "Solar Power.pdf")
	mdPath := filepath.Join(dir, "downloads", "Solar Power.md")
	if !strings.Contains(out, pdf) {
		t.Fatalf("generate output = %q", out)
	}
	if _, err := os.Stat(pdf); err != nil {
		t.Fatalf("pdf missing: %v", err)
	}

	reply, _, err := execute(t, "chat", "-C", dir, "--topic", "Solar Power", "-n", "2", "What", "about", "storage?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(reply, "What about storage?") {
		t.Fatalf("chat reply = %q", reply)
	}

	content, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	meta, _, err := artifact.ParseFrontMatter(content)
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	edited, err := artifact.WriteFrontMatter(meta, []byte("Rewritten offline.\n"))
	if err != nil {
		t.Fatalf("write front matter: %v", err)
	}
	if err := os.WriteFile(mdPath, edited, 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}

	if _, _, err := execute(t, "update", "-C", dir, mdPath); err != nil {
		t.Fatalf("update: %v", err)
	}
	resp, err := client.Report(context.Background(), cachekey.Encode("Solar Power", "English", 2))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if resp.ReportText != "Rewritten offline.\n" {
		t.Fatalf("report text = %q", resp.ReportText)
	}
	updated, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("reread export: %v", err)
	}
	next, _, err := artifact.ParseFrontMatter(updated)
	if err != nil || next.Revision != meta.Revision+1 {
		t.Fatalf("revision = %d after %d (%v)", next.Revision, meta.Revision, err)
	}
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	startStub(t)
	_, _, err := execute(t, "generate", "-C", t.TempDir(), "--topic", "AI", "-n", "11")
	if err == nil || !strings.Contains(err.Error(), "subtopics") {
		t.Fatalf("err = %v", err)
	}
}

func TestRewriteCommand(t *testing.T) {
	startStub(t)
	out, _, err := execute(t, "rewrite", "-C", t.TempDir(), "hello", "  world")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if strings.TrimSpace(out) != "Hello world." {
		t.Fatalf("rewrite output = %q", out)
	}
	if _, _, err := execute(t, "rewrite", "-C", t.TempDir()); err == nil {
		t.Fatalf("expected error for empty stdin")
	}
}
