package stubbackend

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/cachekey"
	"github.com/kingrea/reportsmith/internal/logbook"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *api.Client, *httptest.Server) {
	t.Helper()
	settings := DefaultSettings()
	settings.StageDelay = time.Second
	settings.ChunkDelay = 0
	srv := NewServer(settings, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, api.New(ts.URL), ts
}

func TestGenerationAdvancesWithClock(t *testing.T) {
	clock := newFakeClock()
	_, client, _ := newTestServer(t, WithClock(clock.Now))
	ctx := context.Background()
	req := api.GenerateRequest{Topic: "Climate Change Effects", Language: "English", Pages: 3}
	key := cachekey.Encode(req.Topic, req.Language, req.Pages)

	if err := client.GenerateReport(ctx, req); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	resp, err := client.Progress(ctx, key)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if resp.Progress.TopicAnalysis || resp.IsComplete || resp.Status != api.StatusInProgress {
		t.Fatalf("initial progress = %+v", resp)
	}

	clock.Advance(2 * time.Second)
	resp, _ = client.Progress(ctx, key)
	if !resp.Progress.TopicAnalysis || !resp.Progress.DataGathering || resp.Progress.DraftingReport {
		t.Fatalf("after two stages = %+v", resp.Progress)
	}
	if _, err := client.Report(ctx, key); api.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("Report before completion err = %v, want 404", err)
	}

	clock.Advance(2 * time.Second)
	resp, _ = client.Progress(ctx, key)
	if !resp.IsComplete || !resp.Progress.Complete() || resp.Status != api.StatusCompleted {
		t.Fatalf("final progress = %+v", resp)
	}
	report, err := client.Report(ctx, key)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	doc, err := base64.StdEncoding.DecodeString(report.PDFBase64)
	if err != nil {
		t.Fatalf("decode pdf: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF-")) {
		t.Fatalf("document does not look like a PDF")
	}
	if !strings.Contains(report.ReportText, "Climate Change Effects") {
		t.Fatalf("report text missing topic: %q", report.ReportText)
	}

	view, err := client.ViewReport(ctx, key)
	if err != nil {
		t.Fatalf("ViewReport: %v", err)
	}
	if !bytes.Equal(view, doc) {
		t.Fatalf("view bytes differ from report document")
	}
}

func TestGenerateRejectsInvalidRequests(t *testing.T) {
	_, client, _ := newTestServer(t)
	cases := []struct {
		name string
		req  api.GenerateRequest
		want string
	}{
		{"missing topic", api.GenerateRequest{Topic: "  ", Language: "English", Pages: 3}, "Missing topic"},
		{"too few pages", api.GenerateRequest{Topic: "AI", Language: "English", Pages: 1}, "Page count must be between 2 and 10"},
		{"too many pages", api.GenerateRequest{Topic: "AI", Language: "English", Pages: 11}, "Page count must be between 2 and 10"},
		{"language", api.GenerateRequest{Topic: "AI", Language: "Klingon", Pages: 3}, "Unsupported language: Klingon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := client.GenerateReport(context.Background(), tc.req)
			if api.StatusCode(err) != http.StatusBadRequest {
				t.Fatalf("err = %v, want 400", err)
			}
			var te *api.TransportError
			if !errors.As(err, &te) || te.Message() != tc.want {
				t.Fatalf("message = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestGenerateTwiceReportsInProgress(t *testing.T) {
	clock := newFakeClock()
	_, _, ts := newTestServer(t, WithClock(clock.Now))
	body := `{"topic":"AI","language":"English","pages":2}`

	first := postJSON(t, ts.URL+"/api/generate_report", body)
	if !strings.Contains(first, "Report generation started") {
		t.Fatalf("first response = %s", first)
	}
	second := postJSON(t, ts.URL+"/api/generate_report", body)
	if !strings.Contains(second, "already in progress") {
		t.Fatalf("second response = %s", second)
	}
	clock.Advance(10 * time.Second)
	third := postJSON(t, ts.URL+"/api/generate_report", body)
	if !strings.Contains(third, "pdf_base64") {
		t.Fatalf("third response = %s", third)
	}
}

func TestTopicWithSlashRoutesByEncodedKey(t *testing.T) {
	srv := NewServer(Settings{StageDelay: 0})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	client := api.New(ts.URL)
	ctx := context.Background()
	req := api.GenerateRequest{Topic: "AI/ML || Ethics", Language: "French", Pages: 2}
	key := cachekey.Encode(req.Topic, req.Language, req.Pages)

	if err := client.GenerateReport(ctx, req); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	resp, err := client.Progress(ctx, key)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !resp.IsComplete {
		t.Fatalf("progress = %+v, want complete with zero stage delay", resp)
	}
	if _, err := client.Report(ctx, key); err != nil {
		t.Fatalf("Report: %v", err)
	}
}

func TestUnknownKeyIsNotStarted(t *testing.T) {
	_, client, _ := newTestServer(t)
	key := cachekey.Encode("Nothing", "English", 2)
	resp, err := client.Progress(context.Background(), key)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if resp.Status != api.StatusNotStarted || resp.IsComplete {
		t.Fatalf("progress = %+v", resp)
	}
	_, err = client.Report(context.Background(), key)
	var te *api.TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusNotFound || te.Message() != "Report not found" {
		t.Fatalf("Report err = %v", err)
	}
}

func TestFailureOptionReportsFailedStatus(t *testing.T) {
	clock := newFakeClock()
	_, client, _ := newTestServer(t, WithClock(clock.Now), WithFailure("Doomed", "model quota exceeded"))
	ctx := context.Background()
	req := api.GenerateRequest{Topic: "Doomed", Language: "English", Pages: 2}
	if err := client.GenerateReport(ctx, req); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	clock.Advance(time.Second)
	resp, err := client.Progress(ctx, cachekey.Encode(req.Topic, req.Language, req.Pages))
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if resp.Status != api.StatusFailed || resp.Progress.Error != "model quota exceeded" || resp.IsComplete {
		t.Fatalf("progress = %+v", resp)
	}
}

func TestUpdateReplacesReportText(t *testing.T) {
	_, client, _ := newTestServer(t)
	ctx := context.Background()
	key := cachekey.Encode("Blockchain in Finance", "English", 4)

	out, err := client.UpdateReport(ctx, api.UpdateRequest{CacheKey: key.String(), ReportText: "Edited body", Language: "English"})
	if err != nil {
		t.Fatalf("UpdateReport: %v", err)
	}
	if out.ReportText != "Edited body" || out.PDFBase64 == "" {
		t.Fatalf("update response = %+v", out)
	}
	report, err := client.Report(ctx, key)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if report.ReportText != "Edited body" || report.PDFBase64 != out.PDFBase64 {
		t.Fatalf("report after update = %+v", report)
	}
}

func TestUpdateRequiresKeyAndText(t *testing.T) {
	_, _, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/report/update", "application/json", strings.NewReader(`{"cache_key":"a||English||2"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "Missing cache_key or report_text") {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
}

func TestRewriteUsesRewriter(t *testing.T) {
	_, client, _ := newTestServer(t)
	out, err := client.Rewrite(context.Background(), api.RewriteRequest{Text: "  the   results were   good ", Language: "English"})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if out.RewrittenText != "The results were good." {
		t.Fatalf("rewritten = %q", out.RewrittenText)
	}

	_, client, _ = newTestServer(t, WithRewriter(func(text, language string) string {
		return strings.ToUpper(text) + " (" + language + ")"
	}))
	out, err = client.Rewrite(context.Background(), api.RewriteRequest{Text: "hola", Language: "Spanish"})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if out.RewrittenText != "HOLA (Spanish)" {
		t.Fatalf("custom rewritten = %q", out.RewrittenText)
	}

	_, err = client.Rewrite(context.Background(), api.RewriteRequest{Text: " "})
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("empty rewrite err = %v", err)
	}
}

func TestChatStreamsReply(t *testing.T) {
	_, client, _ := newTestServer(t)
	ctx := context.Background()

	_, err := client.SendChatMessage(ctx, api.ChatMessageRequest{SessionID: "nobody", Message: "hi"})
	if api.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("unknown session err = %v, want 404", err)
	}

	doc := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
	if err := client.InitChat(ctx, api.ChatInitRequest{SessionID: "AI", PDFBase64: "data:application/pdf;base64," + doc}); err != nil {
		t.Fatalf("InitChat: %v", err)
	}
	body, err := client.SendChatMessage(ctx, api.ChatMessageRequest{SessionID: "AI", Message: "What are the risks?"})
	if err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}
	defer body.Close()
	reply, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !strings.Contains(string(reply), `"What are the risks?"`) {
		t.Fatalf("reply = %q", reply)
	}
}

func TestChatInitValidates(t *testing.T) {
	_, client, _ := newTestServer(t)
	err := client.InitChat(context.Background(), api.ChatInitRequest{SessionID: "AI"})
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
	err = client.InitChat(context.Background(), api.ChatInitRequest{SessionID: "AI", PDFBase64: "***"})
	if api.StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("bad base64 err = %v, want 400", err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	rec := &logbook.Recorder{}
	_, client, ts := newTestServer(t, WithLogger(rec))
	ctx := context.Background()
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if err := client.GenerateReport(ctx, api.GenerateRequest{Topic: "AI", Language: "English", Pages: 2}); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{
		"reportsmith_stub_jobs_started_total 1",
		`reportsmith_stub_http_requests_total{code="200",route="/api/health"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics missing %q:\n%s", want, text)
		}
	}
	if !rec.Contains(logbook.LevelInfo, "GET /api/health") {
		t.Fatalf("request log missing: %+v", rec.Entries())
	}
}

func TestChunkTextKeepsRunesWhole(t *testing.T) {
	got := chunkText("héllo wörld", 4)
	want := []string{"héll", "o wö", "rld"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRenderPDFHasOnePagePerBlock(t *testing.T) {
	text := strings.Repeat("line\n", linesPerPage+1)
	doc := string(renderPDF("Title (draft)", text))
	if !strings.Contains(doc, "/Count 2") {
		t.Fatalf("expected two pages")
	}
	if !strings.Contains(doc, `/Title (Title \(draft\))`) {
		t.Fatalf("title not escaped")
	}
	if !strings.HasSuffix(doc, "%%EOF\n") {
		t.Fatalf("missing trailer")
	}
}

func TestSettingsNormalize(t *testing.T) {
	s := Settings{Host: " ", Port: 70000, StageDelay: -1}
	s.normalize()
	if s.Host != DefaultHost || s.Port != DefaultPort || s.StageDelay != DefaultStageDelay {
		t.Fatalf("normalized = %+v", s)
	}
	if s.URL() != "http://127.0.0.1:5000" {
		t.Fatalf("URL = %q", s.URL())
	}
}

func postJSON(t *testing.T, url, body string) string {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, out)
	}
	return string(out)
}
