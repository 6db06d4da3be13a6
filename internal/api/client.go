// Package api is a typed client for the report service HTTP contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kingrea/reportsmith/internal/cachekey"
)

const (
	// DefaultTimeout bounds every non-streaming call.
	DefaultTimeout = 60 * time.Second

	maxDetailLen = 700
)

// Client talks to the report backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-call deadline for JSON calls. Zero disables it.
// Streaming chat bodies are never subject to it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// GenerateReport starts a job. The backend only acknowledges.
func (c *Client) GenerateReport(ctx context.Context, req GenerateRequest) error {
	return c.doJSON(ctx, "generate report", http.MethodPost, "/api/generate_report", req, nil)
}

// Progress fetches the current progress vector for key.
func (c *Client) Progress(ctx context.Context, key cachekey.Key) (ProgressResponse, error) {
	var out ProgressResponse
	err := c.doJSON(ctx, "poll progress", http.MethodGet, "/api/progress/"+key.PathSegment(), nil, &out)
	return out, err
}

// Report fetches the finished artifact for key.
func (c *Client) Report(ctx context.Context, key cachekey.Key) (ReportResponse, error) {
	var out ReportResponse
	err := c.doJSON(ctx, "fetch report", http.MethodGet, "/api/report/"+key.PathSegment(), nil, &out)
	return out, err
}

// ViewURL is the address that serves the raw document for key.
func (c *Client) ViewURL(key cachekey.Key) string {
	return c.baseURL + "/api/report/view/" + key.PathSegment()
}

// ViewReport downloads the raw document bytes for key.
func (c *Client) ViewReport(ctx context.Context, key cachekey.Key) ([]byte, error) {
	const op = "view report"
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ViewURL(key), nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Detail: detailFrom(body)}
	}
	return body, nil
}

// UpdateReport re-renders edited text and returns the new document.
func (c *Client) UpdateReport(ctx context.Context, req UpdateRequest) (ReportResponse, error) {
	var out ReportResponse
	err := c.doJSON(ctx, "save report", http.MethodPost, "/api/report/update", req, &out)
	return out, err
}

// Rewrite asks the backend to rewrite one span of text.
func (c *Client) Rewrite(ctx context.Context, req RewriteRequest) (RewriteResponse, error) {
	var out RewriteResponse
	err := c.doJSON(ctx, "rewrite", http.MethodPost, "/api/report/rewrite", req, &out)
	return out, err
}

// InitChat binds a chat session to a document.
func (c *Client) InitChat(ctx context.Context, req ChatInitRequest) error {
	return c.doJSON(ctx, "init chat", http.MethodPost, "/api/chat/init", req, nil)
}

// SendChatMessage opens a streaming reply. The caller owns the returned body
// and must close it. Only ctx bounds the stream.
func (c *Client) SendChatMessage(ctx context.Context, req ChatMessageRequest) (io.ReadCloser, error) {
	const op = "send chat message"
	req.Stream = true
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("marshal: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/message", bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Detail: detailFrom(body)}
	}
	return resp.Body, nil
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, "health", http.MethodGet, "/api/health", nil, nil)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("marshal: %w", err)}
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if !isSuccess(resp.StatusCode) {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Detail: detailFrom(raw)}
	}
	if !isJSON(resp.Header.Get("Content-Type")) {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Detail: detailFrom(raw), Err: ErrUnexpectedContentType}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func isSuccess(code int) bool {
	return code >= 200 && code <= 299
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/json")
	}
	return mediaType == "application/json"
}

func detailFrom(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && strings.TrimSpace(eb.Error) != "" {
		return strings.TrimSpace(eb.Error)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxDetailLen {
		n := maxDetailLen
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}
	return text
}
