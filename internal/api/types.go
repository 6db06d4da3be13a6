package api

import "github.com/kingrea/reportsmith/internal/progress"

// Progress status values reported by the backend.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// GenerateRequest starts a report job.
type GenerateRequest struct {
	Topic    string `json:"topic"`
	Language string `json:"language"`
	Pages    int    `json:"pages"`
}

// ProgressResponse is returned by the progress endpoint.
type ProgressResponse struct {
	Progress   progress.Vector `json:"progress"`
	Status     string          `json:"status,omitempty"`
	IsComplete bool            `json:"is_complete"`
}

// ReportResponse carries a rendered document and its editable text.
type ReportResponse struct {
	PDFBase64  string `json:"pdf_base64"`
	ReportText string `json:"report_text"`
}

// UpdateRequest asks the backend to re-render edited text.
type UpdateRequest struct {
	CacheKey   string `json:"cache_key"`
	ReportText string `json:"report_text"`
	Language   string `json:"language"`
}

// RewriteRequest asks for a rewrite of one span.
type RewriteRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// RewriteResponse carries the replacement text.
type RewriteResponse struct {
	RewrittenText string `json:"rewritten_text"`
}

// ChatInitRequest binds a chat session to a document.
type ChatInitRequest struct {
	SessionID string `json:"session_id"`
	PDFBase64 string `json:"pdf_base64"`
}

// ChatMessageRequest sends one user message.
type ChatMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Stream    bool   `json:"stream"`
}

type errorBody struct {
	Error string `json:"error"`
}
