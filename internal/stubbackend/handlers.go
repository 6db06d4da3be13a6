package stubbackend

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/artifact"
	"github.com/kingrea/reportsmith/internal/cachekey"
	"github.com/kingrea/reportsmith/internal/job"
)

const chunkRunes = 6

type generateBody struct {
	Topic    string `json:"topic"`
	Language string `json:"language"`
	Pages    int    `json:"pages"`
}

type updateBody struct {
	CacheKey   string  `json:"cache_key"`
	ReportText *string `json:"report_text"`
	Language   string  `json:"language"`
}

type reportBody struct {
	PDFBase64  string `json:"pdf_base64"`
	ReportText string `json:"report_text"`
	Status     string `json:"status"`
}

func (s *Server) handleGenerate(c echo.Context) error {
	var body generateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	req := api.GenerateRequest{
		Topic:    strings.TrimSpace(body.Topic),
		Language: strings.TrimSpace(body.Language),
		Pages:    body.Pages,
	}
	if req.Topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing topic")
	}
	if req.Pages < job.MinSubtopics || req.Pages > job.MaxSubtopics {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Page count must be between %d and %d", job.MinSubtopics, job.MaxSubtopics))
	}
	if req.Language == "" {
		req.Language = job.DefaultLanguage
	}
	if !job.SupportedLanguage(req.Language) {
		return echo.NewHTTPError(http.StatusBadRequest, "Unsupported language: "+req.Language)
	}

	key := cachekey.Encode(req.Topic, req.Language, req.Pages)
	outcome, document := s.reports.start(key, req, s.now())
	switch outcome {
	case outcomeReady:
		return c.JSON(http.StatusOK, map[string]string{"pdf_base64": base64.StdEncoding.EncodeToString(document)})
	case outcomeInProgress:
		return c.JSON(http.StatusOK, map[string]string{"message": "Report generation already in progress"})
	}
	s.metrics.jobs.Inc()
	s.logger.Info("stub: started %q (%s, %d parts)", req.Topic, req.Language, req.Pages)
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Report generation started",
		"topic":   req.Topic,
	})
}

func (s *Server) handleProgress(c echo.Context) error {
	key, err := keyFromPath(c, "/api/progress/")
	if err != nil {
		return err
	}
	vector, status := s.reports.progress(key, s.now())
	return c.JSON(http.StatusOK, api.ProgressResponse{
		Progress:   vector,
		Status:     status,
		IsComplete: status == api.StatusCompleted,
	})
}

func (s *Server) handleReport(c echo.Context) error {
	key, err := keyFromPath(c, "/api/report/")
	if err != nil {
		return err
	}
	rep, ok := s.reports.finished(key, s.now())
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Report not found")
	}
	return c.JSON(http.StatusOK, reportBody{
		PDFBase64:  base64.StdEncoding.EncodeToString(rep.document),
		ReportText: rep.text,
		Status:     "success",
	})
}

func (s *Server) handleView(c echo.Context) error {
	key, err := keyFromPath(c, "/api/report/view/")
	if err != nil {
		return err
	}
	rep, ok := s.reports.finished(key, s.now())
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Report not found")
	}
	a := artifact.Artifact{Topic: rep.topic}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", a.FileName()))
	return c.Blob(http.StatusOK, "application/pdf", rep.document)
}

func (s *Server) handleUpdate(c echo.Context) error {
	var body updateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	if strings.TrimSpace(body.CacheKey) == "" || body.ReportText == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing cache_key or report_text")
	}
	key := cachekey.Key(body.CacheKey)
	language := strings.TrimSpace(body.Language)
	if language == "" {
		language = job.DefaultLanguage
	}
	document := s.reports.replace(key, *body.ReportText, language)
	return c.JSON(http.StatusOK, reportBody{
		PDFBase64:  base64.StdEncoding.EncodeToString(document),
		ReportText: *body.ReportText,
		Status:     "success",
	})
}

func (s *Server) handleRewrite(c echo.Context) error {
	var body api.RewriteRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	if strings.TrimSpace(body.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing text")
	}
	return c.JSON(http.StatusOK, api.RewriteResponse{RewrittenText: s.rewriter(body.Text, body.Language)})
}

func (s *Server) handleChatInit(c echo.Context) error {
	var body api.ChatInitRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	id := strings.TrimSpace(body.SessionID)
	if id == "" || strings.TrimSpace(body.PDFBase64) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing session_id or pdf_base64")
	}
	document, err := base64.StdEncoding.DecodeString(artifact.StripDataURI(body.PDFBase64))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid pdf_base64")
	}
	s.reports.openSession(id, document)
	return c.JSON(http.StatusOK, map[string]string{"status": "success", "session_id": id})
}

func (s *Server) handleChatMessage(c echo.Context) error {
	var body api.ChatMessageRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	id := strings.TrimSpace(body.SessionID)
	message := strings.TrimSpace(body.Message)
	if id == "" || message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing session_id or message")
	}
	turn, ok := s.reports.turn(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Chat session not found")
	}
	reply := composeReply(id, message, turn)
	if !body.Stream {
		return c.JSON(http.StatusOK, map[string]string{"response": reply})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)
	ctx := c.Request().Context()
	for _, chunk := range chunkText(reply, chunkRunes) {
		if _, err := res.Write([]byte(chunk)); err != nil {
			return nil
		}
		res.Flush()
		s.metrics.streamed.Inc()
		if s.settings.ChunkDelay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.settings.ChunkDelay):
		}
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// keyFromPath decodes the cache key from the escaped request path so that an
// encoded slash inside a topic survives routing.
func keyFromPath(c echo.Context, prefix string) (cachekey.Key, error) {
	raw := strings.TrimPrefix(c.Request().URL.EscapedPath(), prefix)
	decoded, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(decoded) == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid cache key")
	}
	return cachekey.Key(decoded), nil
}

func composeReply(sessionID, message string, turn int) string {
	return fmt.Sprintf("Regarding %q (question %d on %s): the report addresses this in its sections, "+
		"summarising the evidence and the conclusions drawn from it.", message, turn, sessionID)
}

// chunkText splits s into pieces of at most n runes.
func chunkText(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		size := n
		if size > len(runes) {
			size = len(runes)
		}
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return out
}
