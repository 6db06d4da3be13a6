// Package stubbackend is an in-memory report service that speaks the same
// HTTP contract as the real backend. It drives the CLI and end-to-end tests.
package stubbackend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kingrea/reportsmith/internal/logbook"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// Rewriter turns a selected span into its replacement.
type Rewriter func(text, language string) string

// Server wraps the HTTP listener and handlers backing the stub.
type Server struct {
	settings Settings
	logger   logbook.Logger
	clock    func() time.Time
	rewriter Rewriter
	echo     *echo.Echo
	reports  *registry
	metrics  *metrics

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger routes request and lifecycle logs to l.
func WithLogger(l logbook.Logger) Option {
	return func(s *Server) {
		s.logger = logbook.OrNop(l)
	}
}

// WithClock allows tests to drive stage progression.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRewriter overrides the default span rewriter.
func WithRewriter(r Rewriter) Option {
	return func(s *Server) {
		if r != nil {
			s.rewriter = r
		}
	}
}

// WithFailure makes every job for topic fail after its first stage.
func WithFailure(topic, message string) Option {
	return func(s *Server) {
		s.reports.failTopic(strings.TrimSpace(topic), message)
	}
}

// NewServer prepares a stub server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		logger:   logbook.Nop(),
		clock:    time.Now,
		rewriter: polish,
		reports:  newRegistry(settings.StageDelay),
		metrics:  newMetrics(),
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetOutput(io.Discard)
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.BodyLimit(s.settings.BodyLimit))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("stub: %s %s -> %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(s.metrics.middleware)

	api := e.Group("/api")
	api.POST("/generate_report", s.handleGenerate)
	api.GET("/progress/*", s.handleProgress)
	api.GET("/report/view/*", s.handleView)
	api.GET("/report/*", s.handleReport)
	api.POST("/report/update", s.handleUpdate)
	api.POST("/report/rewrite", s.handleRewrite)
	api.POST("/chat/init", s.handleChatInit)
	api.POST("/chat/message", s.handleChatMessage)
	api.GET("/health", s.handleHealth)
	e.GET("/metrics", s.metrics.handler())
	return e
}

// Handler exposes the router, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("stubbackend: server is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("stubbackend: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stubbackend: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:     s.echo,
		ReadTimeout: s.settings.ReadTimeout,
		IdleTimeout: s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("stubbackend: serve error: %v", err)
		}
	}()
	s.logger.Info("stubbackend: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) now() time.Time {
	return s.clock()
}

func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	s.logger.Warn("stub: %d %s %s: %v", code, req.Method, req.URL.Path, err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]string{"error": msg})
	}
}

// polish is the default rewriter: it collapses whitespace, capitalises the
// first letter and closes the sentence.
func polish(text, _ string) string {
	out := []rune(strings.Join(strings.Fields(text), " "))
	if len(out) == 0 {
		return ""
	}
	out[0] = unicode.ToUpper(out[0])
	switch out[len(out)-1] {
	case '.', '!', '?':
	default:
		out = append(out, '.')
	}
	return string(out)
}
