package stubbackend

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/reportsmith/internal/config"
)

const (
	// DefaultHost is the loopback interface used when no host override is provided.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the port the report service listens on.
	DefaultPort = 5000
	// DefaultStageDelay is how long each generation stage takes.
	DefaultStageDelay = 2 * time.Second
	// DefaultChunkDelay spaces streamed chat chunks.
	DefaultChunkDelay = 40 * time.Millisecond
	// DefaultBodyLimit caps request bodies; chat init carries a whole PDF.
	DefaultBodyLimit = "32M"
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the stub server.
type Settings struct {
	Host        string
	Port        int
	StageDelay  time.Duration
	ChunkDelay  time.Duration
	BodyLimit   string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// DefaultSettings returns settings with every field at its default.
func DefaultSettings() Settings {
	return Settings{
		Host:        DefaultHost,
		Port:        DefaultPort,
		StageDelay:  DefaultStageDelay,
		ChunkDelay:  DefaultChunkDelay,
		BodyLimit:   DefaultBodyLimit,
		ReadTimeout: DefaultReadTimeout,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// SettingsFromConfig builds Settings from the project config and environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := DefaultSettings()
	if cfg != nil {
		raw := cfg.Project.Stub
		if host := strings.TrimSpace(raw.Host); host != "" {
			settings.Host = host
		}
		if isValidPort(raw.Port) {
			settings.Port = raw.Port
		}
		if raw.StageDelay > 0 {
			settings.StageDelay = raw.StageDelay
		}
	}
	settings.applyEnvOverrides()
	settings.normalize()
	return settings
}

func (s *Settings) applyEnvOverrides() {
	if s == nil {
		return
	}
	if host := strings.TrimSpace(os.Getenv("REPORTSMITH_STUB_HOST")); host != "" {
		s.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("REPORTSMITH_STUB_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil && isValidPort(parsed) {
			s.Port = parsed
		}
	}
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if !isValidPort(s.Port) {
		s.Port = DefaultPort
	}
	if s.StageDelay < 0 {
		s.StageDelay = DefaultStageDelay
	}
	if s.ChunkDelay < 0 {
		s.ChunkDelay = 0
	}
	if strings.TrimSpace(s.BodyLimit) == "" {
		s.BodyLimit = DefaultBodyLimit
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}
