// internal/config/config.go
//
// This package handles configuration and the .reportsmith directory structure.
// Every directory reportsmith runs in gets a .reportsmith/ folder.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in each working directory
	Dir = ".reportsmith"

	defaultBaseURL        = "http://127.0.0.1:5000"
	defaultRequestTimeout = 60 * time.Second
	defaultPollInterval   = time.Second
	defaultErrorDisplay   = 3 * time.Second
	defaultLanguage       = "English"
	defaultSubtopics      = 3
	defaultDownloadsDir   = "downloads"
	defaultStubHost       = "127.0.0.1"
	defaultStubPort       = 5000
	defaultStageDelay     = 2 * time.Second

	minSubtopics = 2
	maxSubtopics = 10
)

const defaultProjectConfigYAML = `# reportsmith configuration
version: 1

# Report service the client talks to. Run "reportsmith stub" for a local one.
backend:
  base_url: http://127.0.0.1:5000
  # Applies to every JSON call. Streaming chat replies are not bounded by it.
  request_timeout: 60s

polling:
  interval: 1s

chat:
  # How long transient chat errors stay on screen.
  error_display: 3s

# Pre-filled values for the submit form.
defaults:
  language: English
  subtopics: 3

downloads:
  dir: downloads

# Local stub backend.
stub:
  host: 127.0.0.1
  port: 5000
  stage_delay: 2s
`

// BackendConfig locates the report service.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PollingConfig controls progress polling.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ChatConfig controls the chat pane.
type ChatConfig struct {
	ErrorDisplay time.Duration `yaml:"error_display"`
}

// DefaultsConfig pre-fills the submit form.
type DefaultsConfig struct {
	Language  string `yaml:"language"`
	Subtopics int    `yaml:"subtopics"`
}

// DownloadsConfig says where downloaded PDFs go.
type DownloadsConfig struct {
	Dir string `yaml:"dir"`
}

// StubConfig configures the local stub backend.
type StubConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	StageDelay time.Duration `yaml:"stage_delay"`
}

// ProjectConfig models .reportsmith/config.yaml.
type ProjectConfig struct {
	Version   int             `yaml:"version"`
	Backend   BackendConfig   `yaml:"backend"`
	Polling   PollingConfig   `yaml:"polling"`
	Chat      ChatConfig      `yaml:"chat"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
	Downloads DownloadsConfig `yaml:"downloads"`
	Stub      StubConfig      `yaml:"stub"`
}

// Config holds the runtime configuration for reportsmith.
type Config struct {
	// ProjectDir is the directory where the user ran `reportsmith` from
	ProjectDir string

	// StateDir is ProjectDir/.reportsmith
	StateDir string

	Project ProjectConfig
}

// InitDir creates the .reportsmith directory structure in projectDir and
// writes a commented default config on first run.
//
// Structure created:
// .reportsmith/
// ├── config.yaml
// └── logs/         <- journey.log
func InitDir(projectDir string) error {
	stateDir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(filepath.Join(stateDir, "logs"), 0755); err != nil {
		return err
	}
	return ensureProjectConfig(filepath.Join(stateDir, "config.yaml"))
}

// NewConfig loads the project config, applying defaults and environment
// overrides.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, Dir),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnvOverrides()
	cfg.Project.normalize()
	if err := cfg.Project.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// LogPath returns the journey log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

// DownloadsDir resolves downloads.dir against the project directory.
func (c *Config) DownloadsDir() string {
	return resolvePath(c.ProjectDir, c.Project.Downloads.Dir)
}

// BaseURL is the report service root.
func (c *Config) BaseURL() string { return c.Project.Backend.BaseURL }

// RequestTimeout bounds JSON calls.
func (c *Config) RequestTimeout() time.Duration { return c.Project.Backend.RequestTimeout }

// PollInterval is the spacing between progress polls.
func (c *Config) PollInterval() time.Duration { return c.Project.Polling.Interval }

// ErrorDisplay is how long transient chat errors stay visible.
func (c *Config) ErrorDisplay() time.Duration { return c.Project.Chat.ErrorDisplay }

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	var pc ProjectConfig
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Backend.BaseURL) == "" {
		pc.Backend.BaseURL = defaultBaseURL
	}
	if pc.Backend.RequestTimeout == 0 {
		pc.Backend.RequestTimeout = defaultRequestTimeout
	}
	if pc.Polling.Interval == 0 {
		pc.Polling.Interval = defaultPollInterval
	}
	if pc.Chat.ErrorDisplay == 0 {
		pc.Chat.ErrorDisplay = defaultErrorDisplay
	}
	if strings.TrimSpace(pc.Defaults.Language) == "" {
		pc.Defaults.Language = defaultLanguage
	}
	if pc.Defaults.Subtopics == 0 {
		pc.Defaults.Subtopics = defaultSubtopics
	}
	if strings.TrimSpace(pc.Downloads.Dir) == "" {
		pc.Downloads.Dir = defaultDownloadsDir
	}
	if strings.TrimSpace(pc.Stub.Host) == "" {
		pc.Stub.Host = defaultStubHost
	}
	if pc.Stub.Port == 0 {
		pc.Stub.Port = defaultStubPort
	}
	if pc.Stub.StageDelay == 0 {
		pc.Stub.StageDelay = defaultStageDelay
	}
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("REPORTSMITH_BASE_URL")); value != "" {
		pc.Backend.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("REPORTSMITH_POLL_INTERVAL")); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			pc.Polling.Interval = d
		}
	}
	if value := strings.TrimSpace(os.Getenv("REPORTSMITH_STUB_HOST")); value != "" {
		pc.Stub.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("REPORTSMITH_STUB_PORT")); value != "" {
		if port, err := strconv.Atoi(value); err == nil && isValidPort(port) {
			pc.Stub.Port = port
		}
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Backend.BaseURL = strings.TrimSuffix(strings.TrimSpace(pc.Backend.BaseURL), "/")
	pc.Defaults.Language = strings.TrimSpace(pc.Defaults.Language)
	pc.Downloads.Dir = strings.TrimSpace(pc.Downloads.Dir)
	pc.Stub.Host = strings.TrimSpace(pc.Stub.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	u, err := url.Parse(pc.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", pc.Backend.BaseURL)
	}
	if pc.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend.request_timeout must not be negative")
	}
	if pc.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive")
	}
	if pc.Chat.ErrorDisplay <= 0 {
		return fmt.Errorf("chat.error_display must be positive")
	}
	if pc.Defaults.Subtopics < minSubtopics || pc.Defaults.Subtopics > maxSubtopics {
		return fmt.Errorf("defaults.subtopics must be between %d and %d", minSubtopics, maxSubtopics)
	}
	if !isValidPort(pc.Stub.Port) {
		return fmt.Errorf("stub.port must be between 1 and 65535")
	}
	if pc.Stub.StageDelay < 0 {
		return fmt.Errorf("stub.stage_delay must not be negative")
	}
	return nil
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

// Save writes the current project config back to disk.
func (c *Config) Save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}

// SetDefaults remembers the last submitted language and subtopic count.
func (c *Config) SetDefaults(language string, subtopics int) error {
	c.Project.Defaults.Language = strings.TrimSpace(language)
	c.Project.Defaults.Subtopics = subtopics
	return c.Save()
}
