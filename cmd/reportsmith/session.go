package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/config"
	"github.com/kingrea/reportsmith/internal/job"
	"github.com/kingrea/reportsmith/internal/logbook"
	"github.com/kingrea/reportsmith/internal/workspace"
)

// session is the per-invocation state shared by the subcommands.
type session struct {
	cfg    *config.Config
	client *api.Client
	log    logbook.Logger
}

// initProject resolves dir (the working directory when empty) to an absolute
// path and makes sure its .reportsmith directory exists.
func initProject(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		dir = cwd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := config.InitDir(dir); err != nil {
		return "", fmt.Errorf("initializing %s: %w", config.Dir, err)
	}
	return dir, nil
}

func openSession(dir string) (*session, error) {
	dir, err := initProject(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:    cfg,
		client: api.New(cfg.BaseURL(), api.WithTimeout(cfg.RequestTimeout())),
		log:    logbook.Nop(),
	}
	if lb, err := logbook.New(cfg.LogPath()); err == nil {
		s.log = lb
	}
	return s, nil
}

func (s *session) workspaceOptions() workspace.Options {
	return workspace.Options{
		PollInterval: s.cfg.PollInterval(),
		ErrorDisplay: s.cfg.ErrorDisplay(),
		Logger:       s.log,
	}
}

// requestFlags are the report identity flags shared by generate and chat.
type requestFlags struct {
	topic     string
	language  string
	subtopics int
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.topic, "topic", "t", "", "report topic")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "report language (default from config)")
	cmd.Flags().IntVarP(&f.subtopics, "subtopics", "n", 0, "number of subtopics (default from config)")
}

func (f requestFlags) request(cfg *config.Config) job.Request {
	req := job.Request{Topic: f.topic, Language: f.language, Subtopics: f.subtopics}
	if req.Language == "" {
		req.Language = cfg.Project.Defaults.Language
	}
	if req.Subtopics == 0 {
		req.Subtopics = cfg.Project.Defaults.Subtopics
	}
	return req.Normalize()
}
