package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/tui"
)

func chatCMD(dir *string) *cobra.Command {
	var flags requestFlags
	chat := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask one question about a finished report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(*dir)
			if err != nil {
				return err
			}
			req := flags.request(s.cfg)
			if err := req.Validate(); err != nil {
				return err
			}
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question must not be empty")
			}
			return tui.RunChat(cmd.Context(), s.client, req.Key(), question, s.workspaceOptions(), cmd.OutOrStdout())
		},
	}
	flags.register(chat)
	return chat
}
