package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/tui"
)

func generateCMD(dir *string) *cobra.Command {
	var flags requestFlags
	var out string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report and write the PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(*dir)
			if err != nil {
				return err
			}
			req := flags.request(s.cfg)
			if err := req.Validate(); err != nil {
				return err
			}
			a, err := tui.RunGenerate(cmd.Context(), s.client, req, s.workspaceOptions(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if out == "" {
				out = s.cfg.DownloadsDir()
			}
			pdf, err := a.WriteFile(out)
			if err != nil {
				return err
			}
			text, err := a.WriteText(out, time.Now())
			if err != nil {
				return err
			}
			s.log.Info("Report written · %s", pdf)
			fmt.Fprintln(cmd.OutOrStdout(), pdf)
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	flags.register(generate)
	generate.Flags().StringVarP(&out, "out", "o", "", "output directory (default downloads.dir)")
	return generate
}
