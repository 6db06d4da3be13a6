package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/artifact"
)

// updateCMD re-renders an exported report after its text was edited offline.
func updateCMD(dir *string) *cobra.Command {
	var out string
	update := &cobra.Command{
		Use:   "update <report.md>",
		Short: "Upload an edited text export and write the re-rendered PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(*dir)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			meta, body, err := artifact.ParseFrontMatter(content)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			resp, err := s.client.UpdateReport(cmd.Context(), api.UpdateRequest{
				CacheKey:   meta.Key.String(),
				ReportText: string(body),
				Language:   meta.Language,
			})
			if err != nil {
				return err
			}
			a, err := artifact.Decode(meta.Key, resp.PDFBase64, resp.ReportText)
			if err != nil {
				return err
			}
			a.Revision = meta.Revision + 1
			if out == "" {
				out = filepath.Dir(args[0])
			}
			pdf, err := a.WriteFile(out)
			if err != nil {
				return err
			}
			if _, err := a.WriteText(out, time.Now()); err != nil {
				return err
			}
			s.log.Info("Report updated · %s revision %d", meta.Key, a.Revision)
			fmt.Fprintln(cmd.OutOrStdout(), pdf)
			return nil
		},
	}
	update.Flags().StringVarP(&out, "out", "o", "", "output directory (default next to the export)")
	return update
}
