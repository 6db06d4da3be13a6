package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/api"
	"github.com/kingrea/reportsmith/internal/job"
)

func rewriteCMD(dir *string) *cobra.Command {
	var language string
	rewrite := &cobra.Command{
		Use:   "rewrite [text]",
		Short: "Rewrite a passage (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(*dir)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				text = string(raw)
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("nothing to rewrite")
			}
			if language == "" {
				language = s.cfg.Project.Defaults.Language
			}
			if !job.SupportedLanguage(language) {
				return &job.ValidationError{Field: "language", Reason: fmt.Sprintf("%q is not supported", language)}
			}
			resp, err := s.client.Rewrite(cmd.Context(), api.RewriteRequest{Text: text, Language: language})
			if err != nil {
				return err
			}
			s.log.Info("Rewrite · %d → %d chars", len([]rune(text)), len([]rune(resp.RewrittenText)))
			fmt.Fprintln(cmd.OutOrStdout(), resp.RewrittenText)
			return nil
		},
	}
	rewrite.Flags().StringVarP(&language, "language", "l", "", "language of the passage (default from config)")
	return rewrite
}
