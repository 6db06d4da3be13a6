// cmd/reportsmith/main.go
//
// This is the entry point for the reportsmith CLI.
// Running `reportsmith` with no subcommand opens the TUI in the current
// directory. The subcommands drive the same workspace without a screen.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCMD().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var dir string
	root := &cobra.Command{
		Use:           "reportsmith",
		Short:         "Generate, edit and discuss research reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := initProject(dir)
			if err != nil {
				return err
			}
			app, err := tui.NewApp(projectDir)
			if err != nil {
				return err
			}
			p := tea.NewProgram(app,
				tea.WithContext(cmd.Context()),
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
			)
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("running TUI: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&dir, "dir", "C", "", "project directory (default is the working directory)")

	root.AddCommand(
		generateCMD(&dir),
		chatCMD(&dir),
		rewriteCMD(&dir),
		updateCMD(&dir),
		keyCMD(),
		stubCMD(&dir),
	)
	return root
}
