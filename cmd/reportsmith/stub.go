package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/reportsmith/internal/stubbackend"
)

func stubCMD(dir *string) *cobra.Command {
	var host string
	var port int
	var stageDelay time.Duration
	stub := &cobra.Command{
		Use:   "stub",
		Short: "Run a local stand-in for the report service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(*dir)
			if err != nil {
				return err
			}
			settings := stubbackend.SettingsFromConfig(s.cfg)
			if cmd.Flags().Changed("host") {
				settings.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}
			if cmd.Flags().Changed("stage-delay") {
				settings.StageDelay = stageDelay
			}
			srv := stubbackend.NewServer(settings, stubbackend.WithLogger(s.log))
			if err := srv.Start(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stub backend listening on %s (ctrl+c to stop)\n", srv.BaseURL())

			<-cmd.Context().Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	stub.Flags().StringVar(&host, "host", stubbackend.DefaultHost, "listen host")
	stub.Flags().IntVar(&port, "port", stubbackend.DefaultPort, "listen port")
	stub.Flags().DurationVar(&stageDelay, "stage-delay", stubbackend.DefaultStageDelay, "time spent in each generation stage")
	return stub
}
