package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kbbot/internal/bootstrap"
	"kbbot/internal/server"
	"kbbot/internal/serverless"
)

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Slack events endpoint over HTTP",
		Long:  "Starts an HTTP server that receives Slack event callbacks. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			b, err := bootstrap.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			metricsPath := ""
			if cfg.Metrics.Enabled {
				metricsPath = cfg.Metrics.Endpoint
			}
			srv := server.New(server.Config{
				Host:        cfg.Server.Host,
				Port:        cfg.Server.Port,
				EventsPath:  cfg.Server.Path,
				Events:      b.App,
				MetricsPath: metricsPath,
				Health:      b.Backend.Ping,
				Logger:      logger,
			})
			return srv.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function behind an API Gateway HTTP API",
		Long: `Serves Lambda invocations. Intended as the bootstrap of a provided.al2023
function; configuration comes from the environment and ssm: references.
The knowledge base defaults to /tmp/kbbot/knowledge.db, which does not
survive a cold start; set KBBOT_DB_PATH to use another location.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, lg, err := bootstrap.FromEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			lg.Info("lambda handler starting")
			serverless.StartLambda(b.App)
			return nil
		},
	}
}
