package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/desertthunder/vmx/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the webhook correlator and status API until interrupted.
//
// The server binds one environment's durable store; run one process per
// environment when migrating several at once.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}
	environment := cmd.String("env")

	stores, err := r.openStores(environment)
	if err != nil {
		return err
	}
	defer stores.Close()

	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(server.NewWebhookHandler(
		stores.videos,
		stores.reports,
		r.config.Destination.StreamHost,
		r.config.Destination.ImageHost,
		r.logger,
	))
	router.Handler(server.NewJobStatusHandler(stores.jobs, stores.reports, r.logger))
	router.Handler(server.NewCredentialHandler(r.registry, r.logger))

	host := cmd.String("host")
	if host == "" {
		host = r.config.Server.Host
	}
	port := int(cmd.Int("port"))
	if port == 0 {
		port = r.config.Server.Port
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r.logger.Info("serving webhook correlator", "addr", addr, "environment", environment)
	return server.Run(ctx, addr, router, r.logger)
}

// serveCommand handles the webhook and status HTTP server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the webhook correlator and job status API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:     "env",
				Aliases:  []string{"e"},
				Usage:    "Target environment",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Bind host (default: config value)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Bind port (default: config value)",
			},
		},
		Action: r.Serve,
	}
}
