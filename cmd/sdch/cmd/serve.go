package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smartctx/sdch/internal/config"
	"github.com/smartctx/sdch/internal/logging"
	"github.com/smartctx/sdch/internal/watch"
	"github.com/smartctx/sdch/pkg/version"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the document context HTTP server",
		Long: `Start the HTTP API for document upload and context assembly.

Configuration comes from the environment (and a .env file in the
working directory). When INBOX_DIR is set, files dropped into that
directory are ingested automatically.

The server drains in-flight requests for up to 30 seconds on SIGINT
or SIGTERM.`,
		Example: `  # Serve on the default address (:8000)
  sdch serve

  # Override the listen address
  sdch serve --addr :9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")

	return cmd
}

func runServe(addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:    cfg.Logging.Level,
		Format:   logging.Format(cfg.Logging.Format),
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := app.server()
	if err != nil {
		return err
	}

	logger.Info("starting_server",
		"version", version.Version,
		"addr", cfg.Server.Addr,
		"database", cfg.Storage.DatabaseURL,
		"redis", app.redis != nil,
		"inbox", cfg.Storage.InboxDir != "")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if cfg.Storage.InboxDir != "" {
		inbox, err := watch.New(cfg.Storage.InboxDir, app.ingest, watch.WithLogger(logger))
		if err != nil {
			return err
		}
		g.Go(func() error {
			return inbox.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server_stopped")
	return nil
}
