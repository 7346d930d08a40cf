package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/modelstore/internal/app"
	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/mcp"
)

// serveCmd runs the MCP server on stdio
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over MCP on stdio",
	Long: `Start the MCP server on stdin/stdout. When sync.watch_dir or sync.snapshot_path
is configured, the file watcher and the periodic reconciler run alongside it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		a, err := openApp(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		a.Log.WithField("version", version).
			WithField("build_mode", engine.BuildMode).
			WithField("driver", engine.DriverName).
			WithField("storage", a.Init.StorageMode).
			Info("ModelStore MCP server starting")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// stdin closing ends the session and stops the background tasks
			defer cancel()
			return mcp.NewServer(a).Serve(gctx)
		})
		g.Go(func() error {
			return a.RunBackground(gctx)
		})
		err = g.Wait()
		a.Log.Info("Server stopped")
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
