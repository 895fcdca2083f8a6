package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/maintenance"
	"github.com/JNZader/memgraph/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve the graph over HTTP. While serving, a background loop runs
cleanup every cleanup.interval, records each run in the journal and saves
the graph. The graph is saved once more on shutdown.

The store is locked while serving; other memgraph commands on the same
data directory fail until the server stops.`,

	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveBind string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveBind, "bind", "", "listen address (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg.Server.Bind = orDefault(cmd, "bind", serveBind, cfg.Server.Bind)
	cfg.Server.Port = orDefault(cmd, "port", servePort, cfg.Server.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	j, err := openJournal()
	if err != nil {
		return err
	}
	var recorder maintenance.Recorder
	if j != nil {
		defer j.Close()
		recorder = j
	}

	if cfg.Cleanup.Enabled {
		runner := maintenance.NewRunner(a.graph, maintenance.Options{
			MinImportance:       cfg.Cleanup.MinImportance,
			MinRelationStrength: cfg.Cleanup.MinRelationStrength,
			Interval:            cfg.Cleanup.Interval,
			Journal:             recorder,
			Store:               a.store,
			Logger:              log,
			Metrics:             a.metrics,
		})
		go func() {
			if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("maintenance loop stopped: %v", err)
			}
		}()
	}

	srv := server.New(server.Deps{
		Graph:    a.graph,
		Embedder: a.embedder,
		Config:   cfg,
		Journal:  recorder,
		Store:    a.store,
		Logger:   log,
		Metrics:  a.metrics,
		Version:  Version,
	})

	serveErr := srv.ListenAndServe(ctx)

	// Save with a fresh context: ctx is already cancelled on shutdown.
	if err := a.save(context.Background()); err != nil {
		log.Error("%v", err)
		if serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}
