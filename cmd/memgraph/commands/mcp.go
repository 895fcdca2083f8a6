package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/maintenance"
	"github.com/JNZader/memgraph/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the graph as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout so MCP clients can
remember, search, relate and clean up memories. Logs go to stderr. The graph
is saved when the client disconnects.

Example client configuration:
  {
    "mcpServers": {
      "memgraph": {"command": "memgraph", "args": ["mcp"]}
    }
  }`,

	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
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

	srv := mcp.New(mcp.Deps{
		Graph:    a.graph,
		Embedder: a.embedder,
		Config:   cfg,
		Journal:  recorder,
		Store:    a.store,
		Logger:   log,
		Metrics:  a.metrics,
		Version:  Version,
	})
	runErr := srv.Run(ctx)

	if err := a.save(context.Background()); err != nil {
		log.Error("%v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
