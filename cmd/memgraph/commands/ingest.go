package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/ingest"
	"github.com/JNZader/memgraph/internal/worker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.yaml>...",
	Short: "Bulk-load memories from YAML",
	Long: `Load nodes and relations from one or more YAML documents. Nodes are
embedded in parallel; relations are applied once every node of the document
is in. Nodes whose id already exists are skipped.

Document format:
  nodes:
    - id: backoff
      content: "Retries use exponential backoff capped at 30s"
      content_type: FACT
      importance: 0.8
      tags: [http]
  relations:
    - from: backoff
      to: http-client
      type: PART_OF
      strength: 0.6`,

	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestWorkers int

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntVarP(&ingestWorkers, "workers", "w", 0, "parallel workers (default from config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	docs := make([]*ingest.Document, len(args))
	for i, path := range args {
		doc, err := ingest.Load(path)
		if err != nil {
			return err
		}
		docs[i] = doc
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	applier := &ingest.Applier{
		Graph:    a.graph,
		Embedder: a.embedder,
		Workers: worker.Config{
			Workers:   orDefault(cmd, "workers", ingestWorkers, cfg.Ingest.Workers),
			QueueSize: cfg.Ingest.QueueSize,
		},
		Logger:  log,
		Metrics: a.metrics,
	}

	var total ingest.Result
	for i, doc := range docs {
		res, err := applier.Apply(cmd.Context(), doc)
		if err != nil {
			// Keep what made it in.
			if saveErr := a.save(cmd.Context()); saveErr != nil {
				log.Error("%v", saveErr)
			}
			return fmt.Errorf("ingesting %s: %w", args[i], err)
		}
		total.NodesAdded += res.NodesAdded
		total.NodesSkipped += res.NodesSkipped
		total.RelationsApplied += res.RelationsApplied
		total.RelationsRejected += res.RelationsRejected
	}

	if err := a.save(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added %d nodes (%d skipped), applied %d relations (%d rejected).\n",
		total.NodesAdded, total.NodesSkipped, total.RelationsApplied, total.RelationsRejected)
	return nil
}
