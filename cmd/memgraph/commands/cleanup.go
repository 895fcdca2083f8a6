package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/maintenance"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict decayed memories",
	Long: `Evict every memory whose decayed importance is below --min-importance,
together with its relations, then every relation whose decayed strength is
below --min-strength. The run is recorded in the journal.

Examples:
  memgraph cleanup
  memgraph cleanup --min-importance 0.2 --min-strength 0.15`,

	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded cleanup runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	cleanupMinImportance float64
	cleanupMinStrength   float64

	historyLimit int
)

func init() {
	rootCmd.AddCommand(cleanupCmd, historyCmd)

	cleanupCmd.Flags().Float64Var(&cleanupMinImportance, "min-importance", 0, "node eviction threshold (default from config)")
	cleanupCmd.Flags().Float64Var(&cleanupMinStrength, "min-strength", 0, "relation eviction threshold (default from config)")
	cleanupCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	historyCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	j, err := openJournal()
	if err != nil {
		return err
	}
	opts := maintenance.Options{
		MinImportance:       orDefault(cmd, "min-importance", cleanupMinImportance, cfg.Cleanup.MinImportance),
		MinRelationStrength: orDefault(cmd, "min-strength", cleanupMinStrength, cfg.Cleanup.MinRelationStrength),
		Store:               a.store,
		Logger:              log,
		Metrics:             a.metrics,
	}
	if j != nil {
		defer j.Close()
		opts.Journal = j
	}

	run, err := maintenance.NewRunner(a.graph, opts).RunOnce(cmd.Context())
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), run)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"Evicted %d nodes, %d relations with them and %d weak relations (%d total).\n%d nodes and %d relations remain.\n",
		run.NodesEvicted, run.RelationsCascaded, run.RelationsEvicted, run.Total,
		run.NodeCountAfter, run.RelationCountAfter)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	if j == nil {
		return fmt.Errorf("the cleanup journal is disabled (journal.enabled=false)")
	}
	defer j.Close()

	runs, err := j.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	totals, err := j.Totals(cmd.Context())
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), map[string]any{"runs": runs, "totals": totals})
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No cleanup runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  thresholds %.2f/%.2f  evicted %d nodes, %d+%d relations  left %d/%d\n",
			r.RanAt.Local().Format("2006-01-02 15:04:05"), r.MinImportance, r.MinRelationStrength,
			r.NodesEvicted, r.RelationsCascaded, r.RelationsEvicted, r.NodeCountAfter, r.RelationCountAfter)
	}
	fmt.Fprintf(out, "\n%d runs, %d nodes and %d relations evicted in total.\n",
		totals.Runs, totals.NodesEvicted, totals.RelationsCascaded+totals.RelationsEvicted)
	return nil
}
