package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/graph"
)

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find memories similar to a text",
	Long: `Embed the text and list the memories whose cosine similarity is at
least the threshold, most similar first.

--tag keeps memories carrying at least one of the given tags; --type keeps
memories of the given content types. Both filters apply before --limit.

Examples:
  memgraph search "how do retries work"
  memgraph search "deploy schedule" --threshold 0.5 --limit 3
  memgraph search "backoff" --tag http --type fact --type code`,

	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <id>",
	Short: "List memories reachable from a memory",
	Long: `Walk outgoing relations breadth-first, following only relations whose
decayed strength is at least --min-strength, for up to --max-distance hops.`,

	Args: cobra.ExactArgs(1),
	RunE: runNeighbors,
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "List the most important memories",
	Args:  cobra.NoArgs,
	RunE:  runActive,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var (
	searchThreshold float64
	searchLimit     int
	searchTags      []string
	searchTypes     []string

	neighborsMaxDistance int
	neighborsMinStrength float64

	activeLimit int

	outputJSON bool
)

func init() {
	rootCmd.AddCommand(searchCmd, neighborsCmd, activeCmd, statsCmd)

	// Unset flags fall back to the configured values, see orDefault.
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum cosine similarity (default from config)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from config)")
	searchCmd.Flags().StringArrayVar(&searchTags, "tag", nil, "only memories with one of these tags (repeatable)")
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "only memories of these content types (repeatable)")

	neighborsCmd.Flags().IntVarP(&neighborsMaxDistance, "max-distance", "d", 0, "maximum hops (default from config)")
	neighborsCmd.Flags().Float64Var(&neighborsMinStrength, "min-strength", 0, "minimum decayed relation strength (default from config)")

	activeCmd.Flags().IntVarP(&activeLimit, "limit", "n", 0, "maximum results (default from config)")

	for _, c := range []*cobra.Command{searchCmd, neighborsCmd, activeCmd, statsCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	filter, err := graph.NewSearchFilter(searchTags, searchTypes)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	threshold := orDefault(cmd, "threshold", searchThreshold, cfg.Search.Threshold)
	limit := orDefault(cmd, "limit", searchLimit, cfg.Search.Limit)

	hits := a.graph.FindSimilarNodesFiltered(a.embedder.Embed(strings.Join(args, " ")), threshold, limit, filter)
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), nonNil(hits))
	}

	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matching memories.")
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(out, "%.3f  %-36s  %-9s  %s\n", h.Similarity, h.Node.ID, h.Node.ContentType, truncate(h.Node.Content, 60))
	}
	return nil
}

func runNeighbors(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if _, ok := a.graph.PeekNode(args[0]); !ok {
		return fmt.Errorf("node %s not found", args[0])
	}

	maxDistance := orDefault(cmd, "max-distance", neighborsMaxDistance, cfg.Traversal.MaxDistance)
	minStrength := orDefault(cmd, "min-strength", neighborsMinStrength, cfg.Traversal.MinRelationStrength)

	nodes := a.graph.GetNeighbors(args[0], maxDistance, minStrength)
	return printNodes(cmd, a.graph, nodes)
}

func runActive(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	limit := orDefault(cmd, "limit", activeLimit, cfg.Search.Limit)
	return printNodes(cmd, a.graph, a.graph.GetActiveNodes(limit))
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	stats := a.graph.GetStatistics()
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Nodes:                %d\n", stats.NodeCount)
	fmt.Fprintf(out, "Relations:            %d\n", stats.RelationCount)
	fmt.Fprintf(out, "Average connectivity: %.2f\n", stats.AverageConnectivity)
	if st, err := a.store.Stats(cmd.Context()); err == nil {
		fmt.Fprintf(out, "Store size:           %s\n", humanize.IBytes(uint64(st.SizeBytes)))
		if !st.TakenAt.IsZero() {
			fmt.Fprintf(out, "Last saved:           %s\n", humanize.Time(st.TakenAt))
		}
	}

	if len(stats.ByContentType) > 0 {
		fmt.Fprintln(out, "\nBy content type:")
		for _, k := range sortedKeys(stats.ByContentType) {
			fmt.Fprintf(out, "  %-13s %d\n", k, stats.ByContentType[k])
		}
	}
	if len(stats.ByRelationType) > 0 {
		fmt.Fprintln(out, "\nBy relation type:")
		for _, k := range sortedKeys(stats.ByRelationType) {
			fmt.Fprintf(out, "  %-13s %d\n", k, stats.ByRelationType[k])
		}
	}
	if len(stats.TopNodes) > 0 {
		fmt.Fprintln(out, "\nTop nodes:")
		for _, n := range stats.TopNodes {
			fmt.Fprintf(out, "  %.3f  %s\n", n.Importance, n.ID)
		}
	}
	return nil
}

func printNodes(cmd *cobra.Command, g *graph.Graph, nodes []*graph.MemoryNode) error {
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), nonNil(nodes))
	}

	out := cmd.OutOrStdout()
	if len(nodes) == 0 {
		fmt.Fprintln(out, "No memories.")
		return nil
	}
	now := g.Now()
	for _, n := range nodes {
		fmt.Fprintf(out, "%.3f  %-36s  %-9s  %s\n",
			graph.DecayedImportance(n, now), n.ID, n.ContentType, truncate(n.Content, 60))
	}
	return nil
}

// orDefault returns the flag value when the flag was given and def
// otherwise.
func orDefault[T any](cmd *cobra.Command, name string, v, def T) T {
	if cmd.Flags().Changed(name) {
		return v
	}
	return def
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
