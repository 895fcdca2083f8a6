package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/graph"
)

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Add a memory",
	Long: `Add a memory node. The content is embedded for similarity search
unless it already exists under the given id.

Examples:
  memgraph add "Retries use exponential backoff" --type FACT --importance 0.8
  memgraph add "func Retry(ctx context.Context) error" --type CODE --tag go --tag http
  memgraph add "deploys happen on tuesdays" --id deploy-day --meta team=platform`,

	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a memory",
	Long:  `Print a memory node as JSON. Reading a memory counts as an access and slows its decay.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var relateCmd = &cobra.Command{
	Use:   "relate <from> <to>",
	Short: "Relate two memories",
	Long: `Add a directed relation between two memories. Relating the same pair
with the same type again reinforces the existing relation instead.

Relation types: SIMILAR, OPPOSITE, CONTAINS, PART_OF, CAUSES, IMPLIES,
PRECEDES, FOLLOWS, GENERALIZES, SPECIALIZES, EXTENDS, CONTEXT, EXAMPLE,
REFERENCE, CUSTOM.

Examples:
  memgraph relate backoff http-client --type PART_OF --strength 0.6`,

	Args: cobra.ExactArgs(2),
	RunE: runRelate,
}

var (
	addID         string
	addType       string
	addImportance float64
	addTags       []string
	addMeta       []string

	relateType     string
	relateStrength float64
	relateMeta     []string
)

func init() {
	rootCmd.AddCommand(addCmd, getCmd, relateCmd)

	addCmd.Flags().StringVar(&addID, "id", "", "explicit node id (default: generated)")
	addCmd.Flags().StringVarP(&addType, "type", "t", string(graph.ContentText), "content type")
	addCmd.Flags().Float64VarP(&addImportance, "importance", "i", 0.5, "base importance in [0, 1]")
	addCmd.Flags().StringArrayVar(&addTags, "tag", nil, "tag (repeatable)")
	addCmd.Flags().StringArrayVar(&addMeta, "meta", nil, "metadata key=value (repeatable)")

	relateCmd.Flags().StringVarP(&relateType, "type", "t", string(graph.RelCustom), "relation type")
	relateCmd.Flags().Float64VarP(&relateStrength, "strength", "s", 0.5, "relation strength in [0, 1]")
	relateCmd.Flags().StringArrayVar(&relateMeta, "meta", nil, "metadata key=value (repeatable)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	meta, err := parseMeta(addMeta)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	content := strings.Join(args, " ")
	opts := []graph.NodeOption{
		graph.WithEmbedding(a.embedder.Embed(content)),
		graph.WithTags(addTags...),
		graph.WithMetadata(meta),
	}
	if addID != "" {
		opts = append(opts, graph.WithID(addID))
	}
	node := graph.NewMemoryNode(content, graph.ParseContentType(strings.ToUpper(addType)), addImportance, opts...)

	if !a.graph.AddNode(node) {
		return fmt.Errorf("node %s already exists", node.ID)
	}
	if err := a.save(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), node.ID)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	node, ok := a.graph.GetNode(args[0])
	if !ok {
		return fmt.Errorf("node %s not found", args[0])
	}
	// The access is persisted so decay sees it next time.
	if err := a.save(cmd.Context()); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), node)
}

func runRelate(cmd *cobra.Command, args []string) error {
	meta, err := parseMeta(relateMeta)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	rel := graph.NewMemoryRelation(args[0], args[1], graph.ParseRelationType(strings.ToUpper(relateType)), relateStrength)
	rel.Metadata = meta
	if !a.graph.AddRelation(rel) {
		return fmt.Errorf("cannot relate %s -> %s: unknown node", args[0], args[1])
	}
	if err := a.save(cmd.Context()); err != nil {
		return err
	}

	stored, _ := a.graph.GetRelation(rel.FromNodeID, rel.ToNodeID, rel.RelationType)
	fmt.Fprintf(cmd.OutOrStdout(), "%s -[%s %.2f]-> %s (reinforced %d times)\n",
		stored.FromNodeID, stored.RelationType, stored.Strength, stored.ToNodeID, stored.ReinforcementCount)
	return nil
}

// parseMeta turns key=value pairs into a map.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// truncate shortens s to at most n runes for single-line listings.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
