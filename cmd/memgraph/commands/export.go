package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JNZader/memgraph/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export memories to an Obsidian vault",
	Long: `Write one markdown note per memory into an Obsidian vault, with
relations as wiki links and an index note ranking memories by decayed
importance. Notes of memories that no longer exist are removed; notes not
written by memgraph are left alone.

Examples:
  memgraph export --vault ~/Notes
  memgraph export --vault ~/Notes --folder agent-memory`,

	Args: cobra.NoArgs,
	RunE: runExport,
}

var (
	exportVault  string
	exportFolder string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportVault, "vault", "", "vault directory (default from config)")
	exportCmd.Flags().StringVar(&exportFolder, "folder", "", "folder inside the vault (default from config)")
	exportCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
}

func runExport(cmd *cobra.Command, args []string) error {
	obsidian := cfg.Export.Obsidian
	obsidian.VaultPath = orDefault(cmd, "vault", exportVault, obsidian.VaultPath)
	obsidian.FolderName = orDefault(cmd, "folder", exportFolder, obsidian.FolderName)

	exporter, err := export.NewObsidianExporter(obsidian)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := exporter.Export(a.graph.Snapshot(), &export.Metadata{
		ExportedAt: a.graph.Now(),
		Version:    Version,
	})
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d memories with %d links to %s (%d stale notes removed).\n",
		res.Notes, res.Links, res.Dir, res.Removed)
	return nil
}
