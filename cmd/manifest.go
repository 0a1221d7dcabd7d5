package cmd

import (
	"github.com/spf13/cobra"

	"dbtkit/internal/dbt"
	"dbtkit/internal/manifest"
	"dbtkit/internal/ui"
	"dbtkit/pkg/models"
)

var (
	manifestForce    bool
	manifestSkipProd bool
	manifestSkipDev  bool
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Refresh the local and production manifests",
	Long: `Recompiles the local manifest with 'dbt parse' and refreshes the cached
copy of the last-published production manifest from the state bucket.`,
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().BoolVarP(&manifestForce, "force", "f", false,
		"refresh the production manifest even when the cached copy is fresh")
	manifestCmd.Flags().BoolVar(&manifestSkipProd, "skip-prod", false, "only recompile the local manifest")
	manifestCmd.Flags().BoolVar(&manifestSkipDev, "skip-dev", false, "only refresh the production manifest")
}

func runManifest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadProject()
	if err != nil {
		return err
	}

	if !manifestSkipDev {
		if err := dbt.Run(ctx, dbt.Invocation{
			Command: "parse",
			Target:  models.TargetDev,
			Quiet:   true,
		}); err != nil {
			return err
		}

		m, err := manifest.Load(localManifestPath(cfg))
		if err != nil {
			return err
		}
		if err := m.WriteCache(cfg.DotPath(modelsCacheFile)); err != nil {
			return err
		}
		ui.ShowSuccess("Local manifest recompiled")
	}

	if !manifestSkipProd {
		if err := ensureAuth(ctx); err != nil {
			return err
		}
		if _, err := loadProdManifest(ctx, cfg, manifestForce); err != nil {
			return err
		}
		ui.ShowSuccess("Production manifest refreshed")
	}
	return nil
}
