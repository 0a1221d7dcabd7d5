package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dbtkit/internal/bigquery"
	"dbtkit/internal/config"
	"dbtkit/internal/executor"
	"dbtkit/internal/manifest"
	"dbtkit/internal/reconcile"
	"dbtkit/internal/ui"
	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Warehouse maintenance: orphans, expirations, restores",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var (
	orphanedTarget string
	orphanedList   bool
	orphanedForce  bool
)

var adminOrphanedCmd = &cobra.Command{
	Use:   "orphaned",
	Short: "Find and delete warehouse tables no longer declared in the manifest",
	Long: `Compares the warehouse catalog against the manifest and lists tables and
views that exist in datasets the manifest writes to but belong to no model.
Orphans can be deleted after interactive selection; production targets always
prompt for confirmation and only allow deletes in eligible projects.`,
	RunE: runAdminOrphaned,
}

var (
	expiryTarget string
	expiryModel  string
)

var adminExpiryCmd = &cobra.Command{
	Use:   "partition-expiry",
	Short: "Align table partition expirations with the manifest",
	RunE:  runAdminExpiry,
}

var cleandevForce bool

var adminCleandevCmd = &cobra.Command{
	Use:   "cleandev",
	Short: "Delete all tables and views in the development project's datasets",
	RunE:  runAdminCleandev,
}

var restoreDest string

var adminRestoreCmd = &cobra.Command{
	Use:   "restore <project.dataset.table> <timestamp>",
	Short: "Restore a deleted table from BigQuery time travel",
	Long: `Restores a deleted table to its state at the given point in time. The
timestamp accepts epoch milliseconds, RFC 3339 or YYYY-MM-DD and must fall
inside BigQuery's 7 day time travel window.`,
	Args: cobra.ExactArgs(2),
	RunE: runAdminRestore,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminOrphanedCmd, adminExpiryCmd, adminCleandevCmd, adminRestoreCmd)

	adminOrphanedCmd.Flags().StringVarP(&orphanedTarget, "target", "t", "dev", "manifest to reconcile against (dev or prod)")
	adminOrphanedCmd.Flags().BoolVar(&orphanedList, "list", false, "only list orphans, delete nothing")
	adminOrphanedCmd.Flags().BoolVar(&orphanedForce, "force", false, "skip confirmation (development target only)")

	adminExpiryCmd.Flags().StringVarP(&expiryTarget, "target", "t", "prod", "manifest to reconcile against (dev or prod)")
	adminExpiryCmd.Flags().StringVarP(&expiryModel, "model", "m", "", "only check this model")

	adminCleandevCmd.Flags().BoolVar(&cleandevForce, "force", false, "skip confirmation")

	adminRestoreCmd.Flags().StringVar(&restoreDest, "dest", "",
		"destination table (name in the same dataset, or project.dataset.table)")
}

// manifestForTarget loads the manifest matching the reconciliation target.
// Production reconciliation uses the last-published remote manifest.
func manifestForTarget(ctx context.Context, cfg *config.ProjectConfig, target models.Target) (*manifest.Manifest, error) {
	if target.IsDev() {
		return loadLocalManifest(cfg)
	}
	return loadProdManifest(ctx, cfg, false)
}

// catalogFor lists the warehouse contents of every dataset the manifest
// declares at least one relation in.
func catalogFor(ctx context.Context, client *bigquery.Client, m *manifest.Manifest) ([]models.CatalogEntry, error) {
	type dataset struct{ project, name string }
	seen := make(map[dataset]bool)
	var datasets []dataset
	for _, node := range m.Nodes() {
		if node.Kind != models.KindModel || !node.HasRelation || !node.IsRelational() {
			continue
		}
		ds := dataset{node.Relation.Project, node.Relation.Dataset}
		if !seen[ds] {
			seen[ds] = true
			datasets = append(datasets, ds)
		}
	}
	sort.Slice(datasets, func(i, j int) bool {
		if datasets[i].project != datasets[j].project {
			return datasets[i].project < datasets[j].project
		}
		return datasets[i].name < datasets[j].name
	})

	var catalog []models.CatalogEntry
	for _, ds := range datasets {
		entries, err := client.ListDatasetEntries(ctx, ds.project, ds.name)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, entries...)
	}
	return catalog, nil
}

// deleteAllowed enforces where deletes may run: the development project, or
// the explicitly configured eligible projects.
func deleteAllowed(cfg *config.ProjectConfig, project string) bool {
	if project == cfg.DevProject {
		return true
	}
	for _, eligible := range cfg.EligibleDeleteProjects {
		if project == eligible {
			return true
		}
	}
	return false
}

func printSummary(summary executor.Summary, verb string) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	for _, result := range summary.Results {
		if result.Err == nil {
			fmt.Printf("  %s %s %s\n", green("✓"), verb, result.Label)
		} else {
			fmt.Printf("  %s %s %s: %v\n", red("✗"), verb, result.Label, result.Err)
		}
	}
	return summary.Err()
}

func runAdminOrphaned(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target, err := parseTargetFlag(orphanedTarget)
	if err != nil {
		return err
	}
	if err := ensureAuth(ctx); err != nil {
		return err
	}
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	m, err := manifestForTarget(ctx, cfg, target)
	if err != nil {
		return err
	}

	client, err := bigquery.NewClient(ctx, bigquery.Options{})
	if err != nil {
		return err
	}
	defer client.Close()

	catalog, err := catalogFor(ctx, client, m)
	if err != nil {
		return err
	}

	orphans := reconcile.Orphaned(reconcile.Reconcile(m.Nodes(), catalog))
	if len(orphans) == 0 {
		ui.ShowSuccess("No orphaned tables found")
		return nil
	}

	fmt.Print(ui.RenderReconciliation(orphans))
	if orphanedList {
		return nil
	}

	selected, err := ui.SelectReconciliationResults("Select orphans to delete", orphans)
	if err != nil {
		return err
	}
	for _, orphan := range selected {
		if !deleteAllowed(cfg, orphan.Ref.Project) {
			return errors.New(errors.ErrCodeAccessDenied,
				fmt.Sprintf("Deletes are not allowed in project %s", orphan.Ref.Project)).
				WithSuggestions("Add the project to eligible_delete_projects in pyproject.toml if this is intended")
		}
	}

	// Force skips confirmation only for the dev target; production deletes
	// always require an explicit yes.
	if !orphanedForce || !target.IsDev() {
		ok, err := ui.Confirm(fmt.Sprintf("Delete %d tables?", len(selected)), false)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrCancelled
		}
	}

	actions := make([]executor.Action, len(selected))
	for i, orphan := range selected {
		ref := orphan.Ref
		actions[i] = executor.Action{
			Label: ref.String(),
			Run: func(ctx context.Context) error {
				return client.DeleteTable(ctx, ref)
			},
		}
	}
	return printSummary(executor.Apply(ctx, actions), "deleted")
}

func runAdminExpiry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target, err := parseTargetFlag(expiryTarget)
	if err != nil {
		return err
	}
	if err := ensureAuth(ctx); err != nil {
		return err
	}
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	m, err := manifestForTarget(ctx, cfg, target)
	if err != nil {
		return err
	}

	client, err := bigquery.NewClient(ctx, bigquery.Options{})
	if err != nil {
		return err
	}
	defer client.Close()

	catalog, err := catalogFor(ctx, client, m)
	if err != nil {
		return err
	}

	mismatched := reconcile.Mismatched(reconcile.Reconcile(m.Nodes(), catalog))
	if expiryModel != "" {
		var filtered []models.ReconciliationResult
		for _, r := range mismatched {
			if r.Node != nil && r.Node.Name == expiryModel {
				filtered = append(filtered, r)
			}
		}
		mismatched = filtered
	}
	if len(mismatched) == 0 {
		ui.ShowSuccess("All partition expirations match the manifest")
		return nil
	}

	fmt.Print(ui.RenderReconciliation(mismatched))

	selected, err := ui.SelectReconciliationResults("Select tables to update", mismatched)
	if err != nil {
		return err
	}

	actions := make([]executor.Action, 0, len(selected))
	for _, result := range selected {
		if result.Declared == nil {
			ui.ShowWarning(fmt.Sprintf("%s declares no expiration; clearing is not supported, skipping", result.Ref))
			continue
		}
		ref := result.Ref
		days := *result.Declared
		actions = append(actions, executor.Action{
			Label: fmt.Sprintf("%s -> %dd", ref, days),
			Run: func(ctx context.Context) error {
				return client.UpdatePartitionExpiration(ctx, ref, days)
			},
		})
	}
	return printSummary(executor.Apply(ctx, actions), "updated")
}

func runAdminCleandev(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := ensureAuth(ctx); err != nil {
		return err
	}
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	devProject, err := cfg.Require("dev_project")
	if err != nil {
		return err
	}
	m, err := loadLocalManifest(cfg)
	if err != nil {
		return err
	}

	client, err := bigquery.NewClient(ctx, bigquery.Options{Project: devProject})
	if err != nil {
		return err
	}
	defer client.Close()

	// Only datasets the manifest materializes into within the dev project.
	seen := make(map[string]bool)
	var refs []models.TableRef
	for _, node := range m.Nodes() {
		if node.Kind != models.KindModel || !node.HasRelation {
			continue
		}
		if node.Relation.Project != devProject || seen[node.Relation.Dataset] {
			continue
		}
		seen[node.Relation.Dataset] = true

		names, err := client.ListTableNames(ctx, devProject, node.Relation.Dataset)
		if err != nil {
			return err
		}
		for _, name := range names {
			refs = append(refs, models.TableRef{
				Project: devProject, Dataset: node.Relation.Dataset, Table: name,
			})
		}
	}

	if len(refs) == 0 {
		ui.ShowSuccess("Development datasets are already empty")
		return nil
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })

	ui.ShowInfo(fmt.Sprintf("Found %d tables and views in %s", len(refs), devProject))
	if !cleandevForce {
		ok, err := ui.Confirm(fmt.Sprintf("Delete all %d?", len(refs)), false)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrCancelled
		}
	}

	actions := make([]executor.Action, len(refs))
	for i, ref := range refs {
		ref := ref
		actions[i] = executor.Action{
			Label: ref.String(),
			Run: func(ctx context.Context) error {
				return client.DeleteTable(ctx, ref)
			},
		}
	}
	return printSummary(executor.Apply(ctx, actions), "deleted")
}

func runAdminRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ref, err := models.ParseTableRef(args[0])
	if err != nil {
		return errors.New(errors.ErrCodeInvalidInput, err.Error())
	}
	at, err := bigquery.ParseSnapshotTime(args[1], time.Now())
	if err != nil {
		return err
	}

	dest := ref
	if restoreDest != "" {
		if strings.Contains(restoreDest, ".") {
			if dest, err = models.ParseTableRef(restoreDest); err != nil {
				return errors.New(errors.ErrCodeInvalidInput, err.Error())
			}
		} else {
			dest.Table = restoreDest
		}
	}

	if err := ensureAuth(ctx); err != nil {
		return err
	}
	client, err := bigquery.NewClient(ctx, bigquery.Options{Project: ref.Project})
	if err != nil {
		return err
	}
	defer client.Close()

	if dest == ref {
		exists, err := client.TableExists(ctx, ref)
		if err != nil {
			return err
		}
		if exists {
			return errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("Table %s still exists; restores only recover deleted tables", ref)).
				WithSuggestions("Pass --dest to restore the snapshot under a different name")
		}
	}

	if err := client.RestoreTable(ctx, ref, at, dest); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("Restored %s as of %s into %s", ref, at.Format(time.RFC3339), dest))
	return nil
}
