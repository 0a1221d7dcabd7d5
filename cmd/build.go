package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dbtkit/internal/config"
	"dbtkit/internal/dbt"
	"dbtkit/internal/manifest"
	"dbtkit/internal/ui"
	"dbtkit/pkg/errors"
)

var (
	buildTarget       string
	buildFullRefresh  bool
	buildUpstream     bool
	buildDownstream   bool
	buildWork         bool
	buildLast         bool
	buildDate         string
	buildBatchDays    int
	buildUseTaskIndex bool
	buildExclude      []string
)

var buildCmd = &cobra.Command{
	Use:   "build [selector]",
	Short: "Build models with dbt, selecting interactively when needed",
	Long: `Runs 'dbt build' for the selected models. A selector matching a model name
or containing dbt selector syntax is passed straight through; anything else
opens an interactive fuzzy picker over the manifest's models.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&buildTarget, "target", "t", "dev", "dbt target (dev, build, prod, prod-ci)")
	buildCmd.Flags().BoolVarP(&buildFullRefresh, "full-refresh", "f", false, "rebuild incremental models from scratch")
	buildCmd.Flags().BoolVarP(&buildUpstream, "upstream", "u", false, "include upstream dependencies")
	buildCmd.Flags().BoolVarP(&buildDownstream, "downstream", "d", false, "include downstream dependents")
	buildCmd.Flags().BoolVarP(&buildWork, "work", "w", false, "select among models with staged local changes")
	buildCmd.Flags().BoolVarP(&buildLast, "last", "l", false, "repeat the previous selection")
	buildCmd.Flags().StringVar(&buildDate, "date", "", "start date of the data interval (YYYY-MM-DD)")
	buildCmd.Flags().IntVar(&buildBatchDays, "batch-days", 1, "days per run when building over a date range")
	buildCmd.Flags().BoolVar(&buildUseTaskIndex, "use-task-index", false,
		"offset the date by CLOUD_RUN_TASK_INDEX batches (set inside backfill jobs)")
	buildCmd.Flags().StringSliceVarP(&buildExclude, "exclude", "x", nil, "models to exclude from the selection")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target, err := parseTargetFlag(buildTarget)
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
	selected, err := resolveSelection(cfg, args, buildUpstream, buildDownstream, buildWork, buildLast)
	if err != nil {
		return err
	}

	vars, err := intervalVars(buildDate, buildBatchDays, buildUseTaskIndex)
	if err != nil {
		return err
	}

	inv := dbt.Invocation{
		Command:     "build",
		Target:      target,
		Select:      selected,
		Exclude:     buildExclude,
		FullRefresh: buildFullRefresh,
		Vars:        vars,
	}
	if !target.IsDev() {
		inv.ProfilesDir = cfg.DockerProfilesDir
	}
	if err := dbt.Run(ctx, inv); err != nil {
		return err
	}

	if !target.IsDev() {
		if err := uploadState(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// intervalVars computes the dbt vars for a date-bounded run. Inside a Cloud
// Run backfill job every task handles its own batch, offset by the task
// index that Cloud Run injects.
func intervalVars(date string, batchDays int, useTaskIndex bool) (map[string]string, error) {
	if date == "" {
		return nil, nil
	}
	start, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid date %q: expected YYYY-MM-DD", date))
	}
	if batchDays < 1 {
		batchDays = 1
	}
	if useTaskIndex {
		index, err := strconv.Atoi(os.Getenv("CLOUD_RUN_TASK_INDEX"))
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput,
				"CLOUD_RUN_TASK_INDEX is not set; --use-task-index only works inside a Cloud Run job")
		}
		start = start.AddDate(0, 0, index*batchDays)
	}
	end := start.AddDate(0, 0, batchDays)
	return map[string]string{
		"data_interval_start": start.Format("2006-01-02"),
		"data_interval_end":   end.Format("2006-01-02"),
	}, nil
}

// uploadState publishes the freshly compiled manifest so production tooling
// reconciles against what actually ran. Skipped when no state bucket is
// configured.
func uploadState(ctx context.Context, cfg *config.ProjectConfig) error {
	if cfg.StateBucket == "" {
		return nil
	}
	store, err := manifest.NewStateStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.UploadManifest(ctx, cfg.StateBucket, localManifestPath(cfg)); err != nil {
		return err
	}
	ui.ShowInfo("Uploaded manifest to state bucket " + cfg.StateBucket)
	return nil
}
