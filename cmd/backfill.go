package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dbtkit/internal/backfill"
	"dbtkit/internal/ui"
	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

var (
	backfillStartDate   string
	backfillEndDate     string
	backfillBatchDays   int
	backfillParallelism int
	backfillFullRefresh bool
	backfillYes         bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill <selector>",
	Short: "Re-run models over a historical date range via Cloud Run",
	Long: `Plans a Cloud Run job that re-runs the selected models one date batch per
task, writes the job configuration to .dbtkit/backfill-cloudrun.yaml for
review, then submits and starts the job.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().StringVar(&backfillStartDate, "start-date", "", "first date to backfill (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillEndDate, "end-date", "", "last date to backfill (YYYY-MM-DD)")
	backfillCmd.Flags().IntVar(&backfillBatchDays, "batch-days", 1, "days handled by each Cloud Run task")
	backfillCmd.Flags().IntVar(&backfillParallelism, "parallelism", 4, "max tasks running at once")
	backfillCmd.Flags().BoolVar(&backfillFullRefresh, "full-refresh", false,
		"full refresh (single day, selector without graph operators)")
	backfillCmd.Flags().BoolVarP(&backfillYes, "yes", "y", false, "skip the confirmation prompt")
	_ = backfillCmd.MarkFlagRequired("start-date")
	_ = backfillCmd.MarkFlagRequired("end-date")
}

func parseDate(value, flag string) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid --%s %q: expected YYYY-MM-DD", flag, value))
	}
	return date, nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	start, err := parseDate(backfillStartDate, "start-date")
	if err != nil {
		return err
	}
	end, err := parseDate(backfillEndDate, "end-date")
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

	spec, err := backfill.NewJobSpec(backfill.Params{
		Selector:    args[0],
		StartDate:   start,
		EndDate:     end,
		BatchDays:   backfillBatchDays,
		Parallelism: backfillParallelism,
		FullRefresh: backfillFullRefresh,
		Target:      models.TargetProd,
	}, cfg)
	if err != nil {
		return err
	}

	manifestPath := cfg.DotPath("backfill-cloudrun.yaml")
	if err := spec.WriteManifest(manifestPath); err != nil {
		return err
	}

	ui.ShowHeader("Backfill plan")
	ui.PrintKeyValue("job", spec.Name)
	ui.PrintKeyValue("selector", spec.Selector)
	ui.PrintKeyValue("dates", fmt.Sprintf("%s .. %s", backfillStartDate, backfillEndDate))
	ui.PrintKeyValue("tasks", fmt.Sprintf("%d (parallelism %d)", spec.TaskCount, spec.Parallelism))
	ui.PrintKeyValue("spec file", manifestPath)

	if !backfillYes {
		ok, err := ui.Confirm(fmt.Sprintf("Submit and start job %s?", spec.Name), false)
		if err != nil {
			return err
		}
		if !ok {
			return errors.ErrCancelled
		}
	}

	runner, err := backfill.NewRunner(ctx)
	if err != nil {
		return err
	}
	defer runner.Close()

	if err := runner.EnsureJob(ctx, spec); err != nil {
		return err
	}
	if err := runner.Start(ctx, spec); err != nil {
		return err
	}

	ui.ShowSuccess("Backfill started")
	ui.ShowInfo("Follow progress at " + spec.ConsoleURL())
	return nil
}
