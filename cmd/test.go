package cmd

import (
	"github.com/spf13/cobra"

	"dbtkit/internal/dbt"
)

var (
	testTarget     string
	testUpstream   bool
	testDownstream bool
	testWork       bool
	testLast       bool
	testDate       string
	testExclude    []string
)

var testCmd = &cobra.Command{
	Use:   "test [selector]",
	Short: "Run dbt tests for the selected models",
	RunE:  runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().StringVarP(&testTarget, "target", "t", "dev", "dbt target (dev, build, prod, prod-ci)")
	testCmd.Flags().BoolVarP(&testUpstream, "upstream", "u", false, "include upstream dependencies")
	testCmd.Flags().BoolVarP(&testDownstream, "downstream", "d", false, "include downstream dependents")
	testCmd.Flags().BoolVarP(&testWork, "work", "w", false, "select among models with staged local changes")
	testCmd.Flags().BoolVarP(&testLast, "last", "l", false, "repeat the previous selection")
	testCmd.Flags().StringVar(&testDate, "date", "", "date of the data interval (YYYY-MM-DD)")
	testCmd.Flags().StringSliceVarP(&testExclude, "exclude", "x", nil, "models to exclude from the selection")
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	target, err := parseTargetFlag(testTarget)
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
	selected, err := resolveSelection(cfg, args, testUpstream, testDownstream, testWork, testLast)
	if err != nil {
		return err
	}

	// Tests run over a single day at most.
	vars, err := intervalVars(testDate, 1, false)
	if err != nil {
		return err
	}

	inv := dbt.Invocation{
		Command: "test",
		Target:  target,
		Select:  selected,
		Exclude: testExclude,
		Vars:    vars,
	}
	if !target.IsDev() {
		inv.ProfilesDir = cfg.DockerProfilesDir
	}
	return dbt.Run(ctx, inv)
}
