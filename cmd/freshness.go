package cmd

import (
	"github.com/spf13/cobra"

	"dbtkit/internal/dbt"
	"dbtkit/pkg/models"
)

var freshnessTarget string

var freshnessCmd = &cobra.Command{
	Use:   "freshness",
	Short: "Check source data freshness with dbt",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseTargetFlag(freshnessTarget)
		if err != nil {
			return err
		}
		if err := ensureAuth(cmd.Context()); err != nil {
			return err
		}
		cfg, err := loadProject()
		if err != nil {
			return err
		}

		inv := dbt.Invocation{
			Command: "source freshness",
			Target:  target,
		}
		if !target.IsDev() {
			inv.ProfilesDir = cfg.DockerProfilesDir
		}
		return dbt.Run(cmd.Context(), inv)
	},
}

func init() {
	rootCmd.AddCommand(freshnessCmd)
	freshnessCmd.Flags().StringVarP(&freshnessTarget, "target", "t", string(models.TargetDev),
		"dbt target (dev, build, prod, prod-ci)")
}
