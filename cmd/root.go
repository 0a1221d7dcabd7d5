// Package cmd wires the CLI surface. Commands stay thin: they parse flags,
// run the interactive flow and delegate to the internal packages.
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dbtkit/internal/config"
	"dbtkit/internal/ui"
	"dbtkit/pkg/errors"
)

var rootCmd = &cobra.Command{
	Use:   "dbtkit",
	Short: "Team conventions and maintenance for dbt on BigQuery",
	Long: "dbtkit wraps the day-to-day dbt workflow of the analytics team: scaffolding\n" +
		"models, building with fuzzy selection, backfilling via Cloud Run, and keeping\n" +
		"the warehouse in sync with the manifest.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. A cancelled interactive selection is a
// no-op, not a failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.IsCancelled(err) {
			os.Exit(0)
		}
		ui.ShowError(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig points viper at the user config file and the DBTKIT_* environment
// variables. loadUserConfig layers the resulting values over the stored
// settings, so DBTKIT_GENERAL_EDITOR=vim overrides config.yaml for one run.
func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(config.GetUserConfigPath())
	viper.SetEnvPrefix("DBTKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// No user config yet; defaults apply
	}
}
