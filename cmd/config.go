package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbtkit/internal/config"
	"dbtkit/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config [setting] [value]",
	Short: "Show or update user configuration",
	Long: `Without arguments, prints the current user configuration. With a setting
and value, updates it, e.g. 'dbtkit config general:theme dark' or
'dbtkit config model_info:formatter "fmt -s"'.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadUser()
	if err != nil {
		return err
	}

	switch len(args) {
	case 0:
		ui.ShowHeader("User configuration")
		ui.PrintKeyValue("general:theme", cfg.General.Theme)
		ui.PrintKeyValue("general:editor", cfg.General.Editor)
		ui.PrintKeyValue("general:auth_check", fmt.Sprintf("%t", cfg.General.AuthCheck))
		ui.PrintKeyValue("model_info:formatter", cfg.ModelInfo.Formatter)
		ui.PrintKeyValue("file", config.GetUserConfigFile())
		return nil
	case 1:
		return fmt.Errorf("expected a value for setting %q", args[0])
	default:
		if err := cfg.Update(args[0], args[1]); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Set %s = %s", args[0], args[1]))
		return nil
	}
}
