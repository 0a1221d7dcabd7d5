package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dbtkit/internal/bigquery"
	"dbtkit/internal/scaffold"
	"dbtkit/internal/ui"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage dbt source declarations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var sourceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Declare a source table, browsing live BigQuery for the dataset and table",
	RunE:  runSourceCreate,
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	sourceCmd.AddCommand(sourceCreateCmd)
}

func runSourceCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := ensureAuth(ctx); err != nil {
		return err
	}
	cfg, err := loadProject()
	if err != nil {
		return err
	}

	project, err := ui.InputRequired("GCP project of the source data", "")
	if err != nil {
		return err
	}

	client, err := bigquery.NewClient(ctx, bigquery.Options{Project: project})
	if err != nil {
		return err
	}
	defer client.Close()

	datasets, err := client.ListDatasets(ctx, project)
	if err != nil {
		return err
	}
	dataset, err := ui.SearchableSelect("Dataset", datasets)
	if err != nil {
		return err
	}

	tables, err := client.ListTableNames(ctx, project, dataset)
	if err != nil {
		return err
	}
	table, err := ui.SearchableSelect("Table", tables)
	if err != nil {
		return err
	}

	sourceName, err := ui.InputRequired("Source name", "logical source group, e.g. billing")
	if err != nil {
		return err
	}
	description, err := ui.Input("Table description", "", "")
	if err != nil {
		return err
	}

	path, err := scaffold.AddSource(cfg.Root(), scaffold.SourceSpec{
		SourceName:  sourceName,
		Project:     project,
		Dataset:     dataset,
		Table:       table,
		Description: description,
	})
	if err != nil {
		return err
	}

	ui.ShowSuccess(fmt.Sprintf("Declared source %s.%s in %s", sourceName, table, path))
	ui.ShowInfo("Run 'dbtkit manifest' to recompile")
	return nil
}
