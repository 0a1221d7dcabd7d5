package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dbtkit/internal/bigquery"
	"dbtkit/internal/config"
	"dbtkit/internal/git"
	"dbtkit/internal/manifest"
	"dbtkit/internal/scaffold"
	"dbtkit/internal/ui"
	"dbtkit/pkg/errors"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Create, inspect and maintain dbt models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var modelCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Scaffold a new model interactively",
	RunE:  runModelCreate,
}

var modelFixCmd = &cobra.Command{
	Use:   "fix [model...]",
	Short: "Format SQL files with sqlfmt",
	Long:  "Formats the named models, or every SQL file with staged changes when no models are given.",
	RunE:  runModelFix,
}

var modelLintCmd = &cobra.Command{
	Use:   "lint [model...]",
	Short: "Lint SQL files with sqlfluff",
	Long:  "Lints the named models, or every SQL file with staged changes when no models are given.",
	RunE:  runModelLint,
}

var (
	moveLayer  string
	moveDomain string
	moveName   string
	moveUnsafe bool
)

var modelMoveCmd = &cobra.Command{
	Use:   "move <model>",
	Short: "Move or rename a model",
	Long: `Moves a model's SQL and YAML files to a new layer, domain or name. By
default the old model is kept as a forwarding view so downstream consumers
keep working; --unsafe removes the old files instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runModelMove,
}

var modelInspectCmd = &cobra.Command{
	Use:   "inspect [model]",
	Short: "Show a model's details and dependency graph neighbors",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModelInspect,
}

var modelValidateCmd = &cobra.Command{
	Use:   "validate [model]",
	Short: "Compare a model's documented columns with the live BigQuery schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModelValidate,
}

var modelFromSQLCmd = &cobra.Command{
	Use:   "from-sql <file>",
	Short: "Rewrite hard-coded table references in a SQL file to ref() and source()",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelFromSQL,
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelCreateCmd, modelFixCmd, modelLintCmd,
		modelMoveCmd, modelInspectCmd, modelValidateCmd, modelFromSQLCmd)

	modelMoveCmd.Flags().StringVar(&moveLayer, "layer", "", "destination layer")
	modelMoveCmd.Flags().StringVar(&moveDomain, "domain", "", "destination domain")
	modelMoveCmd.Flags().StringVar(&moveName, "name", "", "new name without layer prefix")
	modelMoveCmd.Flags().BoolVar(&moveUnsafe, "unsafe", false, "delete the old files instead of leaving a forwarding view")
}

func runModelCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}

	spec, err := promptModelSpec()
	if err != nil {
		return err
	}

	sqlPath, yamlPath, err := scaffold.CreateModel(cfg.Root(), spec)
	if err != nil {
		return err
	}
	ui.ShowSuccess("Created " + sqlPath)
	ui.ShowSuccess("Created " + yamlPath)

	return openEditor(sqlPath)
}

func promptModelSpec() (scaffold.ModelSpec, error) {
	var spec scaffold.ModelSpec

	layer, err := ui.Select("Layer", scaffold.LayerNames())
	if err != nil {
		return spec, err
	}
	spec.Layer = layer

	if spec.Domain, err = ui.InputRequired("Domain", "business domain folder, e.g. sales"); err != nil {
		return spec, err
	}
	if spec.Name, err = ui.InputRequired("Name", "model name without the layer prefix"); err != nil {
		return spec, err
	}
	if spec.Description, err = ui.Input("Description", "", ""); err != nil {
		return spec, err
	}
	if spec.Group, err = ui.Input("Group", "", "dbt group of the owning team"); err != nil {
		return spec, err
	}
	if spec.Group != "" {
		if spec.Access, err = ui.Select("Access", scaffold.AccessLevels); err != nil {
			return spec, err
		}
	}

	if layer == "staging" {
		ui.ShowInfo("Staging models are materialized as views")
	} else {
		materialized, err := ui.Select("Materialization", []string{"table", "view", "incremental", "ephemeral"})
		if err != nil {
			return spec, err
		}
		spec.Materialized = materialized

		if materialized == "incremental" {
			answer, err := ui.Input("Partition expiration (days, empty for none)", "", "")
			if err != nil {
				return spec, err
			}
			if answer != "" {
				days, err := strconv.Atoi(answer)
				if err != nil || days < 1 {
					return spec, errors.New(errors.ErrCodeInvalidInput,
						fmt.Sprintf("Invalid expiration %q: expected a positive number of days", answer))
				}
				spec.ExpirationDays = &days
			}
		}
	}

	frequency, err := ui.Select("Update frequency", []string{"daily", "hourly", "irregular"})
	if err != nil {
		return spec, err
	}
	spec.Tags = append(spec.Tags, frequency)

	tags, err := ui.Input("Extra tags (comma separated)", "", "")
	if err != nil {
		return spec, err
	}
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			spec.Tags = append(spec.Tags, tag)
		}
	}

	return spec, spec.Validate()
}

func openEditor(path string) error {
	editor := loadUserConfig().General.Editor
	if editor == "" {
		return nil
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		ui.ShowWarning(fmt.Sprintf("Could not open editor %q: %v", editor, err))
	}
	return nil
}

func stagedSQLFiles(cfg *config.ProjectConfig) ([]string, error) {
	staged, err := git.StagedFiles(cfg.Root())
	if err != nil {
		return nil, err
	}
	files := git.SQLFiles(staged)
	if len(files) == 0 {
		ui.ShowInfo("No SQL files with staged changes")
	}
	return files, nil
}

func runModelFix(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	files, err := formatTargets(cfg, args)
	if err != nil {
		return err
	}
	return scaffold.FormatFiles(cmd.Context(), cfg.Root(), files)
}

func runModelLint(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	files, err := formatTargets(cfg, args)
	if err != nil {
		return err
	}
	return scaffold.LintFiles(cmd.Context(), cfg.Root(), files)
}

// formatTargets resolves fix/lint arguments to SQL file paths: named models
// via the manifest, otherwise every staged SQL file.
func formatTargets(cfg *config.ProjectConfig, args []string) ([]string, error) {
	if len(args) == 0 {
		return stagedSQLFiles(cfg)
	}
	m, err := loadLocalManifest(cfg)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(args))
	for _, name := range args {
		node, ok := m.ModelByName(name)
		if !ok {
			return nil, errors.New(errors.ErrCodeModelNotFound,
				fmt.Sprintf("Model %s not found in the manifest", name))
		}
		files = append(files, filepath.Join("models", node.Path))
	}
	return files, nil
}

func runModelMove(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	m, err := loadLocalManifest(cfg)
	if err != nil {
		return err
	}

	oldName := args[0]
	node, ok := m.ModelByName(oldName)
	if !ok {
		return errors.New(errors.ErrCodeModelNotFound,
			fmt.Sprintf("Model %s not found in the manifest", oldName)).
			WithSuggestions("Run 'dbtkit manifest' if the model was created recently")
	}

	spec := scaffold.ModelSpec{Layer: moveLayer, Domain: moveDomain, Name: moveName}
	if spec.Layer == "" {
		if spec.Layer, err = ui.Select("Destination layer", scaffold.LayerNames()); err != nil {
			return err
		}
	}
	if spec.Domain == "" {
		if spec.Domain, err = ui.InputRequired("Destination domain", ""); err != nil {
			return err
		}
	}
	if spec.Name == "" {
		if spec.Name, err = ui.InputRequired("New name (without layer prefix)", ""); err != nil {
			return err
		}
	}

	err = scaffold.MoveModel(cfg.Root(), scaffold.MoveRequest{
		OldName: oldName,
		OldPath: filepath.Join("models", node.Path),
		Spec:    spec,
		Safe:    !moveUnsafe,
	})
	if err != nil {
		return err
	}

	ui.ShowSuccess(fmt.Sprintf("Moved %s to %s", oldName, spec.FullName()))
	if !moveUnsafe {
		ui.ShowInfo("The old model now forwards to the new one; remove it once consumers have migrated")
	}
	ui.ShowInfo("Run 'dbtkit manifest' to recompile")
	return nil
}

func runModelInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	m, err := loadLocalManifest(cfg)
	if err != nil {
		return err
	}

	name, err := pickModelArg(m, args)
	if err != nil {
		return err
	}
	node, ok := m.ModelByName(name)
	if !ok {
		return errors.New(errors.ErrCodeModelNotFound,
			fmt.Sprintf("Model %s not found in the manifest", name))
	}

	theme := loadUserConfig().Theme
	fmt.Print(ui.RenderModelInfo(node, m.UpstreamModels(name), m.DownstreamModels(name), theme))
	return nil
}

func runModelValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadProject()
	if err != nil {
		return err
	}
	m, err := loadLocalManifest(cfg)
	if err != nil {
		return err
	}

	name, err := pickModelArg(m, args)
	if err != nil {
		return err
	}
	node, ok := m.ModelByName(name)
	if !ok {
		return errors.New(errors.ErrCodeModelNotFound,
			fmt.Sprintf("Model %s not found in the manifest", name))
	}
	if !node.HasRelation {
		return errors.New(errors.ErrCodeTableUnsupported,
			fmt.Sprintf("Model %s has no relation in the warehouse", name))
	}

	yamlPath := cfg.Path("models", strings.TrimSuffix(node.Path, ".sql")+".yml")
	declared, err := scaffold.DeclaredColumns(yamlPath, name)
	if err != nil {
		return err
	}

	if err := ensureAuth(ctx); err != nil {
		return err
	}
	client, err := bigquery.NewClient(ctx, bigquery.Options{Project: node.Relation.Project})
	if err != nil {
		return err
	}
	defer client.Close()

	live, err := client.FetchColumns(ctx, node.Relation)
	if err != nil {
		return err
	}

	diff := scaffold.DiffColumns(declared, live)
	if diff.Clean() {
		ui.ShowSuccess(fmt.Sprintf("%s documentation matches the live schema", name))
		return nil
	}

	for _, col := range diff.Undocumented {
		ui.ShowWarning("Column not documented: " + col)
	}
	for _, col := range diff.Stale {
		ui.ShowWarning("Documented column missing from the table: " + col)
	}
	for _, col := range diff.MissingDescription {
		ui.ShowWarning("Column has no description: " + col)
	}

	if len(diff.Undocumented) == 0 && len(diff.Stale) == 0 {
		return errors.New(errors.ErrCodeValidationFailed,
			fmt.Sprintf("%s documentation does not match the live schema", name)).
			WithSuggestions("Fill in the missing descriptions in " + yamlPath)
	}

	added, removed, err := scaffold.PatchSchemaColumns(yamlPath, name, live)
	if err != nil {
		return err
	}
	for _, col := range added {
		ui.ShowInfo("Added column entry: " + col)
	}
	for _, col := range removed {
		ui.ShowInfo("Removed stale column entry: " + col)
	}
	ui.ShowSuccess("Updated " + yamlPath)
	if len(diff.MissingDescription) > 0 || len(added) > 0 {
		ui.ShowInfo("Fill in the column descriptions before committing")
	}
	return nil
}

func runModelFromSQL(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	m, err := loadLocalManifest(cfg)
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("Cannot read %s", path))
	}

	rewritten, missing := scaffold.NewRefRewriter(m).Rewrite(string(data))
	if err := os.WriteFile(path, []byte(rewritten), 0o644); err != nil {
		return err
	}

	ui.ShowSuccess("Rewrote table references in " + path)
	for _, relation := range missing {
		ui.ShowWarning("Unresolved reference: " + relation)
	}
	if len(missing) > 0 {
		ui.ShowInfo("Declare missing sources with 'dbtkit source create' and rerun")
	}
	return nil
}

// pickModelArg resolves the optional model argument, falling back to the
// interactive picker.
func pickModelArg(m *manifest.Manifest, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return ui.PickModel(m.ModelNames())
}
