package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtkit/internal/backfill"
	"dbtkit/internal/config"
	"dbtkit/pkg/models"
)

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"build", "test", "freshness", "manifest", "backfill",
		"config", "model", "source", "admin", "version",
	} {
		assert.True(t, names[want], "command %s not registered", want)
	}
}

func TestModelSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range modelCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"create", "fix", "lint", "move", "inspect", "validate", "from-sql"} {
		assert.True(t, names[want], "model subcommand %s not registered", want)
	}
}

func TestAdminSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range adminCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"cleandev", "orphaned", "partition-expiry", "restore"} {
		assert.True(t, names[want], "admin subcommand %s not registered", want)
	}
}

func TestIntervalVars(t *testing.T) {
	vars, err := intervalVars("", 1, false)
	require.NoError(t, err)
	assert.Nil(t, vars)

	vars, err = intervalVars("2024-05-01", 1, false)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", vars["data_interval_start"])
	assert.Equal(t, "2024-05-02", vars["data_interval_end"])

	vars, err = intervalVars("2024-05-01", 7, false)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-08", vars["data_interval_end"])

	_, err = intervalVars("01.05.2024", 1, false)
	assert.Error(t, err)
}

func TestIntervalVarsTaskIndexOffset(t *testing.T) {
	t.Setenv("CLOUD_RUN_TASK_INDEX", "3")
	vars, err := intervalVars("2024-05-01", 5, true)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-16", vars["data_interval_start"])
	assert.Equal(t, "2024-05-21", vars["data_interval_end"])

	t.Setenv("CLOUD_RUN_TASK_INDEX", "")
	_, err = intervalVars("2024-05-01", 5, true)
	assert.Error(t, err)
}

func TestDecorateAll(t *testing.T) {
	assert.Equal(t, []string{"+a+", "+b+"}, decorateAll([]string{"a", "b"}, true, true))
	assert.Equal(t, []string{"a"}, decorateAll([]string{"a"}, false, false))
}

func TestDeleteAllowed(t *testing.T) {
	cfg := &config.ProjectConfig{
		DevProject:             "acme-dev",
		EligibleDeleteProjects: []string{"acme-dwh-staging"},
	}
	assert.True(t, deleteAllowed(cfg, "acme-dev"))
	assert.True(t, deleteAllowed(cfg, "acme-dwh-staging"))
	assert.False(t, deleteAllowed(cfg, "acme-dwh-prod"))
}

func TestParseDate(t *testing.T) {
	_, err := parseDate("2024-05-01", "start-date")
	assert.NoError(t, err)
	_, err = parseDate("yesterday", "start-date")
	assert.Error(t, err)
}

func TestBackfillTaskArgsParseAsBuild(t *testing.T) {
	spec := backfill.JobSpec{
		Selector:  "+mrt_orders",
		Target:    models.TargetProd,
		StartDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		BatchDays: 5,
	}

	// The container entrypoint feeds these args straight back into this CLI;
	// they must resolve to the build command and parse cleanly.
	cmd, flags, err := rootCmd.Find(spec.Args())
	require.NoError(t, err)
	require.Equal(t, "build", cmd.Name())
	require.NoError(t, cmd.ParseFlags(flags))

	assert.Equal(t, []string{"+mrt_orders"}, cmd.Flags().Args())
	assert.Equal(t, "prod", cmd.Flags().Lookup("target").Value.String())
	assert.Equal(t, "2024-05-01", cmd.Flags().Lookup("date").Value.String())
	assert.Equal(t, "5", cmd.Flags().Lookup("batch-days").Value.String())
	assert.Equal(t, "true", cmd.Flags().Lookup("use-task-index").Value.String())

	spec.FullRefresh = true
	cmd, flags, err = rootCmd.Find(spec.Args())
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(flags))
	assert.Equal(t, "true", cmd.Flags().Lookup("full-refresh").Value.String())
	assert.Equal(t, []string{"+mrt_orders"}, cmd.Flags().Args())
}

func TestEnvOverridesUserConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("DBTKIT_CONFIG", t.TempDir())
	t.Setenv("DBTKIT_GENERAL_EDITOR", "vim")
	t.Setenv("DBTKIT_GENERAL_AUTH_CHECK", "false")
	t.Setenv("DBTKIT_GENERAL_THEME", "dark")
	initConfig()

	cfg := loadUserConfig()
	assert.Equal(t, "vim", cfg.General.Editor)
	assert.False(t, cfg.General.AuthCheck)
	assert.True(t, cfg.DarkMode())
}

func TestModelNamesPrefersFreshCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"),
		[]byte("[tool.dbtkit.project]\n"), 0o644))
	cfg, err := config.LoadProjectFrom(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0o755))
	// Unparseable on purpose: with a current cache the manifest is never read.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "manifest.json"),
		[]byte("{not json"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".dbtkit"), 0o755))
	cachePath := cfg.DotPath(modelsCacheFile)
	cache := `{"stg_orders":{"name":"stg_orders"},"mrt_orders":{"name":"mrt_orders"}}`
	require.NoError(t, os.WriteFile(cachePath, []byte(cache), 0o644))
	fresh := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(cachePath, fresh, fresh))

	names, err := modelNames(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"stg_orders", "mrt_orders"}, names)
}

func TestModelNamesStaleCacheFallsBackToManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"),
		[]byte("[tool.dbtkit.project]\n"), 0o644))
	cfg, err := config.LoadProjectFrom(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0o755))
	manifestJSON := `{"metadata": {}, "nodes": {
		"model.analytics.stg_orders": {
			"resource_type": "model", "name": "stg_orders",
			"path": "staging/sales/stg_orders.sql",
			"config": {"materialized": "view"}
		}
	}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "manifest.json"),
		[]byte(manifestJSON), 0o644))

	names, err := modelNames(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"stg_orders"}, names)

	// The fallback parse regenerates the cache for the next run.
	_, err = os.Stat(cfg.DotPath(modelsCacheFile))
	assert.NoError(t, err)
}

func TestExcludeFlagWiredIntoInvocation(t *testing.T) {
	require.NoError(t, buildCmd.ParseFlags([]string{"--exclude", "stg_orders,int_orders"}))
	assert.Equal(t, []string{"stg_orders", "int_orders"}, buildExclude)

	require.NoError(t, testCmd.ParseFlags([]string{"-x", "mrt_orders"}))
	assert.Equal(t, []string{"mrt_orders"}, testExclude)
}
