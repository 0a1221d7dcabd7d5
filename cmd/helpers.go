package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"dbtkit/internal/config"
	"dbtkit/internal/dbt"
	"dbtkit/internal/gcp"
	"dbtkit/internal/git"
	"dbtkit/internal/manifest"
	"dbtkit/internal/ui"
	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

const (
	modelsCacheFile  = "models-cache.json"
	lastSelectFile   = "last_select.json"
	prodManifestFile = "prod-manifest.json"
)

func loadProject() (*config.ProjectConfig, error) {
	return config.LoadProject()
}

// loadUserConfig never fails the command; broken user config falls back to
// defaults with a warning. Viper-managed values (DBTKIT_* environment
// variables) override the stored settings.
func loadUserConfig() *config.UserConfig {
	cfg, err := config.LoadUser()
	if err != nil {
		ui.ShowWarning("Could not read user config, using defaults: " + err.Error())
		cfg = config.DefaultUserConfig()
	}
	applyViperOverrides(cfg)
	return cfg
}

// applyViperOverrides layers viper's view of the settings over the loaded
// config, so DBTKIT_GENERAL_AUTH_CHECK=false or DBTKIT_GENERAL_THEME=dark take
// effect for a single run without rewriting config.yaml.
func applyViperOverrides(cfg *config.UserConfig) {
	if viper.IsSet("general.editor") {
		cfg.General.Editor = viper.GetString("general.editor")
	}
	if viper.IsSet("general.auth_check") {
		cfg.General.AuthCheck = viper.GetBool("general.auth_check")
	}
	if viper.IsSet("model_info.formatter") {
		cfg.ModelInfo.Formatter = viper.GetString("model_info.formatter")
	}
	if theme := viper.GetString("general.theme"); theme != "" && theme != cfg.General.Theme {
		if err := cfg.ApplyTheme(theme); err != nil {
			ui.ShowWarning(err.Error())
		}
	}
}

func ensureAuth(ctx context.Context) error {
	return gcp.EnsureAuth(ctx, loadUserConfig().General.AuthCheck)
}

func localManifestPath(cfg *config.ProjectConfig) string {
	return cfg.Path("target", "manifest.json")
}

// loadLocalManifest parses the compiled dev manifest and refreshes the models
// cache when the manifest is newer.
func loadLocalManifest(cfg *config.ProjectConfig) (*manifest.Manifest, error) {
	path := localManifestPath(cfg)
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	cachePath := cfg.DotPath(modelsCacheFile)
	if manifest.CacheStale(cachePath, path) {
		if err := m.WriteCache(cachePath); err != nil {
			ui.ShowWarning("Could not refresh models cache: " + err.Error())
		}
	}
	return m, nil
}

// loadProdManifest fetches (or reuses) the last-published production manifest
// and parses it. Production reconciliation never trusts local compile output.
func loadProdManifest(ctx context.Context, cfg *config.ProjectConfig, force bool) (*manifest.Manifest, error) {
	bucket, err := cfg.Require("state_bucket")
	if err != nil {
		return nil, err
	}
	store, err := manifest.NewStateStore(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	dest := cfg.DotPath(prodManifestFile)
	if err := store.DownloadProdManifest(ctx, bucket, dest, force); err != nil {
		return nil, err
	}
	return manifest.Load(dest)
}

// modelNames returns the project's model names in layer order, served from
// the models cache when it is current so selection doesn't re-parse the full
// manifest on every run. A stale or unreadable cache falls back to the
// manifest, which also regenerates the cache.
func modelNames(cfg *config.ProjectConfig) ([]string, error) {
	cachePath := cfg.DotPath(modelsCacheFile)
	if !manifest.CacheStale(cachePath, localManifestPath(cfg)) {
		if cache, err := manifest.ReadCache(cachePath); err == nil && len(cache) > 0 {
			return manifest.CachedNames(cache), nil
		}
	}
	m, err := loadLocalManifest(cfg)
	if err != nil {
		return nil, err
	}
	return m.ModelNames(), nil
}

// resolveSelection turns command arguments into dbt selectors, falling back
// to interactive fuzzy selection when the arguments don't identify models
// directly.
func resolveSelection(cfg *config.ProjectConfig, args []string,
	upstream, downstream, workOnly, useLast bool) ([]string, error) {

	lastPath := cfg.DotPath(lastSelectFile)

	if useLast {
		if last := dbt.LoadLastSelection(lastPath); len(last) > 0 {
			return last, nil
		}
		ui.ShowWarning("No previous selection saved, picking interactively")
	}

	names, err := modelNames(cfg)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		selector := strings.Join(args, " ")
		if manifest.CanSelectDirectly(selector, names) {
			selected := decorateAll(args, upstream, downstream)
			_ = dbt.SaveLastSelection(lastPath, selected)
			return selected, nil
		}
		ui.ShowWarning("Selector does not match a model name, picking interactively")
	}

	if workOnly {
		names, err = workInProgressModels(cfg, names)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return nil, errors.New(errors.ErrCodeUserInput,
				"No models with staged changes found")
		}
	}

	picked, err := ui.PickModels(names)
	if err != nil {
		return nil, err
	}
	selected := decorateAll(picked, upstream, downstream)
	_ = dbt.SaveLastSelection(lastPath, selected)
	return selected, nil
}

func decorateAll(names []string, upstream, downstream bool) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = dbt.DecorateSelector(name, upstream, downstream)
	}
	return out
}

// workInProgressModels filters model names down to those whose SQL files have
// staged or unstaged local changes.
func workInProgressModels(cfg *config.ProjectConfig, names []string) ([]string, error) {
	staged, err := git.StagedFiles(cfg.Root())
	if err != nil {
		return nil, err
	}
	changed := make(map[string]bool)
	for _, path := range git.SQLFiles(staged) {
		if strings.HasPrefix(filepath.ToSlash(path), "models/") {
			changed[strings.TrimSuffix(filepath.Base(path), ".sql")] = true
		}
	}

	var out []string
	for _, name := range names {
		if changed[name] {
			out = append(out, name)
		}
	}
	return out, nil
}

func parseTargetFlag(value string) (models.Target, error) {
	target, err := models.ParseTarget(value)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidInput, err.Error())
	}
	return target, nil
}
