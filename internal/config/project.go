package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"dbtkit/pkg/errors"
)

// ProjectConfig holds the project-level settings read from the
// [tool.dbtkit.project] block of pyproject.toml at the dbt project root.
type ProjectConfig struct {
	root string

	// State bucket holding the last-published production manifest
	StateBucket        string `toml:"state_bucket"`
	StateBucketProject string `toml:"state_bucket_project"`

	// Service account used for production operations and backfill jobs
	ServiceAccount        string `toml:"service_account"`
	ServiceAccountProject string `toml:"service_account_project"`
	ServiceAccountRegion  string `toml:"service_account_region"`

	// Docker image running dbt inside Cloud Run backfill jobs
	DockerImage       string `toml:"docker_image"`
	DockerProfilesDir string `toml:"docker_profiles_dir"`

	// Projects from which production deletes are permitted
	EligibleDeleteProjects []string `toml:"eligible_delete_projects"`

	// Development project, the only place force-deletes are allowed
	DevProject string `toml:"dev_project"`
}

type pyproject struct {
	Tool struct {
		Dbtkit struct {
			Project ProjectConfig `toml:"project"`
		} `toml:"dbtkit"`
	} `toml:"tool"`
}

// LoadProject locates the project root by walking up from the working
// directory until a pyproject.toml is found, then parses the dbtkit block.
func LoadProject() (*ProjectConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := findProjectRoot(cwd)
	if err != nil {
		return nil, err
	}
	return LoadProjectFrom(root)
}

func findProjectRoot(start string) (string, error) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "pyproject.toml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.ErrCodeConfigNotFound,
				"No pyproject.toml found in current or upstream directories").
				WithSuggestions("Run dbtkit from inside your dbt project")
		}
		dir = parent
	}
}

// LoadProjectFrom parses the dbtkit block of the pyproject.toml in root
func LoadProjectFrom(root string) (*ProjectConfig, error) {
	path := filepath.Join(root, "pyproject.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound,
			fmt.Sprintf("Failed to read %s", path))
	}

	var parsed pyproject
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid,
			fmt.Sprintf("Failed to parse %s", path))
	}

	cfg := parsed.Tool.Dbtkit.Project
	cfg.root = root
	return &cfg, nil
}

// Root returns the project root directory
func (c *ProjectConfig) Root() string { return c.root }

// Path returns a path relative to the project root
func (c *ProjectConfig) Path(elem ...string) string {
	return filepath.Join(append([]string{c.root}, elem...)...)
}

// DotPath returns a path under the project's .dbtkit directory, creating the
// directory when missing.
func (c *ProjectConfig) DotPath(elem ...string) string {
	dot := filepath.Join(c.root, ".dbtkit")
	_ = os.MkdirAll(dot, 0o755)
	return filepath.Join(append([]string{dot}, elem...)...)
}

// Require returns the value of a named setting, or a configuration error with
// guidance when the key is missing or empty. Required settings abort the
// command once, at the point of first use.
func (c *ProjectConfig) Require(key string) (string, error) {
	value := map[string]string{
		"state_bucket":            c.StateBucket,
		"state_bucket_project":    c.StateBucketProject,
		"service_account":         c.ServiceAccount,
		"service_account_project": c.ServiceAccountProject,
		"service_account_region":  c.ServiceAccountRegion,
		"docker_image":            c.DockerImage,
		"docker_profiles_dir":     c.DockerProfilesDir,
		"dev_project":             c.DevProject,
	}[key]
	if value == "" {
		return "", errors.ConfigError(
			fmt.Sprintf("'%s' is missing from the [tool.dbtkit.project] block in pyproject.toml", key), key)
	}
	return value, nil
}
