package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dbtkit/internal/common"
	"dbtkit/pkg/errors"
)

// SourceSpec describes a source table to declare
type SourceSpec struct {
	SourceName  string
	Project     string
	Dataset     string
	Table       string
	Description string
}

type yamlSourceTable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type yamlSource struct {
	Name        string            `yaml:"name"`
	Database    string            `yaml:"database"`
	Schema      string            `yaml:"schema"`
	Description string            `yaml:"description,omitempty"`
	Tables      []yamlSourceTable `yaml:"tables"`
}

type yamlSourceFile struct {
	Version int          `yaml:"version"`
	Sources []yamlSource `yaml:"sources"`
}

// SourceFilePath returns where a source's declaration file lives
func SourceFilePath(root, sourceName string) string {
	return filepath.Join(root, "sources", sourceName+".yml")
}

// AddSource declares a source table, creating the source file when it does
// not exist yet and appending to it when it does. Re-declaring an existing
// table is an error.
func AddSource(root string, spec SourceSpec) (string, error) {
	if !namePattern.MatchString(spec.SourceName) {
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid source name %q: use lowercase letters, digits and underscores", spec.SourceName))
	}

	path := SourceFilePath(root, spec.SourceName)
	file := yamlSourceFile{Version: 2}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return "", errors.Wrap(err, errors.ErrCodeFileOperation,
				fmt.Sprintf("Failed to parse %s", path))
		}
	case os.IsNotExist(err):
		// First table of this source
	default:
		return "", err
	}

	idx := -1
	for i, src := range file.Sources {
		if src.Name == spec.SourceName {
			idx = i
			break
		}
	}
	if idx == -1 {
		file.Sources = append(file.Sources, yamlSource{
			Name:     spec.SourceName,
			Database: spec.Project,
			Schema:   spec.Dataset,
		})
		idx = len(file.Sources) - 1
	}

	for _, table := range file.Sources[idx].Tables {
		if table.Name == spec.Table {
			return "", errors.New(errors.ErrCodeFileExists,
				fmt.Sprintf("Source table %s.%s is already declared in %s", spec.SourceName, spec.Table, path))
		}
	}
	file.Sources[idx].Tables = append(file.Sources[idx].Tables, yamlSourceTable{
		Name:        spec.Table,
		Description: spec.Description,
	})

	out, err := yaml.Marshal(file)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionNormal); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, common.FilePermissionNormal); err != nil {
		return "", err
	}
	return path, nil
}
