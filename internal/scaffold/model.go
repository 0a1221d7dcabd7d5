// Package scaffold creates and rearranges dbt project files: new models and
// sources, model moves, SQL-to-model conversion and schema validation. It
// only touches files under the project root and never talks to the warehouse
// directly.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"dbtkit/internal/common"
	"dbtkit/pkg/errors"
)

// Layer is a dbt model layer with its directory and name prefix
type Layer struct {
	Name   string
	Dir    string
	Prefix string
}

// Layers in dependency order. Staging models are always materialized as
// views; the warehouse copy of raw data lives in the source tables.
var Layers = []Layer{
	{Name: "staging", Dir: "staging", Prefix: "stg"},
	{Name: "intermediate", Dir: "intermediate", Prefix: "int"},
	{Name: "marts", Dir: "marts", Prefix: "mrt"},
	{Name: "bespoke", Dir: "bespoke", Prefix: "bsp"},
}

// LayerByName looks up a layer definition
func LayerByName(name string) (Layer, bool) {
	for _, l := range Layers {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

// LayerNames returns the selectable layer names in order
func LayerNames() []string {
	names := make([]string, len(Layers))
	for i, l := range Layers {
		names[i] = l.Name
	}
	return names
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// AccessLevels a model can declare, in increasing visibility
var AccessLevels = []string{"private", "protected", "public"}

// ModelSpec describes a model to create
type ModelSpec struct {
	Layer          string
	Domain         string
	Name           string
	Description    string
	Group          string
	Access         string
	Materialized   string
	ExpirationDays *int
	Tags           []string
}

// Validate checks the spec before any file is written
func (s ModelSpec) Validate() error {
	layer, ok := LayerByName(s.Layer)
	if !ok {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Unknown layer %q: must be one of %s", s.Layer, strings.Join(LayerNames(), ", ")))
	}
	if !namePattern.MatchString(s.Name) {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid model name %q: use lowercase letters, digits and underscores", s.Name))
	}
	if strings.HasPrefix(s.Name, layer.Prefix+"_") {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Model name %q should not repeat the %s_ prefix; it is added automatically", s.Name, layer.Prefix))
	}
	if !namePattern.MatchString(s.Domain) {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid domain %q: use lowercase letters, digits and underscores", s.Domain))
	}
	if s.Access != "" {
		valid := false
		for _, level := range AccessLevels {
			if s.Access == level {
				valid = true
				break
			}
		}
		if !valid {
			return errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("Unknown access level %q: must be one of %s", s.Access, strings.Join(AccessLevels, ", ")))
		}
	}
	return nil
}

// FullName returns the prefixed model name
func (s ModelSpec) FullName() string {
	layer, _ := LayerByName(s.Layer)
	return fmt.Sprintf("%s_%s", layer.Prefix, s.Name)
}

// RelPath returns the model's path relative to the project root, without
// extension.
func (s ModelSpec) RelPath() string {
	layer, _ := LayerByName(s.Layer)
	return filepath.Join("models", layer.Dir, s.Domain, s.FullName())
}

// materialization returns the effective materialization for the spec
func (s ModelSpec) materialization() string {
	if s.Layer == "staging" {
		return "view"
	}
	if s.Materialized == "" {
		return "table"
	}
	return s.Materialized
}

// SQLContent renders the initial SQL file body
func (s ModelSpec) SQLContent() string {
	var buf strings.Builder
	buf.WriteString("{{\n    config(\n")
	fmt.Fprintf(&buf, "        materialized='%s',\n", s.materialization())
	if s.ExpirationDays != nil && s.materialization() == "incremental" {
		fmt.Fprintf(&buf, "        partition_expiration_days=%d,\n", *s.ExpirationDays)
	}
	buf.WriteString("    )\n}}\n\nselect 1 as placeholder\n")
	return buf.String()
}

// yamlModel is the schema file rendering of one model
type yamlModel struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Group       string              `yaml:"group,omitempty"`
	Access      string              `yaml:"access,omitempty"`
	Config      *yamlModelConfig    `yaml:"config,omitempty"`
	Columns     []map[string]string `yaml:"columns,omitempty"`
}

type yamlModelConfig struct {
	Tags []string `yaml:"tags,omitempty"`
}

type yamlSchema struct {
	Version int         `yaml:"version"`
	Models  []yamlModel `yaml:"models"`
}

// YAMLContent renders the initial schema file body
func (s ModelSpec) YAMLContent() (string, error) {
	schema := yamlSchema{
		Version: 2,
		Models: []yamlModel{{
			Name:        s.FullName(),
			Description: s.Description,
			Group:       s.Group,
			Access:      s.Access,
		}},
	}
	if len(s.Tags) > 0 {
		schema.Models[0].Config = &yamlModelConfig{Tags: s.Tags}
	}
	data, err := yaml.Marshal(schema)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CreateModel writes the SQL and YAML files for a new model under root.
// Existing files are never overwritten.
func CreateModel(root string, spec ModelSpec) (sqlPath string, yamlPath string, err error) {
	if err := spec.Validate(); err != nil {
		return "", "", err
	}

	base := filepath.Join(root, spec.RelPath())
	sqlPath = base + ".sql"
	yamlPath = base + ".yml"

	for _, path := range []string{sqlPath, yamlPath} {
		if _, err := os.Stat(path); err == nil {
			return "", "", errors.New(errors.ErrCodeFileExists,
				fmt.Sprintf("%s already exists", path))
		}
	}
	if err := os.MkdirAll(filepath.Dir(base), common.DirPermissionNormal); err != nil {
		return "", "", err
	}

	yamlContent, err := spec.YAMLContent()
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(sqlPath, []byte(spec.SQLContent()), common.FilePermissionNormal); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(yamlPath, []byte(yamlContent), common.FilePermissionNormal); err != nil {
		return "", "", err
	}
	return sqlPath, yamlPath, nil
}
