package scaffold

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"dbtkit/internal/bigquery"
	"dbtkit/internal/common"
	"dbtkit/pkg/errors"
)

// DeclaredColumn is one column documented in a model's schema file
type DeclaredColumn struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type schemaFileModel struct {
	Name    string           `yaml:"name"`
	Columns []DeclaredColumn `yaml:"columns"`
}

type schemaFile struct {
	Models []schemaFileModel `yaml:"models"`
}

// DeclaredColumns reads the documented columns of a model from its schema file
func DeclaredColumns(path, modelName string) ([]DeclaredColumn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("Cannot read schema file %s", path))
	}
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("Failed to parse %s", path))
	}
	for _, model := range file.Models {
		if model.Name == modelName {
			return model.Columns, nil
		}
	}
	return nil, errors.New(errors.ErrCodeFileOperation,
		fmt.Sprintf("Model %s is not declared in %s", modelName, path))
}

// SchemaDiff is the result of comparing documented columns against the live
// table schema.
type SchemaDiff struct {
	// Undocumented columns exist in the table but not in the schema file
	Undocumented []string
	// Stale columns are documented but no longer exist in the table
	Stale []string
	// MissingDescription columns are documented with an empty description
	MissingDescription []string
}

// Clean reports whether documentation and table agree
func (d SchemaDiff) Clean() bool {
	return len(d.Undocumented) == 0 && len(d.Stale) == 0 && len(d.MissingDescription) == 0
}

// PatchSchemaColumns reconciles a model's documented columns with the live
// table schema: undocumented columns are appended with the table's own
// description when it has one, documented columns that no longer exist are
// removed. Existing column entries are kept as-is so tests, meta blocks and
// comments survive. Returns the added and removed column names.
func PatchSchemaColumns(path, modelName string, live []bigquery.Column) (added, removed []string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeFileNotFound,
			fmt.Sprintf("Cannot read schema file %s", path))
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("Failed to parse %s", path))
	}

	model := findModelNode(&doc, modelName)
	if model == nil {
		return nil, nil, errors.New(errors.ErrCodeFileOperation,
			fmt.Sprintf("Model %s is not declared in %s", modelName, path))
	}

	columns := mappingValue(model, "columns")
	if columns == nil {
		columns = &yaml.Node{Kind: yaml.SequenceNode}
		model.Content = append(model.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "columns"}, columns)
	}

	liveNames := make(map[string]bool, len(live))
	for _, col := range live {
		liveNames[col.Name] = true
	}

	var kept []*yaml.Node
	declared := make(map[string]bool, len(columns.Content))
	for _, entry := range columns.Content {
		name := scalarValue(entry, "name")
		declared[name] = true
		if liveNames[name] {
			kept = append(kept, entry)
		} else {
			removed = append(removed, name)
		}
	}
	for _, col := range live {
		if declared[col.Name] {
			continue
		}
		kept = append(kept, columnNode(col))
		added = append(added, col.Name)
	}
	columns.Content = kept

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(path, out, common.FilePermissionNormal); err != nil {
		return nil, nil, err
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed, nil
}

// findModelNode locates the mapping node of the named model in a schema file
func findModelNode(doc *yaml.Node, modelName string) *yaml.Node {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	models := mappingValue(doc.Content[0], "models")
	if models == nil {
		return nil
	}
	for _, model := range models.Content {
		if scalarValue(model, "name") == modelName {
			return model
		}
	}
	return nil
}

// mappingValue returns the value node of a key in a mapping node
func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// scalarValue returns the scalar value of a key in a mapping node
func scalarValue(mapping *yaml.Node, key string) string {
	if node := mappingValue(mapping, key); node != nil {
		return node.Value
	}
	return ""
}

// columnNode builds the YAML entry for a newly documented column
func columnNode(col bigquery.Column) *yaml.Node {
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "name"},
			{Kind: yaml.ScalarNode, Value: col.Name},
			{Kind: yaml.ScalarNode, Value: "description"},
			{Kind: yaml.ScalarNode, Value: col.Description},
		},
	}
}

// DiffColumns compares documented columns against the live schema
func DiffColumns(declared []DeclaredColumn, live []bigquery.Column) SchemaDiff {
	declaredByName := make(map[string]DeclaredColumn, len(declared))
	for _, col := range declared {
		declaredByName[col.Name] = col
	}
	liveNames := make(map[string]bool, len(live))
	for _, col := range live {
		liveNames[col.Name] = true
	}

	var diff SchemaDiff
	for _, col := range live {
		if _, ok := declaredByName[col.Name]; !ok {
			diff.Undocumented = append(diff.Undocumented, col.Name)
		}
	}
	for _, col := range declared {
		if !liveNames[col.Name] {
			diff.Stale = append(diff.Stale, col.Name)
		} else if col.Description == "" {
			diff.MissingDescription = append(diff.MissingDescription, col.Name)
		}
	}
	sort.Strings(diff.Undocumented)
	sort.Strings(diff.Stale)
	sort.Strings(diff.MissingDescription)
	return diff
}
