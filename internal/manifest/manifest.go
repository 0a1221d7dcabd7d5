// Package manifest loads dbt's compiled manifest.json into an in-memory node
// index. One parse per command invocation; nothing is cached across runs
// except the on-disk files dbt and the state bucket already maintain.
package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"dbtkit/pkg/errors"
	"dbtkit/pkg/models"
)

// Manifest is a parsed dbt manifest
type Manifest struct {
	nodes     map[string]models.ManifestNode
	sources   map[string]models.ManifestNode
	parentMap map[string][]string
	childMap  map[string][]string
	vars      map[string]interface{}
	byName    map[string]string // model name -> unique id
}

type rawManifest struct {
	Metadata struct {
		Vars map[string]interface{} `json:"vars"`
	} `json:"metadata"`
	Nodes     map[string]rawNode  `json:"nodes"`
	Sources   map[string]rawNode  `json:"sources"`
	ParentMap map[string][]string `json:"parent_map"`
	ChildMap  map[string][]string `json:"child_map"`
}

type rawNode struct {
	ResourceType string   `json:"resource_type"`
	Name         string   `json:"name"`
	Alias        string   `json:"alias"`
	Database     string   `json:"database"`
	Schema       string   `json:"schema"`
	Path         string   `json:"path"`
	Tags         []string `json:"tags"`
	Group        string   `json:"group"`
	RelationName string   `json:"relation_name"`
	Description  string   `json:"description"`
	Identifier   string   `json:"identifier"`
	SourceName   string   `json:"source_name"`
	Config       struct {
		Materialized            string      `json:"materialized"`
		PartitionExpirationDays interface{} `json:"partition_expiration_days"`
	} `json:"config"`
}

// Load reads and parses a manifest file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeManifestNotFound,
				fmt.Sprintf("No manifest found at %s", path)).
				WithSuggestions("Run 'dbtkit manifest' to build it")
		}
		return nil, errors.ManifestError("Failed to read manifest", path, err)
	}
	return Parse(data, path)
}

// Parse decodes manifest JSON into the node index
func Parse(data []byte, path string) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeManifestParse,
			fmt.Sprintf("Failed to parse manifest at %s", path))
	}

	m := &Manifest{
		nodes:     make(map[string]models.ManifestNode, len(raw.Nodes)),
		sources:   make(map[string]models.ManifestNode, len(raw.Sources)),
		parentMap: raw.ParentMap,
		childMap:  raw.ChildMap,
		vars:      raw.Metadata.Vars,
		byName:    make(map[string]string),
	}

	for id, node := range raw.Nodes {
		kind := models.NodeKind(node.ResourceType)
		if kind != models.KindModel && kind != models.KindSeed {
			continue
		}
		converted := m.convert(id, node, kind)
		m.nodes[id] = converted
		if kind == models.KindModel {
			m.byName[converted.Name] = id
		}
	}
	for id, node := range raw.Sources {
		converted := m.convert(id, node, models.KindSource)
		converted.SourceName = node.SourceName
		converted.SourceTableName = node.Identifier
		m.sources[id] = converted
	}
	return m, nil
}

func (m *Manifest) convert(id string, node rawNode, kind models.NodeKind) models.ManifestNode {
	out := models.ManifestNode{
		UniqueID:     id,
		Name:         node.Name,
		Kind:         kind,
		Materialized: node.Config.Materialized,
		Tags:         node.Tags,
		Group:        node.Group,
		Description:  node.Description,
		Path:         node.Path,
		Deprecated:   strings.HasPrefix(strings.ToLower(node.Description), "deprecated"),
	}
	if ref, err := models.ParseTableRef(node.RelationName); err == nil {
		out.Relation = ref
		out.HasRelation = true
	}
	out.ExpirationDays = m.resolveExpiration(node.Config.PartitionExpirationDays)
	out.ParentIDs = m.modelIDs(m.parentMap[id])
	out.ChildIDs = m.modelIDs(m.childMap[id])
	return out
}

func (m *Manifest) modelIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if strings.HasPrefix(id, "model.") {
			out = append(out, id)
		}
	}
	return out
}

var varPattern = regexp.MustCompile(`{{\s*var\(\s*['"]([^'"]+)['"]\s*\)\s*}}`)

// resolveExpiration normalizes the partition_expiration_days config value,
// which may be a number or a "{{ var('...') }}" indirection resolved through
// the manifest metadata vars.
func (m *Manifest) resolveExpiration(value interface{}) *int {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		days := int(math.Round(v))
		return &days
	case int:
		return &v
	case string:
		match := varPattern.FindStringSubmatch(v)
		if match == nil {
			return nil
		}
		if resolved, ok := m.vars[match[1]]; ok {
			return m.resolveExpiration(resolved)
		}
		zero := 0
		return &zero
	default:
		return nil
	}
}

// Nodes returns every model and seed node keyed by unique id
func (m *Manifest) Nodes() map[string]models.ManifestNode { return m.nodes }

// Sources returns every source node keyed by unique id
func (m *Manifest) Sources() map[string]models.ManifestNode { return m.sources }

// Models returns model nodes keyed by model name
func (m *Manifest) Models() map[string]models.ManifestNode {
	out := make(map[string]models.ManifestNode, len(m.byName))
	for name, id := range m.byName {
		out[name] = m.nodes[id]
	}
	return out
}

// ModelByName looks a model up by its short name
func (m *Manifest) ModelByName(name string) (models.ManifestNode, bool) {
	id, ok := m.byName[name]
	if !ok {
		return models.ManifestNode{}, false
	}
	return m.nodes[id], true
}

// ModelNames returns all model names in layer order
func (m *Manifest) ModelNames() []string {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	models.SortModelNames(names)
	return names
}

// UpstreamModels returns the transitive ancestor model names of a model
func (m *Manifest) UpstreamModels(name string) []string {
	return m.traverse(name, func(id string) []string { return m.nodes[id].ParentIDs })
}

// DownstreamModels returns the transitive descendant model names of a model
func (m *Manifest) DownstreamModels(name string) []string {
	return m.traverse(name, func(id string) []string { return m.nodes[id].ChildIDs })
}

func (m *Manifest) traverse(name string, next func(string) []string) []string {
	id, ok := m.byName[name]
	if !ok {
		return nil
	}
	seen := map[string]bool{id: true}
	var names []string
	stack := next(id)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[current] {
			continue
		}
		seen[current] = true
		if node, ok := m.nodes[current]; ok {
			names = append(names, node.Name)
			stack = append(stack, next(current)...)
		}
	}
	models.SortModelNames(names)
	return names
}

var directSelectPattern = regexp.MustCompile(`[:+*, ]`)

// CanSelectDirectly reports whether a selector should be passed straight to
// dbt without interactive selection: either it matches an existing model name
// exactly, or it contains dbt selector syntax.
func (m *Manifest) CanSelectDirectly(selector string) bool {
	if _, ok := m.byName[selector]; ok {
		return true
	}
	return directSelectPattern.MatchString(selector)
}

// CanSelectDirectly is the name-list variant of the Manifest method, for
// callers working off the models cache instead of a parsed manifest.
func CanSelectDirectly(selector string, names []string) bool {
	for _, name := range names {
		if name == selector {
			return true
		}
	}
	return directSelectPattern.MatchString(selector)
}
