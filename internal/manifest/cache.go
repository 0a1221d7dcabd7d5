package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"dbtkit/pkg/models"
)

// CachedModel is the subset of model metadata kept in the models cache for
// fast fuzzy selection without re-parsing the full manifest.
type CachedModel struct {
	UniqueID     string   `json:"unique_id"`
	Name         string   `json:"name"`
	Relation     string   `json:"relation_name"`
	Materialized string   `json:"materialized"`
	Path         string   `json:"path"`
	Tags         []string `json:"tags"`
	Group        string   `json:"group"`
	Description  string   `json:"description"`
	Deprecated   bool     `json:"deprecated"`
}

// WriteCache saves the models of a manifest to the cache file
func (m *Manifest) WriteCache(path string) error {
	cache := make(map[string]CachedModel, len(m.byName))
	for name, node := range m.Models() {
		entry := CachedModel{
			UniqueID:     node.UniqueID,
			Name:         name,
			Materialized: node.Materialized,
			Path:         node.Path,
			Tags:         node.Tags,
			Group:        node.Group,
			Description:  node.Description,
			Deprecated:   node.Deprecated,
		}
		if node.HasRelation {
			entry.Relation = node.Relation.String()
		}
		cache[name] = entry
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadCache loads the models cache file
func ReadCache(path string) (map[string]CachedModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache map[string]CachedModel
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// CacheStale reports whether the cache needs regenerating relative to the
// manifest it was built from.
func CacheStale(cachePath, manifestPath string) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return true
	}
	manifestInfo, err := os.Stat(manifestPath)
	if err != nil {
		return false
	}
	return cacheInfo.ModTime().Before(manifestInfo.ModTime())
}

// CachedNames returns the cached model names in layer order
func CachedNames(cache map[string]CachedModel) []string {
	names := make([]string, 0, len(cache))
	for name := range cache {
		names = append(names, name)
	}
	models.SortModelNames(names)
	return names
}
