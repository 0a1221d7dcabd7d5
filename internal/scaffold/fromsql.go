package scaffold

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"dbtkit/internal/manifest"
)

// relationPattern matches fully qualified BigQuery table references in SQL,
// with or without backticks around the whole reference or its parts.
var relationPattern = regexp.MustCompile(
	"`[\\w-]+\\.[\\w$]+\\.[\\w$]+`" + `|` +
		"`?[A-Za-z][\\w-]*`?\\.`?[\\w$]+`?\\.`?[\\w$]+`?")

type sourceKey struct {
	Source string
	Table  string
}

// RefRewriter replaces hard-coded table references in SQL with dbt ref() and
// source() calls, based on the relations the manifest knows about.
type RefRewriter struct {
	modelsByRelation  map[string]string
	sourcesByRelation map[string]sourceKey
}

// NewRefRewriter indexes the manifest's relations for rewriting
func NewRefRewriter(m *manifest.Manifest) *RefRewriter {
	r := &RefRewriter{
		modelsByRelation:  make(map[string]string),
		sourcesByRelation: make(map[string]sourceKey),
	}
	for name, node := range m.Models() {
		if node.HasRelation {
			r.modelsByRelation[node.Relation.String()] = name
		}
	}
	for _, node := range m.Sources() {
		if node.HasRelation {
			r.sourcesByRelation[node.Relation.String()] = sourceKey{
				Source: node.SourceName,
				Table:  node.SourceTableName,
			}
		}
	}
	return r
}

// Rewrite replaces every known relation in the SQL and reports the distinct
// relations it could not resolve, sorted.
func (r *RefRewriter) Rewrite(sql string) (string, []string) {
	unresolved := make(map[string]bool)

	out := relationPattern.ReplaceAllStringFunc(sql, func(match string) string {
		relation := strings.ReplaceAll(match, "`", "")
		if name, ok := r.modelsByRelation[relation]; ok {
			return fmt.Sprintf("{{ ref('%s') }}", name)
		}
		if src, ok := r.sourcesByRelation[relation]; ok {
			return fmt.Sprintf("{{ source('%s', '%s') }}", src.Source, src.Table)
		}
		unresolved[relation] = true
		return match
	})

	missing := make([]string, 0, len(unresolved))
	for relation := range unresolved {
		missing = append(missing, relation)
	}
	sort.Strings(missing)
	return out, missing
}
