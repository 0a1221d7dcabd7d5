package models

import (
	"fmt"
	"sort"
	"strings"
)

// NodeKind is the dbt resource type of a manifest node
type NodeKind string

const (
	KindModel  NodeKind = "model"
	KindSource NodeKind = "source"
	KindSeed   NodeKind = "seed"
)

// TableRef is a fully qualified physical table reference. It is the join key
// between manifest nodes and warehouse catalog entries.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// ParseTableRef parses a "project.dataset.table" reference, tolerating the
// backticks dbt puts around relation names.
func ParseTableRef(s string) (TableRef, error) {
	parts := strings.Split(strings.ReplaceAll(s, "`", ""), ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TableRef{}, fmt.Errorf("invalid table reference %q: want project.dataset.table", s)
	}
	return TableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
}

// String returns the project.dataset.table form
func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.Project, r.Dataset, r.Table)
}

// DatasetID returns the project.dataset prefix
func (r TableRef) DatasetID() string {
	return fmt.Sprintf("%s.%s", r.Project, r.Dataset)
}

// ManifestNode is a single entry of a parsed dbt manifest. Immutable once
// loaded; one parse per command invocation.
type ManifestNode struct {
	UniqueID        string
	Name            string
	Kind            NodeKind
	Relation        TableRef
	HasRelation     bool
	Materialized    string
	ExpirationDays  *int // declared partition_expiration_days, nil when unset
	Tags            []string
	Group           string
	Description     string
	Path            string
	ParentIDs       []string
	ChildIDs        []string
	Deprecated      bool
	SourceName      string // sources only
	SourceTableName string // sources only: the physical identifier
}

// IsPhysical reports whether the node has a materialized backing table.
// Ephemeral and view-only models are excluded from physical-table comparison.
func (n ManifestNode) IsPhysical() bool {
	switch n.Materialized {
	case "table", "incremental":
		return n.HasRelation
	default:
		return false
	}
}

// IsRelational reports whether the node materializes any relation at all,
// including views. Used for orphan detection, where views count.
func (n ManifestNode) IsRelational() bool {
	switch n.Materialized {
	case "table", "incremental", "view":
		return n.HasRelation
	default:
		return false
	}
}

// SortModelNames orders model names by dbt layer convention: staging first,
// then intermediate, then everything else.
func SortModelNames(names []string) {
	rank := func(name string) string {
		switch {
		case strings.HasPrefix(name, "stg_"):
			return "0_" + name
		case strings.HasPrefix(name, "int_"):
			return "1_" + name
		default:
			return "2_" + name
		}
	}
	sort.Slice(names, func(i, j int) bool { return rank(names[i]) < rank(names[j]) })
}
