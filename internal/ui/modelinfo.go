package ui

import (
	"fmt"
	"strings"

	"dbtkit/internal/config"
	"dbtkit/pkg/models"
)

// RenderModelInfo formats a model's details for terminal display, colored by
// the active theme palette.
func RenderModelInfo(node models.ManifestNode, upstream, downstream []string, theme config.Theme) string {
	var buf strings.Builder

	name := Color256(theme.Name, node.Name)
	if node.Deprecated {
		name += " " + Color256(theme.Deprecated, "[DEPRECATED]")
	}
	fmt.Fprintln(&buf, name)
	fmt.Fprintf(&buf, "  %-14s %s\n", "path:", Color256(theme.Path, node.Path))

	if node.HasRelation {
		fmt.Fprintf(&buf, "  %-14s %s\n", "relation:", Color256(theme.Path, node.Relation.String()))
	}
	fmt.Fprintf(&buf, "  %-14s %s\n", "materialized:", Color256(theme.Materialized, node.Materialized))
	if node.ExpirationDays != nil {
		fmt.Fprintf(&buf, "  %-14s %s\n", "expiration:", Color256(theme.Materialized, fmt.Sprintf("%d days", *node.ExpirationDays)))
	}
	if len(node.Tags) > 0 {
		fmt.Fprintf(&buf, "  %-14s %s\n", "tags:", Color256(theme.Tags, strings.Join(node.Tags, ", ")))
	}
	if node.Group != "" {
		fmt.Fprintf(&buf, "  %-14s %s\n", "group:", Color256(theme.Group, node.Group))
	}
	if len(upstream) > 0 {
		fmt.Fprintf(&buf, "  %-14s %s\n", "upstream:", joinByLayer(upstream, theme))
	}
	if len(downstream) > 0 {
		fmt.Fprintf(&buf, "  %-14s %s\n", "downstream:", joinByLayer(downstream, theme))
	}
	if node.Description != "" {
		fmt.Fprintf(&buf, "  %-14s %s\n", "description:", Color256(theme.Description, node.Description))
	}
	return buf.String()
}

// joinByLayer colors each dependency name by its layer prefix
func joinByLayer(names []string, theme config.Theme) string {
	colored := make([]string, len(names))
	for i, name := range names {
		colored[i] = Color256(layerColor(name, theme), name)
	}
	return strings.Join(colored, ", ")
}

func layerColor(name string, theme config.Theme) int {
	switch {
	case strings.HasPrefix(name, "stg_"):
		return theme.DepStg
	case strings.HasPrefix(name, "int_"):
		return theme.DepInt
	default:
		return theme.DepMart
	}
}
