// Package reconcile compares dbt manifest nodes against the live BigQuery
// catalog. It is a pure set-difference over already-parsed inputs: a
// reference present in the catalog but absent from the manifest is always
// orphaned, never heuristically matched.
package reconcile

import (
	"sort"
	"strings"

	"dbtkit/pkg/models"
)

// Reconcile classifies every physical reference found in the manifest or the
// catalog. The same inputs always yield the same output in the same order.
//
// Classification rules:
//   - catalog-only reference: orphaned, but only in datasets where the
//     manifest declares at least one relation (an empty manifest set for a
//     dataset makes no orphan claims)
//   - present in both: mismatched when partition expirations differ, where a
//     nil on one side and a value on the other counts as a difference;
//     otherwise in-sync
//   - manifest-only references are not reported; the tool never deletes or
//     patches something it cannot observe
//
// Ephemeral and view-only models carry no materialized backing and are
// excluded from the expiration comparison, though views still anchor orphan
// detection for their dataset.
func Reconcile(nodes map[string]models.ManifestNode, catalog []models.CatalogEntry) []models.ReconciliationResult {
	byRef := make(map[models.TableRef]models.ManifestNode)
	declaredDatasets := make(map[string]bool)
	for _, node := range nodes {
		if node.Kind != models.KindModel || !node.IsRelational() {
			continue
		}
		byRef[node.Relation] = node
		declaredDatasets[node.Relation.DatasetID()] = true
	}

	results := make([]models.ReconciliationResult, 0, len(catalog))
	for _, entry := range catalog {
		if isTransient(entry.Ref.Table) {
			continue
		}
		node, declared := byRef[entry.Ref]
		if !declared {
			if declaredDatasets[entry.Ref.DatasetID()] {
				results = append(results, models.ReconciliationResult{
					Ref:      entry.Ref,
					State:    models.StateOrphaned,
					Type:     entry.Type,
					Observed: entry.ExpirationDays,
				})
			}
			continue
		}

		result := models.ReconciliationResult{
			Ref:      entry.Ref,
			Type:     entry.Type,
			Declared: node.ExpirationDays,
			Observed: entry.ExpirationDays,
			Node:     &node,
		}
		if node.IsPhysical() && !equalExpiration(node.ExpirationDays, entry.ExpirationDays) {
			result.State = models.StateMismatched
		} else {
			result.State = models.StateInSync
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Ref.String() < results[j].Ref.String()
	})
	return results
}

// Orphaned filters the orphaned subset of a reconciliation
func Orphaned(results []models.ReconciliationResult) []models.ReconciliationResult {
	return filter(results, models.StateOrphaned)
}

// Mismatched filters the mismatched subset of a reconciliation
func Mismatched(results []models.ReconciliationResult) []models.ReconciliationResult {
	return filter(results, models.StateMismatched)
}

func filter(results []models.ReconciliationResult, state models.ReconciliationState) []models.ReconciliationResult {
	var out []models.ReconciliationResult
	for _, r := range results {
		if r.State == state {
			out = append(out, r)
		}
	}
	return out
}

func equalExpiration(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// isTransient filters dbt's temporary build artifacts out of the catalog view
func isTransient(table string) bool {
	return strings.Contains(table, "__dbt_tmp")
}
