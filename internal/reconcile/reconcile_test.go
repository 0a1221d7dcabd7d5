package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtkit/pkg/models"
)

func intPtr(v int) *int { return &v }

func modelNode(name, materialized string, expiration *int) models.ManifestNode {
	return models.ManifestNode{
		UniqueID:       "model.analytics." + name,
		Name:           name,
		Kind:           models.KindModel,
		Relation:       models.TableRef{Project: "acme-dwh", Dataset: "marts", Table: name},
		HasRelation:    true,
		Materialized:   materialized,
		ExpirationDays: expiration,
	}
}

func entry(table string, typ models.TableType, expiration *int) models.CatalogEntry {
	return models.CatalogEntry{
		Ref:            models.TableRef{Project: "acme-dwh", Dataset: "marts", Table: table},
		Type:           typ,
		ExpirationDays: expiration,
	}
}

func TestReconcileClassification(t *testing.T) {
	// manifest {A: 30, B: none} and catalog {A: 30, B: 45, C: present}
	nodes := map[string]models.ManifestNode{
		"model.analytics.a": modelNode("a", "incremental", intPtr(30)),
		"model.analytics.b": modelNode("b", "table", nil),
	}
	catalog := []models.CatalogEntry{
		entry("a", models.TypeTable, intPtr(30)),
		entry("b", models.TypeTable, intPtr(45)),
		entry("c", models.TypeTable, nil),
	}

	results := Reconcile(nodes, catalog)
	require.Len(t, results, 3)

	byTable := map[string]models.ReconciliationState{}
	for _, r := range results {
		byTable[r.Ref.Table] = r.State
	}
	assert.Equal(t, models.StateInSync, byTable["a"])
	assert.Equal(t, models.StateMismatched, byTable["b"])
	assert.Equal(t, models.StateOrphaned, byTable["c"])
}

func TestCatalogOnlyIsAlwaysOrphaned(t *testing.T) {
	nodes := map[string]models.ManifestNode{
		"model.analytics.kept": modelNode("kept", "table", nil),
	}
	catalog := []models.CatalogEntry{
		entry("kept", models.TypeTable, nil),
		entry("stray_one", models.TypeTable, nil),
		entry("stray_two", models.TypeView, intPtr(7)),
	}

	results := Reconcile(nodes, catalog)
	orphans := Orphaned(results)
	require.Len(t, orphans, 2)
	for _, o := range orphans {
		assert.Nil(t, o.Node)
	}
	// The declared table is never reported as orphaned.
	for _, r := range results {
		if r.Ref.Table == "kept" {
			assert.Equal(t, models.StateInSync, r.State)
		}
	}
}

func TestEmptyManifestDatasetMakesNoOrphanClaims(t *testing.T) {
	nodes := map[string]models.ManifestNode{
		"model.analytics.other": {
			UniqueID:     "model.analytics.other",
			Name:         "other",
			Kind:         models.KindModel,
			Relation:     models.TableRef{Project: "acme-dwh", Dataset: "staging", Table: "other"},
			HasRelation:  true,
			Materialized: "view",
		},
	}
	// Catalog entries from a dataset the manifest says nothing about.
	catalog := []models.CatalogEntry{
		entry("legacy_table", models.TypeTable, nil),
	}

	results := Reconcile(nodes, catalog)
	assert.Empty(t, results)
}

func TestEqualExpirationIsInSync(t *testing.T) {
	tests := []struct {
		name     string
		declared *int
		observed *int
		want     models.ReconciliationState
	}{
		{"both set equal", intPtr(30), intPtr(30), models.StateInSync},
		{"both unset", nil, nil, models.StateInSync},
		{"declared only", intPtr(30), nil, models.StateMismatched},
		{"observed only", nil, intPtr(30), models.StateMismatched},
		{"both set different", intPtr(30), intPtr(31), models.StateMismatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := map[string]models.ManifestNode{
				"model.analytics.m": modelNode("m", "incremental", tt.declared),
			}
			catalog := []models.CatalogEntry{entry("m", models.TypeTable, tt.observed)}
			results := Reconcile(nodes, catalog)
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].State)
		})
	}
}

func TestViewModelsExcludedFromExpiryComparison(t *testing.T) {
	nodes := map[string]models.ManifestNode{
		"model.analytics.v": modelNode("v", "view", intPtr(30)),
	}
	catalog := []models.CatalogEntry{entry("v", models.TypeView, nil)}

	results := Reconcile(nodes, catalog)
	require.Len(t, results, 1)
	assert.Equal(t, models.StateInSync, results[0].State)
}

func TestEphemeralModelsHaveNoPhysicalPresence(t *testing.T) {
	eph := modelNode("calc", "ephemeral", nil)
	eph.HasRelation = false
	nodes := map[string]models.ManifestNode{"model.analytics.calc": eph}
	catalog := []models.CatalogEntry{entry("calc", models.TypeTable, nil)}

	// Without any relational node in the dataset, nothing is claimed.
	results := Reconcile(nodes, catalog)
	assert.Empty(t, results)
}

func TestTransientArtifactsIgnored(t *testing.T) {
	nodes := map[string]models.ManifestNode{
		"model.analytics.m": modelNode("m", "table", nil),
	}
	catalog := []models.CatalogEntry{
		entry("m", models.TypeTable, nil),
		entry("m__dbt_tmp_20240101", models.TypeTable, nil),
	}

	results := Reconcile(nodes, catalog)
	require.Len(t, results, 1)
	assert.Equal(t, "m", results[0].Ref.Table)
}

func TestReconcileIsIdempotent(t *testing.T) {
	nodes := map[string]models.ManifestNode{
		"model.analytics.a": modelNode("a", "incremental", intPtr(30)),
		"model.analytics.b": modelNode("b", "table", nil),
	}
	catalog := []models.CatalogEntry{
		entry("b", models.TypeTable, intPtr(45)),
		entry("c", models.TypeTable, nil),
		entry("a", models.TypeTable, intPtr(30)),
	}

	first := Reconcile(nodes, catalog)
	second := Reconcile(nodes, catalog)
	assert.Equal(t, first, second)

	// Output ordering is deterministic regardless of catalog order.
	var refs []string
	for _, r := range first {
		refs = append(refs, r.Ref.String())
	}
	assert.IsNonDecreasing(t, refs)
}
