package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtkit/internal/bigquery"
	"dbtkit/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestModelSpecValidate(t *testing.T) {
	valid := ModelSpec{Layer: "marts", Domain: "sales", Name: "orders"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		spec ModelSpec
	}{
		{"unknown layer", ModelSpec{Layer: "gold", Domain: "sales", Name: "orders"}},
		{"uppercase name", ModelSpec{Layer: "marts", Domain: "sales", Name: "Orders"}},
		{"repeated prefix", ModelSpec{Layer: "marts", Domain: "sales", Name: "mrt_orders"}},
		{"bad domain", ModelSpec{Layer: "marts", Domain: "Sales!", Name: "orders"}},
		{"bad access", ModelSpec{Layer: "marts", Domain: "sales", Name: "orders", Access: "internal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
		})
	}
}

func TestModelSpecNaming(t *testing.T) {
	spec := ModelSpec{Layer: "staging", Domain: "sales", Name: "orders"}
	assert.Equal(t, "stg_orders", spec.FullName())
	assert.Equal(t, filepath.Join("models", "staging", "sales", "stg_orders"), spec.RelPath())

	mart := ModelSpec{Layer: "marts", Domain: "sales", Name: "orders"}
	assert.Equal(t, "mrt_orders", mart.FullName())
}

func TestStagingForcedToView(t *testing.T) {
	spec := ModelSpec{Layer: "staging", Domain: "sales", Name: "orders", Materialized: "table"}
	assert.Contains(t, spec.SQLContent(), "materialized='view'")
}

func TestIncrementalModelGetsExpiration(t *testing.T) {
	spec := ModelSpec{
		Layer: "marts", Domain: "sales", Name: "orders",
		Materialized: "incremental", ExpirationDays: intPtr(30),
	}
	sql := spec.SQLContent()
	assert.Contains(t, sql, "materialized='incremental'")
	assert.Contains(t, sql, "partition_expiration_days=30")

	// Expiration only applies to incremental tables.
	view := ModelSpec{
		Layer: "marts", Domain: "sales", Name: "orders",
		Materialized: "view", ExpirationDays: intPtr(30),
	}
	assert.NotContains(t, view.SQLContent(), "partition_expiration_days")
}

func TestCreateModel(t *testing.T) {
	root := t.TempDir()
	spec := ModelSpec{
		Layer: "marts", Domain: "sales", Name: "orders",
		Description: "Order mart", Group: "sales", Access: "protected",
		Tags: []string{"daily"},
	}

	sqlPath, yamlPath, err := CreateModel(root, spec)
	require.NoError(t, err)

	sql, err := os.ReadFile(sqlPath)
	require.NoError(t, err)
	assert.Contains(t, string(sql), "materialized='table'")

	yml, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, string(yml), "name: mrt_orders")
	assert.Contains(t, string(yml), "Order mart")
	assert.Contains(t, string(yml), "access: protected")
	assert.Contains(t, string(yml), "daily")

	// Refuses to overwrite.
	_, _, err = CreateModel(root, spec)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileExists, errors.GetErrorCode(err))
}

func TestAddSource(t *testing.T) {
	root := t.TempDir()

	path, err := AddSource(root, SourceSpec{
		SourceName: "billing", Project: "acme-raw", Dataset: "billing",
		Table: "invoices", Description: "Raw invoices",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: billing")
	assert.Contains(t, string(data), "database: acme-raw")
	assert.Contains(t, string(data), "name: invoices")

	// A second table appends to the same source.
	_, err = AddSource(root, SourceSpec{
		SourceName: "billing", Project: "acme-raw", Dataset: "billing", Table: "payments",
	})
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: payments")

	// Re-declaring an existing table is rejected.
	_, err = AddSource(root, SourceSpec{
		SourceName: "billing", Project: "acme-raw", Dataset: "billing", Table: "invoices",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileExists, errors.GetErrorCode(err))
}

func writeModelFiles(t *testing.T, root, relBase, sql, yml string) {
	t.Helper()
	base := filepath.Join(root, relBase)
	require.NoError(t, os.MkdirAll(filepath.Dir(base), 0o755))
	require.NoError(t, os.WriteFile(base+".sql", []byte(sql), 0o644))
	if yml != "" {
		require.NoError(t, os.WriteFile(base+".yml", []byte(yml), 0o644))
	}
}

func TestMoveModel(t *testing.T) {
	root := t.TempDir()
	writeModelFiles(t, root, "models/staging/sales/stg_orders",
		"select 1", "version: 2\nmodels:\n  - name: stg_orders\n    description: Staged orders\n")

	req := MoveRequest{
		OldName: "stg_orders",
		OldPath: "models/staging/sales/stg_orders.sql",
		Spec:    ModelSpec{Layer: "staging", Domain: "billing", Name: "orders_v2"},
	}
	require.NoError(t, MoveModel(root, req))

	newSQL := filepath.Join(root, "models", "staging", "billing", "stg_orders_v2.sql")
	data, err := os.ReadFile(newSQL)
	require.NoError(t, err)
	assert.Equal(t, "select 1", string(data))

	newYAML := filepath.Join(root, "models", "staging", "billing", "stg_orders_v2.yml")
	yml, err := os.ReadFile(newYAML)
	require.NoError(t, err)
	assert.Contains(t, string(yml), "name: stg_orders_v2")
	assert.Contains(t, string(yml), "Staged orders")

	_, err = os.Stat(filepath.Join(root, "models", "staging", "sales", "stg_orders.sql"))
	assert.True(t, os.IsNotExist(err))
}

func TestMoveModelSafeLeavesForwardingView(t *testing.T) {
	root := t.TempDir()
	writeModelFiles(t, root, "models/marts/sales/mrt_orders",
		"select 1", "version: 2\nmodels:\n  - name: mrt_orders\n")

	req := MoveRequest{
		OldName: "mrt_orders",
		OldPath: "models/marts/sales/mrt_orders.sql",
		Spec:    ModelSpec{Layer: "marts", Domain: "sales", Name: "orders_v2"},
		Safe:    true,
	}
	require.NoError(t, MoveModel(root, req))

	oldSQL, err := os.ReadFile(filepath.Join(root, "models", "marts", "sales", "mrt_orders.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(oldSQL), "{{ ref('mrt_orders_v2') }}")
	assert.Contains(t, string(oldSQL), "materialized='view'")

	oldYAML, err := os.ReadFile(filepath.Join(root, "models", "marts", "sales", "mrt_orders.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(oldYAML), "is_tmp_old_copy: true")
}

func TestMoveModelRejectsSameName(t *testing.T) {
	root := t.TempDir()
	writeModelFiles(t, root, "models/marts/sales/mrt_orders", "select 1", "")

	err := MoveModel(root, MoveRequest{
		OldName: "mrt_orders",
		OldPath: "models/marts/sales/mrt_orders.sql",
		Spec:    ModelSpec{Layer: "marts", Domain: "sales", Name: "orders"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
}

func TestDiffColumns(t *testing.T) {
	declared := []DeclaredColumn{
		{Name: "id", Description: "primary key"},
		{Name: "amount", Description: ""},
		{Name: "removed_at", Description: "gone"},
	}
	live := []bigquery.Column{
		{Name: "id", Type: "integer"},
		{Name: "amount", Type: "numeric"},
		{Name: "created_at", Type: "timestamp"},
	}

	diff := DiffColumns(declared, live)
	assert.Equal(t, []string{"created_at"}, diff.Undocumented)
	assert.Equal(t, []string{"removed_at"}, diff.Stale)
	assert.Equal(t, []string{"amount"}, diff.MissingDescription)
	assert.False(t, diff.Clean())

	clean := DiffColumns(
		[]DeclaredColumn{{Name: "id", Description: "pk"}},
		[]bigquery.Column{{Name: "id"}},
	)
	assert.True(t, clean.Clean())
}

func TestDeclaredColumns(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "schema.yml")
	content := `version: 2
models:
  - name: mrt_orders
    columns:
      - name: id
        description: primary key
      - name: amount
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cols, err := DeclaredColumns(path, "mrt_orders")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "primary key", cols[0].Description)

	_, err = DeclaredColumns(path, "mrt_other")
	assert.Error(t, err)
}

func TestPatchSchemaColumns(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "schema.yml")
	content := `version: 2
models:
  - name: mrt_orders
    description: Orders fact table
    columns:
      - name: id
        description: primary key
        tests:
          - unique
      - name: removed_at
        description: gone
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	live := []bigquery.Column{
		{Name: "id", Type: "integer"},
		{Name: "created_at", Type: "timestamp", Description: "row insertion time"},
	}
	added, removed, err := PatchSchemaColumns(path, "mrt_orders", live)
	require.NoError(t, err)
	assert.Equal(t, []string{"created_at"}, added)
	assert.Equal(t, []string{"removed_at"}, removed)

	cols, err := DeclaredColumns(path, "mrt_orders")
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "primary key", cols[0].Description)
	assert.Equal(t, "created_at", cols[1].Name)
	assert.Equal(t, "row insertion time", cols[1].Description)

	patched, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(patched), "unique")
	assert.Contains(t, string(patched), "Orders fact table")

	_, _, err = PatchSchemaColumns(path, "mrt_other", live)
	assert.Error(t, err)
}

func TestPatchSchemaColumnsWithoutColumnsBlock(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "schema.yml")
	content := `version: 2
models:
  - name: stg_orders
    description: Raw orders
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	added, removed, err := PatchSchemaColumns(path, "stg_orders", []bigquery.Column{
		{Name: "id", Type: "integer"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, added)
	assert.Empty(t, removed)

	cols, err := DeclaredColumns(path, "stg_orders")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "id", cols[0].Name)
}
