package models

// TableType distinguishes physical tables from views in the warehouse catalog
type TableType string

const (
	TypeTable TableType = "TABLE"
	TypeView  TableType = "VIEW"
)

// CatalogEntry is a table or view observed live in BigQuery. Populated by an
// API call per invocation; never persisted.
type CatalogEntry struct {
	Ref            TableRef
	Type           TableType
	ExpirationDays *int // observed partition expiration, nil when unset or unpartitioned
}

// ReconciliationState classifies a physical reference after comparing the
// manifest against the live catalog.
type ReconciliationState string

const (
	StateOrphaned   ReconciliationState = "orphaned"   // present in catalog only
	StateMismatched ReconciliationState = "mismatched" // present in both, attributes differ
	StateInSync     ReconciliationState = "in-sync"    // present in both, attributes equal
)

// ReconciliationResult is the classification of one physical reference.
// Computed fresh each run.
type ReconciliationResult struct {
	Ref      TableRef
	State    ReconciliationState
	Type     TableType
	Declared *int // manifest-side expiration days, nil when absent
	Observed *int // catalog-side expiration days, nil when absent
	Node     *ManifestNode
}
