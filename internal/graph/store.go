package graph

import "context"

// Query pairs Cypher text with its parameters for batched writes.
type Query struct {
	Text   string
	Params map[string]any
}

type ConstraintKind string

const (
	ConstraintUnique  ConstraintKind = "unique"
	ConstraintNotNull ConstraintKind = "not_null"
)

// ConstraintSpec and IndexSpec are data-driven: label and field values never
// reach query text except through the single quoting path in the store
// implementation, and only after structural validation by the schema package.
type ConstraintSpec struct {
	Name   string
	Label  string
	Fields []string
	Kind   ConstraintKind
}

type IndexSpec struct {
	Name   string
	Label  string
	Fields []string
}

type VectorIndexSpec struct {
	Name       string
	Label      string
	Field      string
	Dimensions int
}

// Store is the backing graph store surface the orchestrator core consumes.
// All operations are idempotent ("create if absent" for schema operations,
// parameterized reads/writes otherwise).
type Store interface {
	ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	// ExecuteWriteBatch runs all queries inside one write transaction.
	ExecuteWriteBatch(ctx context.Context, queries []Query) error
	CreateConstraint(ctx context.Context, spec ConstraintSpec) error
	CreateIndex(ctx context.Context, spec IndexSpec) error
	CreateVectorIndex(ctx context.Context, spec VectorIndexSpec) error
	Ping(ctx context.Context) error
}
