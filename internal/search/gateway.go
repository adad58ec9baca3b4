package search

import (
	"context"

	"searchsync/internal/query"
)

// Gateway defines the contract for the search engine we index into.
// This keeps the sync service independent of the concrete engine and
// makes unit testing trivial (see InMemoryGateway).
type Gateway interface {
	// EnsureCollection creates the collection for a type with its fixed
	// schema if it does not already exist. Idempotent.
	EnsureCollection(ctx context.Context, typeName string, schema Schema) error

	// DropAllWithPrefix deletes every collection under the configured
	// prefix. Used only by full reindex.
	DropAllWithPrefix(ctx context.Context) error

	// Upsert adds or replaces a single document.
	Upsert(ctx context.Context, typeName string, document any) error

	// BulkUpsert writes all documents in one batched call. No-op on empty
	// input.
	BulkUpsert(ctx context.Context, typeName string, documents []any) error

	// Delete removes a document by id. Deleting an absent document is not
	// an error.
	Delete(ctx context.Context, typeName string, id string) error

	// Get retrieves a document by id; absent documents report found=false
	// rather than an error.
	Get(ctx context.Context, typeName string, id string) (map[string]any, bool, error)

	// UpsertOrReplace checks existence by id, then creates or updates.
	// This is the primitive behind single-item reindex.
	UpsertOrReplace(ctx context.Context, typeName string, id string, document any) error

	// Search executes a structured query and returns the matching page
	// plus the engine-reported total.
	Search(ctx context.Context, typeName string, req Request) (query.QueryResult[map[string]any], error)

	// Count returns the number of documents in a type's collection.
	Count(ctx context.Context, typeName string) (int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// Field describes one schema field of a collection.
type Field struct {
	Name     string
	Type     string
	Facet    bool
	Sort     bool
	Optional bool
}

// Schema is the fixed per-type collection mapping.
type Schema struct {
	Fields              []Field
	DefaultSortingField string
}

// Term is an exact-match filter clause. A slice value means "field value is
// one of the set"; any other value is an exact match.
type Term struct {
	Field string
	Value any
}

// Request is the structured query the Term/Query Builder translates into
// the engine's native representation. All terms are ANDed with each other
// and with the free-text clause; with neither present the request matches
// everything.
type Request struct {
	Skip int
	Take int

	SortBy   string
	SortDesc bool

	Terms []Term

	FreeText       string
	FreeTextFields []string
}
