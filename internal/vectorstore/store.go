// Package vectorstore abstracts the vector similarity store. Implementations
// must support upsert-by-id (so re-indexing overwrites in place) and
// metadata-filtered nearest-neighbor search.
package vectorstore

import "context"

// Document is a stored or retrieved text segment with its metadata.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Point is one upsert unit: a stable id, an embedding and its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Document
}

// Filter is a single exact-match condition on a payload key. Key may be a
// dotted path into nested payload objects ("metadata.userId").
type Filter struct {
	Key   string
	Value string
}

// Store is the external vector collection. The collection is created lazily
// on first indexing and never deleted by this service.
type Store interface {
	// EnsureCollection creates the collection with the given vector
	// dimension if it does not exist yet, and is a no-op otherwise.
	EnsureCollection(ctx context.Context, dimension int) error
	// Upsert writes points by id, overwriting any existing point with the
	// same id.
	Upsert(ctx context.Context, points []Point) error
	// Search returns up to limit documents nearest to vector, optionally
	// restricted by filter. A nil filter searches the whole collection.
	Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]Document, error)
}
