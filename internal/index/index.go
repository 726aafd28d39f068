// Package index defines the vector index consumed by the retrieval service
// and its in-memory implementation. A persistent PostgreSQL/pgvector
// implementation lives in the postgres subpackage.
package index

import (
	"context"
	"errors"
	"math"

	"github.com/entdesk/entdesk/pkg/types"
)

var (
	// ErrDimensionMismatch indicates a vector whose dimension differs from the
	// index's fixed dimension. Vectors are never truncated or padded.
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")

	// ErrInvalidTopK indicates a search with top_k < 1.
	ErrInvalidTopK = errors.New("index: top_k must be at least 1")

	// ErrInvalidDimension indicates an index configured with a non-positive
	// dimension.
	ErrInvalidDimension = errors.New("index: dimension must be positive")
)

// Entry is one (vector, payload) pair owned by the index. Entries are created
// on upsert and replaced wholesale on re-upsert of the same chunk id
// (last-write-wins); they are never partially updated.
type Entry struct {
	ChunkID   string
	SourceRef string
	Vector    []float32
	Payload   types.Payload
}

// VectorIndex stores embedding vectors with payloads and answers
// nearest-neighbor queries under cosine distance. The metric is fixed for the
// lifetime of an index instance.
//
// Searches and upserts may run concurrently: a search observes each entry
// either entirely before or entirely after an upsert, never a mix.
type VectorIndex interface {
	// Upsert inserts or replaces entries by chunk id.
	Upsert(ctx context.Context, entries []Entry) error

	// DeleteSource removes every entry belonging to sourceRef. Deleting an
	// unknown source is not an error.
	DeleteSource(ctx context.Context, sourceRef string) error

	// Search returns up to topK candidates ordered ascending by cosine
	// distance, ties broken by lowest chunk id for determinism. When the index
	// holds fewer than topK entries, all of them are returned.
	Search(ctx context.Context, query []float32, topK int) ([]types.RetrievalCandidate, error)

	// Count returns the number of entries currently indexed.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the index.
	Close() error
}

// CosineDistance computes 1 - cosine_similarity for two equal-length vectors.
// A zero-magnitude vector has no direction, so its distance to anything is
// the metric's maximum of 1.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
