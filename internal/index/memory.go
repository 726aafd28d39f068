package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/entdesk/entdesk/pkg/types"
)

// Ensure *MemoryIndex implements VectorIndex at compile time.
var _ VectorIndex = (*MemoryIndex)(nil)

// MemoryIndex is an in-process VectorIndex guarded by a read-write mutex.
// Searches take the read lock and upserts the write lock, so a search never
// observes a half-written entry. State does not survive a process restart;
// for durable indexing use the postgres subpackage.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]Entry
}

// NewMemoryIndex creates an empty index with the given fixed dimension.
func NewMemoryIndex(dimension int) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}
	return &MemoryIndex{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}, nil
}

// Upsert inserts or replaces entries by chunk id. Every vector is validated
// against the index dimension before any entry is written, so a batch with a
// bad vector leaves the index untouched.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != m.dimension {
			return fmt.Errorf("%w: entry %s has dimension %d, index expects %d",
				ErrDimensionMismatch, e.ChunkID, len(e.Vector), m.dimension)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		// Copy the vector so later caller mutations cannot corrupt the index.
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries[e.ChunkID] = e
	}
	return nil
}

// DeleteSource removes all entries belonging to sourceRef.
func (m *MemoryIndex) DeleteSource(ctx context.Context, sourceRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.SourceRef == sourceRef {
			delete(m.entries, id)
		}
	}
	return nil
}

// Search ranks all entries by cosine distance to query, ascending, ties broken
// by lowest chunk id.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]types.RetrievalCandidate, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			ErrDimensionMismatch, len(query), m.dimension)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	type scored struct {
		chunkID string
		payload types.Payload
		dist    float64
	}
	candidates := make([]scored, 0, len(m.entries))
	for id, e := range m.entries {
		candidates = append(candidates, scored{
			chunkID: id,
			payload: e.Payload,
			dist:    CosineDistance(query, e.Vector),
		})
	}
	m.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}

	results := make([]types.RetrievalCandidate, 0, topK)
	for rank, c := range candidates[:topK] {
		results = append(results, types.RetrievalCandidate{
			Payload:  c.payload,
			Distance: c.dist,
			Rank:     rank,
		})
	}
	return results, nil
}

// Count returns the number of indexed entries.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error { return nil }
