// Package retrieval orchestrates corpus ingestion (parse, chunk, embed,
// index) and query-time semantic retrieval with retry on provider failure.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/entdesk/entdesk/internal/embedding"
	"github.com/entdesk/entdesk/internal/index"
	"github.com/entdesk/entdesk/internal/kb"
	"github.com/entdesk/entdesk/pkg/types"
)

// ErrRetrievalUnavailable indicates that the embedding provider stayed
// unavailable across all retry attempts. The triage engine turns this into a
// forced escalation rather than failing the query.
var ErrRetrievalUnavailable = errors.New("retrieval: embedding provider unavailable")

// Config holds retrieval service configuration.
type Config struct {
	// ChunkSize is the chunk window size in tokens (default: 300).
	ChunkSize int

	// ChunkOverlap is the window overlap in tokens (default: 50).
	ChunkOverlap int

	// MaxAttempts bounds embedding retries per call (default: 3).
	MaxAttempts int

	// RetryBaseDelay is the first backoff delay; it doubles per attempt
	// (default: 200ms).
	RetryBaseDelay time.Duration
}

// Service drives the chunker, embedding provider and vector index. It is
// safe for concurrent use: ingestion and query serving share no mutable state
// beyond the index itself.
type Service struct {
	provider embedding.Provider
	index    index.VectorIndex
	cfg      Config
}

// NewService validates the configuration and builds a retrieval service.
// Invalid chunk parameters are a configuration error surfaced here, at
// construction, not at first ingest.
func NewService(provider embedding.Provider, idx index.VectorIndex, cfg Config) (*Service, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 300
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 50
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}

	// Validate the window parameters up front with a probe chunk.
	if _, err := kb.Chunk("probe", cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}

	return &Service{provider: provider, index: idx, cfg: cfg}, nil
}

// Ingest parses question|||answer records from sourceText, chunks and embeds
// them, and replaces the source's entries in the index. The returned count is
// the number of indexed chunks.
//
// Ingestion is all-or-nothing per source: every embedding is produced before
// the index is touched, so a provider failure midway leaves the previous
// chunk set intact. Chunk ids derive from sourceRef and position, which makes
// re-ingestion idempotent and duplicate-free.
func (s *Service) Ingest(ctx context.Context, sourceText, sourceRef string) (int, error) {
	if strings.TrimSpace(sourceRef) == "" {
		return 0, errors.New("retrieval: source ref is required")
	}

	records, err := kb.ParseRecords(strings.NewReader(sourceText))
	if err != nil {
		return 0, err
	}

	var entries []index.Entry
	var texts []string
	position := 0
	for _, rec := range records {
		windows, err := kb.Chunk(rec.EmbeddingText(), s.cfg.ChunkSize, s.cfg.ChunkOverlap)
		if err != nil {
			return 0, err
		}
		for _, w := range windows {
			entries = append(entries, index.Entry{
				ChunkID:   fmt.Sprintf("%s#%04d", sourceRef, position),
				SourceRef: sourceRef,
				Payload: types.Payload{
					Question:  rec.Question,
					Answer:    rec.Answer,
					SourceRef: sourceRef,
					Position:  position,
				},
			})
			texts = append(texts, w)
			position++
		}
	}

	vectors, err := s.embedManyWithRetry(ctx, texts)
	if err != nil {
		return 0, err
	}
	for i := range entries {
		entries[i].Vector = vectors[i]
	}

	// Replace the source's prior chunk set. Delete-then-insert handles a
	// shrunken source; stable chunk ids handle everything else.
	if err := s.index.DeleteSource(ctx, sourceRef); err != nil {
		return 0, err
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return 0, err
	}

	log.Printf("retrieval: ingested %d chunks from %s", len(entries), sourceRef)
	return len(entries), nil
}

// Retrieve embeds the query once and returns up to topK candidates in rank
// order, unmodified from the index.
func (s *Service) Retrieve(ctx context.Context, queryText string, topK int) ([]types.RetrievalCandidate, error) {
	vectors, err := s.embedManyWithRetry(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	return s.index.Search(ctx, vectors[0], topK)
}

// Confidence derives the downstream triage confidence from ranked candidates:
// 1 - distance of the top candidate, clamped to [0,1]. No candidates means
// zero confidence.
func Confidence(candidates []types.RetrievalCandidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	c := 1 - candidates[0].Distance
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// embedManyWithRetry calls the provider with bounded exponential backoff.
// Context cancellation aborts immediately and is reported as the context's
// error, not as provider unavailability.
func (s *Service) embedManyWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var lastErr error
	delay := s.cfg.RetryBaseDelay
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		vectors, err := s.provider.EmbedMany(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt < s.cfg.MaxAttempts {
			log.Printf("retrieval: embed attempt %d/%d failed: %v", attempt, s.cfg.MaxAttempts, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, lastErr)
}
