// Package postgres implements index.VectorIndex on PostgreSQL with the
// pgvector extension, so the knowledge index survives restarts and search can
// use the database's cosine-distance operator instead of scanning in Go.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/entdesk/entdesk/internal/index"
	"github.com/entdesk/entdesk/pkg/types"
)

// Ensure *Index implements index.VectorIndex at compile time.
var _ index.VectorIndex = (*Index)(nil)

// Index stores entries in a kb_entries table with a fixed-dimension vector
// column. Upserts are per-entry atomic via ON CONFLICT, and searches order by
// the <=> cosine-distance operator with chunk_id as the deterministic
// tie-breaker.
type Index struct {
	db        *sql.DB
	dimension int
}

// Open connects to PostgreSQL with the given DSN, verifies the connection,
// and ensures the schema exists. The vector column is created with the given
// dimension; pgvector itself rejects vectors of any other length, so the
// dimension invariant holds even across processes.
func Open(dsn string, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", index.ErrInvalidDimension, dimension)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}

	idx := &Index{db: db, dimension: dimension}
	if err := idx.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (p *Index) ensureSchema() error {
	if _, err := p.db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("postgres: pgvector extension unavailable: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS kb_entries (
			chunk_id   TEXT PRIMARY KEY,
			source_ref TEXT NOT NULL,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			position   INTEGER NOT NULL,
			embedding  vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS kb_entries_source_idx ON kb_entries (source_ref);
	`, p.dimension)

	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces entries by chunk id inside a single transaction,
// so concurrent searches see either the old or the new row for each entry.
func (p *Index) Upsert(ctx context.Context, entries []index.Entry) error {
	for _, e := range entries {
		if len(e.Vector) != p.dimension {
			return fmt.Errorf("%w: entry %s has dimension %d, index expects %d",
				index.ErrDimensionMismatch, e.ChunkID, len(e.Vector), p.dimension)
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsertSQL = `
		INSERT INTO kb_entries (chunk_id, source_ref, question, answer, position, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (chunk_id) DO UPDATE SET
			source_ref = excluded.source_ref,
			question   = excluded.question,
			answer     = excluded.answer,
			position   = excluded.position,
			embedding  = excluded.embedding,
			updated_at = now()
	`
	for _, e := range entries {
		vec := pgvector.NewVector(e.Vector)
		if _, err := tx.ExecContext(ctx, upsertSQL,
			e.ChunkID, e.SourceRef, e.Payload.Question, e.Payload.Answer, e.Payload.Position, vec); err != nil {
			return fmt.Errorf("postgres: failed to upsert entry %s: %w", e.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit upsert: %w", err)
	}
	return nil
}

// DeleteSource removes all entries for sourceRef.
func (p *Index) DeleteSource(ctx context.Context, sourceRef string) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM kb_entries WHERE source_ref = $1", sourceRef); err != nil {
		return fmt.Errorf("postgres: failed to delete source %s: %w", sourceRef, err)
	}
	return nil
}

// Search ranks entries by cosine distance using pgvector's <=> operator.
func (p *Index) Search(ctx context.Context, query []float32, topK int) ([]types.RetrievalCandidate, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: got %d", index.ErrInvalidTopK, topK)
	}
	if len(query) != p.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index expects %d",
			index.ErrDimensionMismatch, len(query), p.dimension)
	}

	const searchSQL = `
		SELECT question, answer, source_ref, position, embedding <=> $1 AS distance
		FROM kb_entries
		ORDER BY distance ASC, chunk_id ASC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, searchSQL, pgvector.NewVector(query), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.RetrievalCandidate
	rank := 0
	for rows.Next() {
		var c types.RetrievalCandidate
		if err := rows.Scan(&c.Payload.Question, &c.Payload.Answer, &c.Payload.SourceRef, &c.Payload.Position, &c.Distance); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan candidate: %w", err)
		}
		c.Rank = rank
		rank++
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search rows error: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed entries.
func (p *Index) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kb_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count failed: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (p *Index) Close() error {
	return p.db.Close()
}
