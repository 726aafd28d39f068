package types

// KnowledgeChunk is a bounded window of source text prepared for embedding.
// Chunks are immutable once created; re-ingesting a source replaces its whole
// chunk set.
type KnowledgeChunk struct {
	ID        string `json:"id"`
	SourceRef string `json:"source_ref"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
}

// Payload is the answer material carried alongside an indexed vector and
// returned to callers on a match.
type Payload struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	SourceRef string `json:"source_ref"`
	Position  int    `json:"position"`
}

// RetrievalCandidate is one ranked nearest-neighbor result for a query.
// Candidates are ephemeral: produced per query, never persisted.
// Distance is cosine distance (1 - cosine similarity); lower is more similar.
type RetrievalCandidate struct {
	Payload  Payload `json:"payload"`
	Distance float64 `json:"distance"`
	Rank     int     `json:"rank"`
}
