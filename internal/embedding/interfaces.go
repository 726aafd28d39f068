// Package embedding provides the embedding-provider contract used by the
// retrieval service and an Ollama-backed implementation.
package embedding

import (
	"context"
	"errors"
)

// ErrProvider wraps failures of the embedding backend (network errors, bad
// status, malformed responses). The retrieval service retries these with
// bounded backoff before surfacing a retrieval failure.
var ErrProvider = errors.New("embedding: provider failure")

// Provider maps text to fixed-dimension vectors. Implementations must be
// deterministic for identical input within a model version; the core treats
// them as pure functions with possible failure. Calls may block on I/O and
// must honor context cancellation.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany returns one vector per input text, order-preserving.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed vector dimension this provider produces.
	Dimension() int

	// Model identifies the embedding model version.
	Model() string
}
