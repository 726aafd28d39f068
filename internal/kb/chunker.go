// Package kb handles the knowledge-source format consumed by ingestion:
// parsing line-oriented question/answer records and splitting their text into
// overlapping word windows suitable for embedding.
package kb

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunkParams indicates a chunk configuration where the overlap is
// not strictly between zero and the chunk size. This is a configuration
// error: it is reported to the caller, never silently clamped.
var ErrInvalidChunkParams = errors.New("kb: overlap must be greater than 0 and less than chunk size")

// Chunk splits text into overlapping windows of whitespace-delimited tokens.
// A window of size tokens starts every size-overlap tokens; the last window
// may be shorter (no padding). Tokens are re-joined with single spaces, so
// the output is independent of the input's original whitespace.
//
// The output is deterministic: identical input and parameters always yield
// identical chunks in the same order, which makes re-ingestion of a source
// idempotent.
func Chunk(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkParams, size, overlap)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	step := size - overlap
	chunks := make([]string, 0, (len(words)+step-1)/step)
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks, nil
}
