package kb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RecordDelimiter separates the question from the answer in a knowledge-source
// line. A triple pipe is used because it is not expected in natural text.
const RecordDelimiter = "|||"

// Record is one question/answer fact from a knowledge source.
type Record struct {
	Question string
	Answer   string
}

// EmbeddingText returns the text that gets embedded for this record. Question
// and answer are embedded together so a query can match either side.
func (r Record) EmbeddingText() string {
	return "Q: " + r.Question + "\nA: " + r.Answer
}

// ParseRecords reads line-oriented question|||answer records from r.
// Blank lines are ignored and lines without the delimiter are skipped; only
// the first delimiter splits, so answers may themselves contain pipes.
func ParseRecords(r io.Reader) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.Contains(line, RecordDelimiter) {
			continue
		}
		parts := strings.SplitN(line, RecordDelimiter, 2)
		q := strings.TrimSpace(parts[0])
		a := strings.TrimSpace(parts[1])
		if q == "" || a == "" {
			continue
		}
		records = append(records, Record{Question: q, Answer: a})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("kb: failed to read records: %w", err)
	}

	return records, nil
}
