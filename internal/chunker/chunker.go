// Package chunker groups consecutive sentences into overlapping windows.
package chunker

import (
	"fmt"
	"strings"
)

// Chunk is one indexable unit of text taken from a work.
type Chunk struct {
	WorkID   int64
	Text     string
	Position int
}

// Policy is a sliding window over sentences: Size sentences per chunk,
// advancing Stride sentences each step.
type Policy struct {
	Size   int
	Stride int
}

var (
	// Granular is one chunk per sentence, used for citation search.
	Granular = Policy{Size: 1, Stride: 1}
	// Context is five-sentence windows overlapping by two, used for
	// thematic search.
	Context = Policy{Size: 5, Stride: 3}
)

// Validate reports a window that would never advance or never fill.
func (p Policy) Validate() error {
	if p.Size < 1 {
		return fmt.Errorf("chunk size must be >= 1, got %d", p.Size)
	}
	if p.Stride < 1 || p.Stride > p.Size {
		return fmt.Errorf("chunk stride must be in [1, %d], got %d", p.Size, p.Stride)
	}
	return nil
}

// Count returns how many chunks Split produces for n sentences.
func (p Policy) Count(n int) int {
	if n < p.Size || p.Stride < 1 {
		return 0
	}
	return (n-p.Size)/p.Stride + 1
}

// Split joins sentences[o:o+Size] with a single space for every offset o in
// 0, Stride, 2*Stride, ... with o+Size <= len(sentences). Fewer sentences
// than Size yields no chunks.
func Split(workID int64, sentences []string, p Policy) []Chunk {
	n := p.Count(len(sentences))
	if n == 0 {
		return nil
	}
	chunks := make([]Chunk, 0, n)
	for offset := 0; offset+p.Size <= len(sentences); offset += p.Stride {
		chunks = append(chunks, Chunk{
			WorkID:   workID,
			Text:     strings.Join(sentences[offset:offset+p.Size], " "),
			Position: len(chunks),
		})
	}
	return chunks
}
