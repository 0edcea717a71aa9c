package chunker

import (
	"errors"
	"strings"
)

const (
	// DefaultSize is the number of words per chunk.
	DefaultSize = 500
	// DefaultStride is the distance in words between chunk starts.
	DefaultStride = 450
)

var (
	// ErrInvalidSize indicates a non-positive window size.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidStride indicates a stride outside (0, size].
	ErrInvalidStride = errors.New("chunk stride must be positive and no larger than size")
)

// Chunker produces fixed-size word windows.
type Chunker struct {
	size   int
	stride int
}

var defaultChunker = &Chunker{size: DefaultSize, stride: DefaultStride}

// New creates a Chunker. Stride must not exceed size, otherwise words between
// windows would be dropped.
func New(size, stride int) (*Chunker, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if stride <= 0 || stride > size {
		return nil, ErrInvalidStride
	}
	return &Chunker{size: size, stride: stride}, nil
}

// Default returns the 500/450 chunker.
func Default() *Chunker {
	return defaultChunker
}

// Chunk splits text with the default window.
func Chunk(text string) []string {
	return defaultChunker.Chunk(text)
}

// Size returns the window size in words.
func (c *Chunker) Size() int { return c.size }

// Stride returns the window stride in words.
func (c *Chunker) Stride() int { return c.stride }

// Chunk splits text into windows. Empty or whitespace-only text yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, c.Count(len(words)))
	for start := 0; ; start += c.stride {
		end := min(start+c.size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// Count returns how many chunks a text of n words produces.
func (c *Chunker) Count(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= c.size {
		return 1
	}
	return (n-c.size+c.stride-1)/c.stride + 1
}
