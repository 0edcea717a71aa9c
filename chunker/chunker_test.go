package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestChunk_Counts(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  int
	}{
		{name: "empty", words: 0, want: 0},
		{name: "single word", words: 1, want: 1},
		{name: "under window", words: 499, want: 1},
		{name: "exact window", words: 500, want: 1},
		{name: "one past window", words: 501, want: 2},
		{name: "two windows exactly", words: 950, want: 2},
		{name: "1200 words", words: 1200, want: 3},
		{name: "1400 words", words: 1400, want: 3},
		{name: "1401 words", words: 1401, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(words(tt.words))
			assert.Len(t, chunks, tt.want)
			assert.Equal(t, tt.want, Default().Count(tt.words))
		})
	}
}

func TestChunk_WhitespaceOnly(t *testing.T) {
	assert.Empty(t, Chunk("  \n\t  "))
}

func TestChunk_Windows(t *testing.T) {
	chunks := Chunk(words(1200))
	require.Len(t, chunks, 3)

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	third := strings.Fields(chunks[2])

	assert.Len(t, first, 500)
	assert.Len(t, second, 500)
	assert.Len(t, third, 300)

	assert.Equal(t, "w0", first[0])
	assert.Equal(t, "w450", second[0])
	assert.Equal(t, "w900", third[0])
	assert.Equal(t, "w1199", third[len(third)-1])

	// consecutive windows share 50 words
	assert.Equal(t, first[450:], second[:50])
	assert.Equal(t, second[450:], third[:50])
}

func TestChunk_Deterministic(t *testing.T) {
	text := words(2000)
	assert.Equal(t, Chunk(text), Chunk(text))
}

func TestChunk_NormalizesWhitespace(t *testing.T) {
	chunks := Chunk("srv01   hosts\n\nPayroll\tv2")
	require.Len(t, chunks, 1)
	assert.Equal(t, "srv01 hosts Payroll v2", chunks[0])
}

func TestNew(t *testing.T) {
	_, err := New(0, 1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = New(10, 0)
	assert.ErrorIs(t, err, ErrInvalidStride)

	_, err = New(10, 11)
	assert.ErrorIs(t, err, ErrInvalidStride)

	c, err := New(4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b c d", "c d e f", "e f g"}, c.Chunk("a b c d e f g"))
	assert.Equal(t, 3, c.Count(7))
}
