package textutil_test

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
)

func TestSegment_Scenario2500(t *testing.T) {
	text := strings.Repeat("abcdefghij", 250)

	chunks, err := textutil.Segment(text, textutil.DefaultChunkSize, textutil.DefaultOverlap)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, text[0:800], chunks[0])
	assert.Equal(t, text[700:1500], chunks[1])
	assert.Equal(t, text[1400:2200], chunks[2])
	assert.Equal(t, text[2100:], chunks[3])
	assert.Len(t, chunks[3], 400)
}

func TestSegment_EdgeCases(t *testing.T) {
	chunks, err := textutil.Segment("", 800, 100)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = textutil.Segment("short text", 800, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"short text"}, chunks)

	exact := strings.Repeat("x", 800)
	chunks, err = textutil.Segment(exact, 800, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{exact}, chunks)
}

func TestSegment_Configuration(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero overlap", 800, 0},
		{"negative overlap", 800, -1},
		{"overlap equals size", 100, 100},
		{"overlap above size", 100, 150},
		{"zero size", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := textutil.Segment("some text", tt.size, tt.overlap)
			assert.ErrorIs(t, err, textutil.ErrConfiguration)
		})
	}
}

func TestSegment_RoundTrip(t *testing.T) {
	texts := []string{
		"a",
		strings.Repeat("lorem ipsum ", 97),
		strings.Repeat("文档问答", 333),
		strings.Repeat("z", 1501),
	}
	params := [][2]int{{800, 100}, {10, 3}, {7, 6}, {50, 1}}

	for _, text := range texts {
		for _, p := range params {
			chunks, err := textutil.Segment(text, p[0], p[1])
			require.NoError(t, err)

			assert.Equal(t, text, textutil.Reassemble(chunks, p[1]))
			for i, c := range chunks {
				assert.NotEmpty(t, c)
				if i < len(chunks)-1 {
					assert.Equal(t, p[0], utf8.RuneCountInString(c))
				}
			}
		}
	}
}

func TestSegment_Deterministic(t *testing.T) {
	text := strings.Repeat("deterministic ", 200)
	a, err := textutil.Segment(text, 100, 10)
	require.NoError(t, err)
	b, err := textutil.Segment(text, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeNewlines(t *testing.T) {
	assert.Equal(t, "a b c d", textutil.NormalizeNewlines("a\nb\r\nc\rd"))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", textutil.CollapseWhitespace("  a\t\tb \n\n c  "))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"相同向量", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"正交向量", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"相反向量", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"空向量", []float32{}, []float32{}, 0},
		{"长度不同", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"零向量", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, textutil.CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, textutil.CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 2, textutil.CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1-math.Sqrt2/2, textutil.CosineDistance([]float32{1, 0}, []float32{1, 1}), 1e-6)
}
