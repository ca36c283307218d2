package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := NewOptions()
	require.Empty(t, o.Validate())
	assert.Equal(t, 800, o.ChunkSize)
	assert.Equal(t, 100, o.ChunkOverlap)
	assert.Equal(t, 3, o.TopK)
}

func TestOptions_ValidateOverlap(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		valid   bool
	}{
		{"default", 800, 100, true},
		{"zero overlap", 800, 0, false},
		{"overlap equals size", 800, 800, false},
		{"overlap above size", 100, 200, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			o.ChunkSize = tt.size
			o.ChunkOverlap = tt.overlap
			if tt.valid {
				assert.Empty(t, o.Validate())
			} else {
				assert.NotEmpty(t, o.Validate())
			}
		})
	}
}
