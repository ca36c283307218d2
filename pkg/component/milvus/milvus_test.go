package milvus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentFilter(t *testing.T) {
	assert.Equal(t, `document_id in ["a", "b"]`, DocumentFilter([]string{"a", "b"}))
	assert.Equal(t, `document_id in ["x\"y"]`, DocumentFilter([]string{`x"y`}))
}
