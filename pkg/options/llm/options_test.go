package llm

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderOptions_Defaults(t *testing.T) {
	embed := NewEmbeddingOptions()
	assert.Equal(t, "text-embedding-3-small", embed.Model)
	assert.Equal(t, 1536, embed.Dimensions)

	chat := NewChatOptions()
	assert.Equal(t, "gpt-4o", chat.Model)
}

func TestProviderOptions_ValidateRequiresKeyForOpenAI(t *testing.T) {
	o := NewChatOptions()
	errs := o.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "api-key")

	o.APIKey = "sk-test"
	assert.Empty(t, o.Validate())
}

func TestProviderOptions_FlagsUsePrefix(t *testing.T) {
	o := NewEmbeddingOptions()
	fs := pflag.NewFlagSet("embedding", pflag.ContinueOnError)
	o.AddFlags(fs, "embedding")

	require.NoError(t, fs.Parse([]string{"--embedding.model=custom", "--embedding.timeout=5s"}))
	assert.Equal(t, "custom", o.Model)
	assert.Equal(t, 5*time.Second, o.Timeout)
}

func TestProviderOptions_ToConfigMap(t *testing.T) {
	o := NewEmbeddingOptions()
	o.APIKey = "sk-test"
	m := o.ToConfigMap()

	assert.Equal(t, "sk-test", m["api_key"])
	assert.Equal(t, "text-embedding-3-small", m["embed_model"])
	assert.Equal(t, 1536, m["dimensions"])
}
