package http

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	o := NewOptions()
	assert.Empty(t, o.Validate())
	assert.Equal(t, ":8080", o.Addr)
}

func TestOptions_Validate(t *testing.T) {
	o := NewOptions()
	o.ApplyOptions(WithAddr(""), WithMode("turbo"))
	assert.Len(t, o.Validate(), 2)
}

func TestOptions_Flags(t *testing.T) {
	o := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{"--http.addr=:9000", "--http.mode=debug"}))
	assert.Equal(t, ":9000", o.Addr)
	assert.Equal(t, "debug", o.Mode)
}
