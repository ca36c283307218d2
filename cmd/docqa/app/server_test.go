package app

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logopts "github.com/kart-io/docqa/pkg/options/logger"
)

func TestReloadLogLevel(t *testing.T) {
	opts := logopts.NewOptions()
	opts.Level = "INFO"
	reload := reloadLogLevel(opts)

	v := viper.New()
	v.Set("log.level", "DEBUG")
	require.NoError(t, reload(v))
	assert.Equal(t, "DEBUG", opts.Level)

	v.Set("log.level", "debug")
	require.NoError(t, reload(v))
	assert.Equal(t, "DEBUG", opts.Level)

	v.Set("log.level", "LOUD")
	assert.ErrorContains(t, reload(v), "invalid log.level")
	assert.Equal(t, "DEBUG", opts.Level)

	v.Set("log.level", "INFO")
	require.NoError(t, reload(v))
	assert.Equal(t, "INFO", opts.Level)
}
