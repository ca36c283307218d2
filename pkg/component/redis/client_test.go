package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	options "github.com/kart-io/docqa/pkg/options/redis"
)

func TestNew_NilOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestNew_Unreachable(t *testing.T) {
	opts := options.NewOptions()
	opts.Enabled = true
	opts.Port = 1
	opts.DialTimeout = 100 * time.Millisecond
	opts.MaxRetries = 0

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := New(ctx, opts)
	assert.ErrorContains(t, err, "failed to ping redis")
}
