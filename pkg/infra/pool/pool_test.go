package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_InvalidCapacity(t *testing.T) {
	_, err := NewPool("bad", &Config{Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}

func TestPool_Submit(t *testing.T) {
	p, err := NewPool("test", DefaultConfig())
	require.NoError(t, err)
	defer p.Release()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		i := i
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	assert.Equal(t, int64(20), p.Stats().Submitted)
	assert.Eventually(t, func() bool { return p.Stats().Completed == 20 }, time.Second, 5*time.Millisecond)
}

func TestPool_PanicRecovered(t *testing.T) {
	recovered := make(chan any, 1)
	p, err := NewPool("panic", &Config{
		Capacity:     1,
		PanicHandler: func(r any) { recovered <- r },
	})
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Submit(func() { panic("boom") }))

	select {
	case r := <-recovered:
		assert.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
	assert.Eventually(t, func() bool { return p.Stats().Panics == 1 }, time.Second, 5*time.Millisecond)
}

func TestPool_Nonblocking(t *testing.T) {
	p, err := NewPool("nonblocking", &Config{Capacity: 1, Nonblocking: true})
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-block }))

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolOverload)
	assert.Equal(t, int64(1), p.Stats().Rejected)
	close(block)
}

func TestPool_SubmitAfterRelease(t *testing.T) {
	p, err := NewPool("closed", DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, p.ReleaseTimeout(time.Second))
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}
