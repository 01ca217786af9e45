package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataanalyst/pkg/errors"
)

type collector struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (c *collector) flush(_ context.Context, batch []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
	return c.err
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestWriter_FlushOnMaxSizeBeforeStart(t *testing.T) {
	c := &collector{}
	w := NewWriter(Config[int]{Name: "test", FlushFunc: c.flush, MaxBatchSize: 3, MaxAge: 10 * time.Second})
	ctx := context.Background()

	assert.True(t, w.Add(ctx, 1))
	assert.True(t, w.Add(ctx, 2))
	assert.True(t, w.Add(ctx, 3))

	require.Equal(t, 1, c.count())
	assert.Equal(t, []int{1, 2, 3}, c.batches[0])
	assert.Equal(t, 0, w.BufferSize())
}

func TestWriter_FlushOnMaxSizeInBackground(t *testing.T) {
	c := &collector{}
	w := NewWriter(Config[int]{Name: "test", FlushFunc: c.flush, MaxBatchSize: 2, MaxAge: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Add(ctx, 1)
	w.Add(ctx, 2)

	assert.Eventually(t, func() bool { return c.total() == 2 }, time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))
}

func TestWriter_FlushOnTimer(t *testing.T) {
	c := &collector{}
	w := NewWriter(Config[int]{Name: "test", FlushFunc: c.flush, MaxBatchSize: 100, MaxAge: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Add(ctx, 1)
	w.Add(ctx, 2)

	assert.Eventually(t, func() bool { return c.total() == 2 }, time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))
}

func TestWriter_GracefulStopFlushesRemainder(t *testing.T) {
	c := &collector{}
	w := NewWriter(Config[int]{Name: "test", FlushFunc: c.flush, MaxBatchSize: 100, MaxAge: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Add(ctx, 1)
	w.Add(ctx, 2)
	w.Add(ctx, 3)

	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, 3, c.total())
	assert.False(t, w.Stats().Running)
}

func TestWriter_DropsWhenBufferFull(t *testing.T) {
	c := &collector{}
	w := NewWriter(Config[int]{Name: "test", FlushFunc: c.flush, MaxBatchSize: 100, MaxBuffered: 100})
	ctx := context.Background()

	for i := 0; i < 99; i++ {
		require.True(t, w.Add(ctx, i))
	}
	// The 100th item triggers a synchronous flush since the writer is not started
	require.True(t, w.Add(ctx, 99))
	assert.Equal(t, 100, c.total())

	c.err = errors.ErrUnavailable
	w2 := NewWriter(Config[int]{Name: "full", FlushFunc: c.flush, MaxBatchSize: 200, MaxBuffered: 200})
	w2.maxBuffered = 2
	assert.True(t, w2.Add(ctx, 1))
	assert.True(t, w2.Add(ctx, 2))
	assert.False(t, w2.Add(ctx, 3))
	assert.Equal(t, uint64(1), w2.Stats().Dropped)
}

func TestWriter_FlushErrorIsReturned(t *testing.T) {
	c := &collector{err: errors.ErrUnavailable}
	w := NewWriter(Config[int]{Name: "test", FlushFunc: c.flush})

	w.Add(context.Background(), 1)
	err := w.Flush(context.Background())

	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Equal(t, 0, w.BufferSize())
}

func TestWriter_ConcurrentAdds(t *testing.T) {
	c := &collector{}
	w := NewWriter(Config[int]{Name: "test", FlushFunc: c.flush, MaxBatchSize: 10, MaxAge: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			w.Add(ctx, idx)
		}(i)
	}
	wg.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, w.Stop(stopCtx))

	assert.Equal(t, 50, c.total())
}
