package stream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchQueue_FIFO(t *testing.T) {
	q := newBatchQueue()
	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(Batch{ID: id}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		b, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, b.ID)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestBatchQueue_Close(t *testing.T) {
	q := newBatchQueue()
	q.Enqueue(Batch{ID: "A"})
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(Batch{ID: "B"}))

	// Closed signal channel never blocks.
	<-q.Wait()

	b, ok := q.TryDequeue()
	require.True(t, ok, "queued batches survive Close")
	assert.Equal(t, "A", b.ID)
}

func TestBatchQueue_ConcurrentEnqueue(t *testing.T) {
	q := newBatchQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(Batch{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}

func TestSequentialGenerator(t *testing.T) {
	g := NewSequentialGenerator("b")
	assert.Equal(t, "b-1", g.Generate())
	assert.Equal(t, "b-2", g.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	a, b := UUIDv7Generator{}.Generate(), UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
