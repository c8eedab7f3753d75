package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_StartsAtZero(t *testing.T) {
	s := NewSequence()
	assert.Equal(t, int64(0), s.Current())
	assert.Equal(t, int64(1), s.Next())
	assert.Equal(t, int64(2), s.Next())
	assert.Equal(t, int64(2), s.Current())
}

func TestSequenceAt(t *testing.T) {
	s := NewSequenceAt(41)
	assert.Equal(t, int64(42), s.Next())
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	s := NewSequence()
	const workers, perWorker = 8, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v := s.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), s.Current())
}

func TestReal_After(t *testing.T) {
	var c Clock = Real{}
	start := c.Now()
	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		require.Fail(t, "timer did not fire")
	}
	assert.True(t, c.Now().After(start))
}
