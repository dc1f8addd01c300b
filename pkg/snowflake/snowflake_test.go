package snowflake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	t.Run("valid range", func(t *testing.T) {
		for _, n := range []int64{0, 1, 1023} {
			_, err := NewNode(n)
			assert.NoError(t, err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		for _, n := range []int64{-1, 1024} {
			_, err := NewNode(n)
			assert.ErrorIs(t, err, ErrBadNode)
		}
	})
}

func TestGenerate(t *testing.T) {
	node, err := NewNode(7)
	require.NoError(t, err)

	t.Run("strictly increasing", func(t *testing.T) {
		prev := node.Generate()
		for i := 0; i < 10000; i++ {
			id := node.Generate()
			require.Greater(t, id, prev)
			prev = id
		}
	})

	t.Run("unique under concurrency", func(t *testing.T) {
		const workers, perWorker = 8, 2000
		ids := make(chan int64, workers*perWorker)
		for w := 0; w < workers; w++ {
			go func() {
				for i := 0; i < perWorker; i++ {
					ids <- node.Generate()
				}
			}()
		}
		seen := make(map[int64]struct{}, workers*perWorker)
		for i := 0; i < workers*perWorker; i++ {
			id := <-ids
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %d", id)
			seen[id] = struct{}{}
		}
	})
}

func TestTimestamp(t *testing.T) {
	node, err := NewNode(1)
	require.NoError(t, err)

	before := time.Now().Add(-time.Second)
	id := node.Generate()
	after := time.Now().Add(time.Second)

	ts := Timestamp(id)
	assert.True(t, ts.After(before), "timestamp %v not after %v", ts, before)
	assert.True(t, ts.Before(after), "timestamp %v not before %v", ts, after)
}
