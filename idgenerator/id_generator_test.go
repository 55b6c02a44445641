package idgenerator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("starts at one", func(t *testing.T) {
		gen := NewIdGenerator(0)
		require.NotNil(t, gen)
		assert.Equal(t, uint32(1), gen.Id())
	})

	t.Run("continues after the start value", func(t *testing.T) {
		gen := NewIdGenerator(100)
		assert.Equal(t, uint32(101), gen.Id())
	})
}

func TestIdGenerator_Id(t *testing.T) {
	t.Run("sequential", func(t *testing.T) {
		gen := NewIdGenerator(0)
		for want := uint32(1); want <= 10; want++ {
			assert.Equal(t, want, gen.Id())
		}
	})

	t.Run("wrap skips zero", func(t *testing.T) {
		gen := NewIdGenerator(^uint32(0) - 1)
		assert.Equal(t, ^uint32(0), gen.Id())
		assert.Equal(t, uint32(1), gen.Id())
		assert.Equal(t, uint32(2), gen.Id())
	})

	t.Run("concurrent callers get unique ids", func(t *testing.T) {
		gen := NewIdGenerator(0)
		const n = 500
		ids := make([]uint32, n)
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(idx int) {
				defer wg.Done()
				ids[idx] = gen.Id()
			}(i)
		}
		wg.Wait()

		seen := make(map[uint32]bool)
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate id %d", id)
			assert.NotZero(t, id)
			seen[id] = true
		}
		assert.Len(t, seen, n)
	})
}
