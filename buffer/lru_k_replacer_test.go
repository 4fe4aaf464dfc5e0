package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUKReplacer(t *testing.T) {
	t.Run("frame with fewer than k accesses is +inf and evicted first", func(t *testing.T) {
		// S4 (adjusted per spec §8): pool size 3, k=2, access 1,2,3,1,2.
		r := NewLRUKReplacer(3, 2)
		for _, f := range []int{0, 1, 2, 0, 1} {
			require.NoError(t, r.RecordAccess(f))
		}
		for _, f := range []int{0, 1, 2} {
			r.SetEvictable(f, true)
		}

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 2, victim, "frame 2 has only one access and must be the sole +inf holder")
	})

	t.Run("among frames with k accesses, larger backward-k-distance is evicted", func(t *testing.T) {
		r := NewLRUKReplacer(3, 2)
		// frame 0: accessed at t0, t1 (oldest-in-window = t0)
		require.NoError(t, r.RecordAccess(0))
		require.NoError(t, r.RecordAccess(1))
		require.NoError(t, r.RecordAccess(0))
		// frame 1: accessed more recently twice, smaller backward distance
		require.NoError(t, r.RecordAccess(1))

		r.SetEvictable(0, true)
		r.SetEvictable(1, true)

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 0, victim)
	})

	t.Run("only evictable frames are candidates", func(t *testing.T) {
		r := NewLRUKReplacer(2, 2)
		require.NoError(t, r.RecordAccess(0))
		require.NoError(t, r.RecordAccess(1))
		r.SetEvictable(1, true)

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 1, victim)
	})

	t.Run("evict on empty replacer reports false", func(t *testing.T) {
		r := NewLRUKReplacer(2, 2)
		_, ok := r.Evict()
		assert.False(t, ok)
	})

	t.Run("record access beyond capacity fails", func(t *testing.T) {
		r := NewLRUKReplacer(2, 2)
		assert.Error(t, r.RecordAccess(5))
	})

	t.Run("size tracks the evictable count", func(t *testing.T) {
		r := NewLRUKReplacer(3, 2)
		require.NoError(t, r.RecordAccess(0))
		require.NoError(t, r.RecordAccess(1))
		r.SetEvictable(0, true)
		r.SetEvictable(1, true)
		assert.Equal(t, 2, r.Size())

		r.SetEvictable(0, false)
		assert.Equal(t, 1, r.Size())
	})

	t.Run("remove panics on a non-evictable frame", func(t *testing.T) {
		r := NewLRUKReplacer(2, 2)
		require.NoError(t, r.RecordAccess(0))
		assert.Panics(t, func() { r.Remove(0) })
	})

	t.Run("remove is a no-op for an absent frame", func(t *testing.T) {
		r := NewLRUKReplacer(2, 2)
		assert.NotPanics(t, func() { r.Remove(0) })
	})
}
