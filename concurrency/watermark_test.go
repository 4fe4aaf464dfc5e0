package concurrency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermark(t *testing.T) {
	t.Run("empty watermark equals the commit ts", func(t *testing.T) {
		w := NewWatermark(5)
		assert.Equal(t, int64(5), w.GetWatermark())
	})

	t.Run("rejects a reader older than the commit ts", func(t *testing.T) {
		w := NewWatermark(5)
		err := w.AddTxn(4)
		require.Error(t, err)
	})

	t.Run("watermark tracks the smallest active reader", func(t *testing.T) {
		w := NewWatermark(0)
		require.NoError(t, w.AddTxn(3))
		require.NoError(t, w.AddTxn(1))
		require.NoError(t, w.AddTxn(2))
		assert.Equal(t, int64(1), w.GetWatermark())

		w.RemoveTxn(1)
		assert.Equal(t, int64(2), w.GetWatermark())
	})

	t.Run("watermark falls back to commit ts once all readers leave", func(t *testing.T) {
		w := NewWatermark(0)
		require.NoError(t, w.AddTxn(2))
		require.NoError(t, w.UpdateCommitTs(5))
		w.RemoveTxn(2)
		assert.Equal(t, int64(5), w.GetWatermark())
	})

	t.Run("S3: watermark GC scenario", func(t *testing.T) {
		w := NewWatermark(5)
		assert.Equal(t, int64(5), w.GetWatermark())

		require.NoError(t, w.AddTxn(5)) // begin A, read_ts=5

		require.NoError(t, w.AddTxn(5)) // begin B, read_ts=5 (commits at 6 below)
		require.NoError(t, w.UpdateCommitTs(6))
		w.RemoveTxn(5) // B's own read_ts removed on commit; A's read_ts=5 bucket still held

		assert.Equal(t, int64(5), w.GetWatermark())

		require.NoError(t, w.UpdateCommitTs(7))
		w.RemoveTxn(5) // remove A
		assert.Equal(t, int64(7), w.GetWatermark())
	})

	t.Run("duplicate read timestamps share one bucket", func(t *testing.T) {
		w := NewWatermark(0)
		require.NoError(t, w.AddTxn(3))
		require.NoError(t, w.AddTxn(3))
		w.RemoveTxn(3)
		assert.Equal(t, int64(3), w.GetWatermark(), "second holder of ts=3 keeps the bucket alive")
		w.RemoveTxn(3)
		assert.Equal(t, int64(0), w.GetWatermark())
	})

	t.Run("commit ts must strictly advance", func(t *testing.T) {
		w := NewWatermark(5)
		err := w.UpdateCommitTs(5)
		require.Error(t, err)
		err = w.UpdateCommitTs(4)
		require.Error(t, err)
	})

	t.Run("invariant 1: watermark never exceeds a registered reader's read ts", func(t *testing.T) {
		w := NewWatermark(0)
		readTimestamps := []int64{4, 1, 7, 1, 9}
		for _, ts := range readTimestamps {
			require.NoError(t, w.AddTxn(ts))
		}
		for _, ts := range readTimestamps {
			assert.LessOrEqual(t, w.GetWatermark(), ts)
		}
	})
}
