package buffer

import (
	"bytes"
	"os"
	"path"
	"testing"

	"github.com/corvidb/corvid/storage/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createDbFile(t *testing.T) *os.File {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")
	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })
	return file
}

func newTestPool(t *testing.T, poolSize, k int) (*PoolManager, *disk.Scheduler) {
	t.Helper()
	dm, err := disk.NewManager(createDbFile(t))
	require.NoError(t, err)
	sched := disk.NewScheduler(dm)
	t.Cleanup(sched.Close)
	return NewPoolManager(poolSize, k, sched, nil), sched
}

func TestPoolManager(t *testing.T) {
	t.Run("new page returns a zeroed write guard pinned once", func(t *testing.T) {
		pool, _ := newTestPool(t, 3, 2)

		pageID, guard, err := pool.NewPage()
		require.NoError(t, err)
		assert.Equal(t, make([]byte, disk.PageSize), guard.Data())

		fr := pool.frames[pool.pageTable[pageID]]
		assert.EqualValues(t, 1, fr.pins.Load())
		guard.Drop()
		assert.EqualValues(t, 0, fr.pins.Load())
	})

	t.Run("write then read round-trips through eviction", func(t *testing.T) {
		pool, _ := newTestPool(t, 1, 2)

		pageID, wg := mustNewPage(t, pool)
		copy(wg.DataMut(), []byte("hello, world!"))
		wg.Drop()
		require.NoError(t, pool.FlushPage(pageID))

		// force eviction of the only frame by fetching a second page
		_, wg2, err := pool.NewPage()
		require.NoError(t, err)
		wg2.Drop()

		rg, err := pool.FetchPageRead(pageID)
		require.NoError(t, err)
		defer rg.Drop()
		assert.True(t, bytes.HasPrefix(rg.Data(), []byte("hello, world!")))
	})

	t.Run("pinned frames are never evicted", func(t *testing.T) {
		pool, _ := newTestPool(t, 1, 2)

		_, wg := mustNewPage(t, pool)
		defer wg.Drop()

		_, _, err := pool.NewPage()
		assert.ErrorIs(t, err, ErrPoolExhausted)
	})

	t.Run("unpin fails on a page that is not resident", func(t *testing.T) {
		pool, _ := newTestPool(t, 1, 2)
		assert.Error(t, pool.Unpin(99, false))
	})

	t.Run("delete page fails while pinned", func(t *testing.T) {
		pool, _ := newTestPool(t, 1, 2)
		pageID, wg := mustNewPage(t, pool)
		defer wg.Drop()

		assert.Error(t, pool.DeletePage(pageID))
	})

	t.Run("delete page frees the frame for reuse", func(t *testing.T) {
		pool, _ := newTestPool(t, 1, 2)
		pageID, wg := mustNewPage(t, pool)
		wg.Drop()

		require.NoError(t, pool.DeletePage(pageID))
		_, ok := pool.pageTable[pageID]
		assert.False(t, ok)

		_, wg2, err := pool.NewPage()
		require.NoError(t, err)
		wg2.Drop()
	})

	t.Run("dirty evicted frames are flushed before reuse", func(t *testing.T) {
		pool, sched := newTestPool(t, 1, 2)

		pageID, wg := mustNewPage(t, pool)
		copy(wg.DataMut(), []byte("dirty"))
		wg.Drop()

		_, wg2, err := pool.NewPage()
		require.NoError(t, err)
		wg2.Drop()

		resp := <-sched.Schedule(disk.NewReadRequest(pageID))
		require.True(t, resp.Success)
		assert.True(t, bytes.HasPrefix(resp.Data, []byte("dirty")))
	})

	t.Run("guard drop is idempotent", func(t *testing.T) {
		pool, _ := newTestPool(t, 1, 2)
		_, wg := mustNewPage(t, pool)
		wg.Drop()
		assert.NotPanics(t, wg.Drop)
	})
}

func mustNewPage(t *testing.T, pool *PoolManager) (int64, *WritePageGuard) {
	t.Helper()
	pageID, guard, err := pool.NewPage()
	require.NoError(t, err)
	return pageID, guard
}
