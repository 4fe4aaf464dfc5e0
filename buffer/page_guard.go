package buffer

// basicGuard is the shared shape behind ReadPageGuard and WritePageGuard
// (spec §4.3): a pinned frame plus the pool it was fetched from, with a
// dropped flag that makes Drop idempotent.
type basicGuard struct {
	pool    *PoolManager
	fr      *frame
	dropped bool
}

// PageID returns the page id this guard is holding.
func (g *basicGuard) PageID() int64 {
	return g.fr.pageID
}

// ReadPageGuard holds a shared latch plus a pin on its frame.
type ReadPageGuard struct {
	basicGuard
}

func newReadPageGuard(pool *PoolManager, fr *frame) *ReadPageGuard {
	return &ReadPageGuard{basicGuard{pool: pool, fr: fr}}
}

// Data returns the page's current bytes. Callers must not retain the
// slice past Drop.
func (g *ReadPageGuard) Data() []byte {
	return g.fr.data
}

// Drop releases the shared latch and then unpins the frame. It is
// idempotent: a second Drop is a no-op.
func (g *ReadPageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.fr.mu.RUnlock()
	g.pool.unpinFrame(g.fr, false)
}

// WritePageGuard holds an exclusive latch plus a pin on its frame.
type WritePageGuard struct {
	basicGuard
}

func newWritePageGuard(pool *PoolManager, fr *frame) *WritePageGuard {
	return &WritePageGuard{basicGuard{pool: pool, fr: fr}}
}

// Data returns the page's current bytes without marking it dirty.
func (g *WritePageGuard) Data() []byte {
	return g.fr.data
}

// DataMut returns the page's bytes for in-place mutation and marks the
// frame dirty, per spec §4.3 ("when written through, sets the dirty
// flag").
func (g *WritePageGuard) DataMut() []byte {
	g.fr.dirty = true
	return g.fr.data
}

// Drop releases the exclusive latch and then unpins the frame,
// propagating whatever dirty state accumulated via DataMut. Idempotent.
func (g *WritePageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	dirty := g.fr.dirty
	g.fr.mu.Unlock()
	g.pool.unpinFrame(g.fr, dirty)
}
