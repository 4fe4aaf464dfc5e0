package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/corvidb/corvid/storage/disk"
)

// frame is one of the pool's fixed slots. It owns the raw page bytes
// plus the latch that serializes access to them (spec §3 "Frame").
type frame struct {
	id     int
	mu     sync.RWMutex
	data   []byte
	pins   atomic.Int32
	dirty  bool
	pageID int64
}

func newFrame(id int) *frame {
	return &frame{id: id, data: make([]byte, disk.PageSize), pageID: disk.InvalidPageID}
}

func (f *frame) pin()         { f.pins.Add(1) }
func (f *frame) unpin() int32 { return f.pins.Add(-1) }

// reset clears the frame for reuse by a different page id. Callers
// must hold the frame's latch exclusively before calling reset.
func (f *frame) reset(pageID int64) {
	f.dirty = false
	f.pins.Store(0)
	f.data = make([]byte, disk.PageSize)
	f.pageID = pageID
}
