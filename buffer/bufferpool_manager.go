package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corvidb/corvid/storage/disk"
	"github.com/corvidb/corvid/util"
	"go.uber.org/zap"
)

// PoolManager mediates access to an unbounded page space through a
// fixed pool of frames (spec §4.2). A single mutex serializes pool
// bookkeeping; the scheduled disk I/O is awaited while that mutex is
// held, per the spec's simplifying note in §4.2.
type PoolManager struct {
	mu         sync.Mutex
	frames     []*frame
	pageTable  map[int64]int
	freeList   []int
	replacer   *LRUKReplacer
	scheduler  *disk.Scheduler
	nextPageID atomic.Int64
	log        *zap.Logger
}

// NewPoolManager builds a pool of poolSize frames backed by scheduler,
// evicting via an LRU-k replacer with history depth k.
func NewPoolManager(poolSize, k int, scheduler *disk.Scheduler, log *zap.Logger) *PoolManager {
	if log == nil {
		log = zap.NewNop()
	}

	frames := make([]*frame, poolSize)
	free := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(i)
		free[i] = i
	}

	return &PoolManager{
		frames:    frames,
		pageTable: make(map[int64]int, poolSize),
		freeList:  free,
		replacer:  NewLRUKReplacer(poolSize, k),
		scheduler: scheduler,
		log:       log.With(zap.String("component", "buffer_pool")),
	}
}

// ErrPoolExhausted is the recoverable "no page" error of spec §7: every
// frame is pinned and none is evictable.
var ErrPoolExhausted = util.NewError(util.KindPoolExhausted, "pool exhausted, no evictable frame")

// NewPage allocates a fresh page id, evicts a victim frame if
// necessary (flushing it first if dirty), and returns a write guard
// over the zeroed page pinned at count 1.
func (p *PoolManager) NewPage() (int64, *WritePageGuard, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fr, err := p.victimLocked()
	if err != nil {
		return disk.InvalidPageID, nil, err
	}

	pageID := p.nextPageID.Add(1) - 1
	delete(p.pageTable, fr.pageID)
	p.pageTable[pageID] = fr.id

	fr.mu.Lock()
	fr.reset(pageID)
	fr.pin()

	p.replacer.RecordAccess(fr.id)
	p.replacer.SetEvictable(fr.id, false)

	p.log.Debug("new page", zap.Int64("page_id", pageID), zap.Int("frame_id", fr.id))
	return pageID, newWritePageGuard(p, fr), nil
}

// FetchPageRead pins and latches pageID for shared reading, fetching it
// from disk first if it is not already resident.
func (p *PoolManager) FetchPageRead(pageID int64) (*ReadPageGuard, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fr, err := p.residentOrFetchedLocked(pageID)
	if err != nil {
		return nil, err
	}

	fr.mu.RLock()
	fr.pin()
	p.replacer.RecordAccess(fr.id)
	p.replacer.SetEvictable(fr.id, false)

	return newReadPageGuard(p, fr), nil
}

// FetchPageWrite pins and latches pageID exclusively, fetching it from
// disk first if it is not already resident.
func (p *PoolManager) FetchPageWrite(pageID int64) (*WritePageGuard, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fr, err := p.residentOrFetchedLocked(pageID)
	if err != nil {
		return nil, err
	}

	fr.mu.Lock()
	fr.pin()
	p.replacer.RecordAccess(fr.id)
	p.replacer.SetEvictable(fr.id, false)

	return newWritePageGuard(p, fr), nil
}

// residentOrFetchedLocked returns the frame for pageID, installing it
// from disk via a victim frame if it is not already in the page table.
// Callers must hold p.mu.
func (p *PoolManager) residentOrFetchedLocked(pageID int64) (*frame, error) {
	if id, ok := p.pageTable[pageID]; ok {
		return p.frames[id], nil
	}

	fr, err := p.victimLocked()
	if err != nil {
		return nil, err
	}

	delete(p.pageTable, fr.pageID)
	p.pageTable[pageID] = fr.id
	fr.reset(pageID)

	resp := <-p.scheduler.Schedule(disk.NewReadRequest(pageID))
	if !resp.Success {
		return nil, fmt.Errorf("buffer: fetch page %d: %w", pageID, resp.Err)
	}
	copy(fr.data, resp.Data)

	p.log.Debug("fetched page", zap.Int64("page_id", pageID), zap.Int("frame_id", fr.id))
	return fr, nil
}

// victimLocked returns a frame to reuse: the free list first, else the
// replacer's eviction choice (flushing it first if dirty). Callers must
// hold p.mu.
func (p *PoolManager) victimLocked() (*frame, error) {
	if len(p.freeList) > 0 {
		id := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return p.frames[id], nil
	}

	id, ok := p.replacer.Evict()
	if !ok {
		return nil, ErrPoolExhausted
	}

	fr := p.frames[id]
	if fr.dirty {
		if err := p.flushLocked(fr); err != nil {
			return nil, err
		}
	}
	return fr, nil
}

// Unpin decrements pageID's pin count, OR-merging dirty, and marks the
// frame evictable once the pin count reaches zero.
func (p *PoolManager) Unpin(pageID int64, dirty bool) error {
	p.mu.Lock()
	id, ok := p.pageTable[pageID]
	p.mu.Unlock()
	if !ok {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("unpin page %d: not resident", pageID))
	}
	return p.unpinFrame(p.frames[id], dirty)
}

func (p *PoolManager) unpinFrame(fr *frame, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fr.pins.Load() <= 0 {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("unpin frame %d: already at zero pins", fr.id))
	}
	if dirty {
		fr.dirty = true
	}
	if fr.unpin() == 0 {
		p.replacer.SetEvictable(fr.id, true)
	}
	return nil
}

// FlushPage schedules pageID's write-back to disk and clears its dirty
// flag on success.
func (p *PoolManager) FlushPage(pageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.pageTable[pageID]
	if !ok {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("flush page %d: not resident", pageID))
	}
	return p.flushLocked(p.frames[id])
}

// FlushAll flushes every resident dirty frame.
func (p *PoolManager) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, fr := range p.frames {
		if fr.pageID == disk.InvalidPageID {
			continue
		}
		if err := p.flushLocked(fr); err != nil {
			return err
		}
	}
	return nil
}

func (p *PoolManager) flushLocked(fr *frame) error {
	if !fr.dirty {
		return nil
	}
	resp := <-p.scheduler.Schedule(disk.NewWriteRequest(fr.pageID, fr.data))
	if !resp.Success {
		return fmt.Errorf("buffer: flush page %d: %w", fr.pageID, resp.Err)
	}
	fr.dirty = false
	p.log.Debug("flushed page", zap.Int64("page_id", fr.pageID), zap.Int("frame_id", fr.id))
	return nil
}

// DeletePage fails if pageID is pinned; otherwise it returns the frame
// to the free list, drops it from the replacer, and deallocates the
// page id on disk.
func (p *PoolManager) DeletePage(pageID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.pageTable[pageID]
	if !ok {
		return nil
	}
	fr := p.frames[id]
	if fr.pins.Load() > 0 {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("delete page %d: still pinned", pageID))
	}

	delete(p.pageTable, pageID)
	p.replacer.Remove(fr.id)
	fr.reset(disk.InvalidPageID)
	p.freeList = append(p.freeList, fr.id)

	resp := <-p.scheduler.Schedule(disk.NewDeleteRequest(pageID))
	if !resp.Success {
		return fmt.Errorf("buffer: delete page %d: %w", pageID, resp.Err)
	}
	return nil
}
