package table

import (
	"fmt"
	"sync"

	"github.com/corvidb/corvid/buffer"
	"github.com/corvidb/corvid/storage/disk"
)

// CheckFunc is the caller predicate UpdateTupleInPlace accepts: it sees
// the current (meta, tuple) before the mutation and may reject it.
type CheckFunc func(meta Meta, tuple []byte) bool

// Heap is an ordered chain of table pages (spec §3/§4.4). It owns page
// allocation through the buffer pool and exposes a forward iterator
// over every physical record, live or tombstoned — visibility is an
// MVCC concern layered on top by the executors.
type Heap struct {
	pool *buffer.PoolManager

	mu          sync.Mutex
	firstPageID int64
	lastPageID  int64
}

// NewHeap allocates the heap's first (empty) page.
func NewHeap(pool *buffer.PoolManager) (*Heap, error) {
	pageID, guard, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("table: allocate first page: %w", err)
	}
	InitPage(guard.DataMut(), disk.InvalidPageID)
	guard.Drop()

	return &Heap{pool: pool, firstPageID: pageID, lastPageID: pageID}, nil
}

// FirstPageID returns the heap's first page, for iteration.
func (h *Heap) FirstPageID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.firstPageID
}

// Insert appends tuple with meta to the heap, allocating a new page if
// the last page has no room. It fails only if a single fresh page
// cannot hold the tuple at all (spec §4.4: "fatal").
func (h *Heap) Insert(meta Meta, tuple []byte) (RID, error) {
	for {
		h.mu.Lock()
		lastPageID := h.lastPageID
		h.mu.Unlock()

		guard, err := h.pool.FetchPageWrite(lastPageID)
		if err != nil {
			return RID{}, fmt.Errorf("table: insert: fetch last page: %w", err)
		}

		page := WrapPage(guard.DataMut())
		if slot, ok := page.InsertTuple(meta, tuple); ok {
			guard.Drop()
			return RID{PageID: lastPageID, SlotNum: slot}, nil
		}
		guard.Drop()

		if err := h.growPast(lastPageID, len(tuple)); err != nil {
			return RID{}, err
		}
	}
}

// growPast links a new page after lastPageID, unless another inserter
// already did so (or the tuple can never fit, which is fatal).
func (h *Heap) growPast(lastPageID int64, tupleLen int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.lastPageID != lastPageID {
		return nil // someone else already grew the heap
	}

	newPageID, guard, err := h.pool.NewPage()
	if err != nil {
		return fmt.Errorf("table: insert: allocate new page: %w", err)
	}
	fresh := InitPage(guard.DataMut(), disk.InvalidPageID)
	if tupleLen+slotSize > fresh.FreeSpace() {
		guard.Drop()
		return fmt.Errorf("table: insert: tuple of %d bytes cannot fit on any page", tupleLen)
	}
	guard.Drop()

	oldGuard, err := h.pool.FetchPageWrite(lastPageID)
	if err != nil {
		return fmt.Errorf("table: insert: relink last page: %w", err)
	}
	WrapPage(oldGuard.DataMut()).SetNextPageID(newPageID)
	oldGuard.Drop()

	h.lastPageID = newPageID
	return nil
}

// GetTuple reads the meta and payload at rid.
func (h *Heap) GetTuple(rid RID) (Meta, []byte, error) {
	guard, err := h.pool.FetchPageRead(rid.PageID)
	if err != nil {
		return Meta{}, nil, fmt.Errorf("table: get tuple %+v: %w", rid, err)
	}
	defer guard.Drop()

	meta, tuple, ok := WrapPage(guard.Data()).GetTuple(rid.SlotNum)
	if !ok {
		return Meta{}, nil, fmt.Errorf("table: get tuple %+v: slot out of range", rid)
	}
	return meta, tuple, nil
}

// GetTupleMeta reads only the meta at rid.
func (h *Heap) GetTupleMeta(rid RID) (Meta, error) {
	guard, err := h.pool.FetchPageRead(rid.PageID)
	if err != nil {
		return Meta{}, fmt.Errorf("table: get tuple meta %+v: %w", rid, err)
	}
	defer guard.Drop()

	meta, ok := WrapPage(guard.Data()).GetTupleMeta(rid.SlotNum)
	if !ok {
		return Meta{}, fmt.Errorf("table: get tuple meta %+v: slot out of range", rid)
	}
	return meta, nil
}

// UpdateTupleMeta overwrites rid's meta in place.
func (h *Heap) UpdateTupleMeta(rid RID, meta Meta) error {
	guard, err := h.pool.FetchPageWrite(rid.PageID)
	if err != nil {
		return fmt.Errorf("table: update tuple meta %+v: %w", rid, err)
	}
	defer guard.Drop()

	if !WrapPage(guard.DataMut()).UpdateTupleMeta(rid.SlotNum, meta) {
		return fmt.Errorf("table: update tuple meta %+v: slot out of range", rid)
	}
	return nil
}

// UpdateTupleInPlace overwrites rid's payload and meta under a write
// guard, honoring check against the tuple's current state and the
// slot's reserved capacity (spec §4.4).
func (h *Heap) UpdateTupleInPlace(rid RID, meta Meta, newTuple []byte, check CheckFunc) (ok bool, err error) {
	guard, err := h.pool.FetchPageWrite(rid.PageID)
	if err != nil {
		return false, fmt.Errorf("table: update tuple %+v: %w", rid, err)
	}
	defer guard.Drop()

	page := WrapPage(guard.DataMut())
	if check != nil {
		curMeta, curTuple, exists := page.GetTuple(rid.SlotNum)
		if !exists {
			return false, fmt.Errorf("table: update tuple %+v: slot out of range", rid)
		}
		if !check(curMeta, curTuple) {
			return false, nil
		}
	}

	return page.UpdateTupleInPlace(rid.SlotNum, meta, newTuple), nil
}
