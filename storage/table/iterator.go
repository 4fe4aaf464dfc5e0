package table

import "github.com/corvidb/corvid/storage/disk"

// Iterator walks a Heap's physical records in page-chain order, slots
// ascending, per spec §4.4. A non-eager iterator captures a stable
// stop point (last page id + its slot count) at construction time, so
// concurrent inserts during iteration never appear; an eager iterator
// has no stop sentinel and may observe rows inserted after it started.
type Iterator struct {
	heap *Heap

	curPageID int64
	curSlot   uint32

	eager       bool
	stopPageID  int64
	stopNumSlot uint32
}

// MakeIterator returns a snapshot iterator: it will not see tuples
// inserted on the heap's last page after this call.
func (h *Heap) MakeIterator() (*Iterator, error) {
	h.mu.Lock()
	stopPageID := h.lastPageID
	h.mu.Unlock()

	numSlots, err := h.numSlotsOnPage(stopPageID)
	if err != nil {
		return nil, err
	}

	return &Iterator{
		heap:        h,
		curPageID:   h.FirstPageID(),
		eager:       false,
		stopPageID:  stopPageID,
		stopNumSlot: numSlots,
	}, nil
}

// MakeEagerIterator returns an iterator with no stop sentinel: it keeps
// walking the live chain, including pages/slots added after creation.
func (h *Heap) MakeEagerIterator() *Iterator {
	return &Iterator{heap: h, curPageID: h.FirstPageID(), eager: true}
}

func (h *Heap) numSlotsOnPage(pageID int64) (uint32, error) {
	guard, err := h.pool.FetchPageRead(pageID)
	if err != nil {
		return 0, err
	}
	defer guard.Drop()
	return uint32(WrapPage(guard.Data()).NumSlots()), nil
}

// Next returns the next record, advancing past page boundaries as
// needed. ok is false once the iterator (or its stop sentinel) is
// exhausted.
func (it *Iterator) Next() (rid RID, meta Meta, tuple []byte, ok bool, err error) {
	for {
		if it.curPageID == disk.InvalidPageID {
			return RID{}, Meta{}, nil, false, nil
		}

		guard, ferr := it.heap.pool.FetchPageRead(it.curPageID)
		if ferr != nil {
			return RID{}, Meta{}, nil, false, ferr
		}
		page := WrapPage(guard.Data())
		numSlots := uint32(page.NumSlots())

		limit := numSlots
		if !it.eager && it.curPageID == it.stopPageID {
			limit = it.stopNumSlot
		}

		if it.curSlot >= limit {
			atStop := !it.eager && it.curPageID == it.stopPageID
			next := page.NextPageID()
			guard.Drop()

			if atStop {
				it.curPageID = disk.InvalidPageID
			} else {
				it.curPageID = next
			}
			it.curSlot = 0
			continue
		}

		m, t, exists := page.GetTuple(it.curSlot)
		rid = RID{PageID: it.curPageID, SlotNum: it.curSlot}
		it.curSlot++
		guard.Drop()

		if !exists {
			continue
		}
		return rid, m, t, true, nil
	}
}
