package table

import (
	"encoding/binary"
)

/*
Table page binary layout (all values little-endian), following the
header/slot-directory register of ShubhamNegi4-DaemonDB's heap pages,
adapted to carry the 16-byte TupleMeta spec §3 requires inline with
each slot rather than in a separate LSN-first header:

	Offset  Size  Field
	──────────────────────────────────────
	0       2     NumSlots
	2       8     NextPageID
	10      2     PayloadStart  — lowest byte currently holding payload data
	──────────────────────────────────────
	12            TableHeaderSize

Slot directory starts at TableHeaderSize and grows forward
(contiguous, ascending per spec §6), one 22-byte entry per slot:

	Offset  Size  Field
	──────────────────────────────────────
	0       2     Offset    — byte offset of the payload within the page
	2       2     Length    — current payload length
	4       2     Capacity  — bytes reserved at Offset; in-place updates
	                          may not exceed this
	6       16    Meta
	──────────────────────────────────────
	22            slotSize

Payloads grow backward from the end of the page. Free space is the gap
between the end of the slot directory and PayloadStart.
*/
const (
	tableOffNumSlots      = 0
	tableOffNextPageID    = 2
	tableOffPayloadStart  = 10
	tableHeaderSize       = 12
	slotOffOffset         = 0
	slotOffLength         = 2
	slotOffCapacity       = 4
	slotOffMeta           = 6
	slotSize              = slotOffMeta + metaSize
)

// Page is one physical slotted page. Its Data is backed directly by a
// buffer-pool frame's bytes; callers obtain it from a page guard.
type Page struct {
	Data []byte
}

// InitPage stamps a fresh table-page header into data (must be exactly
// disk.PageSize bytes).
func InitPage(data []byte, nextPageID int64) *Page {
	for i := range data {
		data[i] = 0
	}
	p := &Page{Data: data}
	p.setNumSlots(0)
	p.SetNextPageID(nextPageID)
	p.setPayloadStart(uint16(len(data)))
	return p
}

// WrapPage views an already-initialized buffer as a Page without
// resetting it.
func WrapPage(data []byte) *Page {
	return &Page{Data: data}
}

func (p *Page) numSlots() uint16 {
	return binary.LittleEndian.Uint16(p.Data[tableOffNumSlots:])
}

func (p *Page) setNumSlots(n uint16) {
	binary.LittleEndian.PutUint16(p.Data[tableOffNumSlots:], n)
}

// NumSlots is the number of slot descriptors this page has allocated,
// whether or not each one's tuple is currently live.
func (p *Page) NumSlots() int {
	return int(p.numSlots())
}

// NextPageID is the table heap's forward chain link.
func (p *Page) NextPageID() int64 {
	return int64(binary.LittleEndian.Uint64(p.Data[tableOffNextPageID:]))
}

// SetNextPageID updates the chain link.
func (p *Page) SetNextPageID(id int64) {
	binary.LittleEndian.PutUint64(p.Data[tableOffNextPageID:], uint64(id))
}

func (p *Page) payloadStart() uint16 {
	return binary.LittleEndian.Uint16(p.Data[tableOffPayloadStart:])
}

func (p *Page) setPayloadStart(v uint16) {
	binary.LittleEndian.PutUint16(p.Data[tableOffPayloadStart:], v)
}

func (p *Page) slotDirEnd() int {
	return tableHeaderSize + p.NumSlots()*slotSize
}

// FreeSpace is the number of bytes available for a new tuple, ignoring
// the slot descriptor's own size.
func (p *Page) FreeSpace() int {
	return int(p.payloadStart()) - p.slotDirEnd()
}

func (p *Page) slotAt(i int) []byte {
	off := tableHeaderSize + i*slotSize
	return p.Data[off : off+slotSize]
}

func (p *Page) readSlot(i int) (offset, length, capacity uint16) {
	s := p.slotAt(i)
	return binary.LittleEndian.Uint16(s[slotOffOffset:]),
		binary.LittleEndian.Uint16(s[slotOffLength:]),
		binary.LittleEndian.Uint16(s[slotOffCapacity:])
}

func (p *Page) writeSlot(i int, offset, length, capacity uint16, meta Meta) {
	s := p.slotAt(i)
	binary.LittleEndian.PutUint16(s[slotOffOffset:], offset)
	binary.LittleEndian.PutUint16(s[slotOffLength:], length)
	binary.LittleEndian.PutUint16(s[slotOffCapacity:], capacity)
	encodeMeta(s[slotOffMeta:slotOffMeta+metaSize], meta)
}

// InsertTuple appends tuple as a new slot, returning its slot number.
// ok is false if the page cannot accommodate it.
func (p *Page) InsertTuple(meta Meta, tuple []byte) (slot uint32, ok bool) {
	// a new slot consumes slotSize bytes of directory growth in
	// addition to the payload itself.
	if len(tuple)+slotSize > p.FreeSpace() {
		return 0, false
	}

	newPayloadStart := p.payloadStart() - uint16(len(tuple))
	copy(p.Data[newPayloadStart:], tuple)

	idx := p.NumSlots()
	p.writeSlot(idx, newPayloadStart, uint16(len(tuple)), uint16(len(tuple)), meta)
	p.setNumSlots(uint16(idx + 1))
	p.setPayloadStart(newPayloadStart)

	return uint32(idx), true
}

// GetTuple returns the meta and payload stored at slot.
func (p *Page) GetTuple(slot uint32) (Meta, []byte, bool) {
	if int(slot) >= p.NumSlots() {
		return Meta{}, nil, false
	}
	offset, length, _ := p.readSlot(int(slot))
	s := p.slotAt(int(slot))
	meta := decodeMeta(s[slotOffMeta : slotOffMeta+metaSize])
	tuple := make([]byte, length)
	copy(tuple, p.Data[offset:offset+length])
	return meta, tuple, true
}

// GetTupleMeta returns only the meta stored at slot.
func (p *Page) GetTupleMeta(slot uint32) (Meta, bool) {
	if int(slot) >= p.NumSlots() {
		return Meta{}, false
	}
	s := p.slotAt(int(slot))
	return decodeMeta(s[slotOffMeta : slotOffMeta+metaSize]), true
}

// UpdateTupleMeta overwrites the meta stored at slot without touching
// the payload.
func (p *Page) UpdateTupleMeta(slot uint32, meta Meta) bool {
	if int(slot) >= p.NumSlots() {
		return false
	}
	offset, length, capacity := p.readSlot(int(slot))
	p.writeSlot(int(slot), offset, length, capacity, meta)
	return true
}

// UpdateTupleInPlace overwrites slot's payload and meta, preserving its
// original offset. ok is false if newTuple exceeds the slot's reserved
// capacity (spec §4.4/§9) — the caller must then delete+reinsert.
func (p *Page) UpdateTupleInPlace(slot uint32, meta Meta, newTuple []byte) (ok bool) {
	if int(slot) >= p.NumSlots() {
		return false
	}
	offset, _, capacity := p.readSlot(int(slot))
	if uint16(len(newTuple)) > capacity {
		return false
	}

	copy(p.Data[offset:offset+uint16(len(newTuple))], newTuple)
	p.writeSlot(int(slot), offset, uint16(len(newTuple)), capacity, meta)
	return true
}
