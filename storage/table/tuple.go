// Package table implements the slotted-page record store of spec §4.4:
// TablePage holds the physical layout, TableHeap chains pages and owns
// allocation and iteration.
package table

import "encoding/binary"

// RID identifies a tuple by the page it lives on and its slot number
// within that page (spec §3 "record id").
type RID struct {
	PageID  int64
	SlotNum uint32
}

// Meta is the 16-byte tuple header carried alongside every payload:
// the timestamp that stamped the tuple (a transaction's temporary id
// until commit, then its commit_ts) and whether it is a tombstone.
type Meta struct {
	Ts        int64
	IsDeleted bool
}

// metaSize is the spec-mandated wire size of Meta: an 8-byte
// timestamp, a 1-byte deleted flag, and 7 bytes of padding.
const metaSize = 16

func encodeMeta(buf []byte, m Meta) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(m.Ts))
	if m.IsDeleted {
		buf[8] = 1
	} else {
		buf[8] = 0
	}
}

func decodeMeta(buf []byte) Meta {
	return Meta{Ts: int64(binary.LittleEndian.Uint64(buf[0:8])), IsDeleted: buf[8] != 0}
}
