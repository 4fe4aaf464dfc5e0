// Package index implements the ordered secondary index of spec §6: a
// disk-backed B+tree keyed on an opaque byte-comparable key, with
// RID-valued leaves so index-scan can hand its results straight to a
// table heap lookup.
package index

import (
	"bytes"

	"github.com/corvidb/corvid/storage/disk"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/util"
	"github.com/vmihailenco/msgpack/v5"
)

// Key is an opaque, already-encoded sort key. Callers (the executor's
// index-scan/insert paths) own turning typed column values into bytes
// that compare correctly with bytes.Compare — this package only ever
// orders keys lexicographically.
type Key []byte

// pageKind distinguishes a page's on-disk layout.
type pageKind uint8

const (
	internalPageKind pageKind = iota
	leafPageKind
)

// maxEntries bounds how many keys a page holds before it splits. A
// real sizing pass would derive this from disk.PageSize and the
// widest key actually stored; picking a fixed conservative constant
// keeps the codec simple, since keys here are short column encodings.
const maxEntries = 64

// headerPage is the tree's single fixed page holding the current root.
type headerPage struct {
	RootPageID int64
}

// leafPage holds the actual (key, rid) pairs in sorted key order, plus
// sibling links for the range-scan iterator.
type leafPage struct {
	PageID   int64
	ParentID int64
	Next     int64
	Prev     int64
	Keys     []Key
	Values   []table.RID
}

func newLeafPage(pageID, parentID int64) *leafPage {
	return &leafPage{
		PageID:   pageID,
		ParentID: parentID,
		Next:     disk.InvalidPageID,
		Prev:     disk.InvalidPageID,
	}
}

func (p *leafPage) size() int { return len(p.Keys) }

// search returns the index of key in p.Keys, or the index it would be
// inserted at to keep the slice sorted (bytes.Compare order).
func (p *leafPage) search(key Key) (idx int, found bool) {
	lo, hi := 0, len(p.Keys)
	for lo < hi {
		mid := (lo + hi) / 2
		switch bytes.Compare(p.Keys[mid], key) {
		case -1:
			lo = mid + 1
		case 1:
			hi = mid
		default:
			return mid, true
		}
	}
	return lo, false
}

// insertAt inserts (key, rid) into the leaf at the position that keeps
// it sorted. Inserting at an existing key appends a second entry for
// it rather than replacing, since a secondary index is not unique by
// default — duplicate keys (e.g. a non-unique indexed column) resolve
// to multiple RIDs, consistent with Scan's "return every match" reading
// of spec §6's scan_key contract.
func (p *leafPage) insertAt(key Key, rid table.RID) {
	idx, found := p.search(key)
	if found {
		for idx < len(p.Keys) && bytes.Equal(p.Keys[idx], key) {
			idx++
		}
	}
	p.Keys = insertKey(p.Keys, idx, key)
	p.Values = insertRID(p.Values, idx, rid)
}

// removeAt removes the first (key, rid) pair matching both key and
// rid; returns false if no such pair exists.
func (p *leafPage) removeAt(key Key, rid table.RID) bool {
	for i, k := range p.Keys {
		if bytes.Equal(k, key) && p.Values[i] == rid {
			p.Keys = append(p.Keys[:i], p.Keys[i+1:]...)
			p.Values = append(p.Values[:i], p.Values[i+1:]...)
			return true
		}
	}
	return false
}

// internalPage routes key lookups to children: Keys[i] is the smallest
// key reachable through Children[i+1] (Children[0] has no separator,
// matching the classic B+tree "n children, n-1 keys" internal layout).
type internalPage struct {
	PageID   int64
	ParentID int64
	Keys     []Key
	Children []int64
}

func newInternalPage(pageID, parentID int64) *internalPage {
	return &internalPage{PageID: pageID, ParentID: parentID}
}

func (p *internalPage) size() int { return len(p.Children) }

// childFor returns the child subtree key belongs in.
func (p *internalPage) childFor(key Key) int64 {
	idx := 0
	for idx < len(p.Keys) && bytes.Compare(key, p.Keys[idx]) >= 0 {
		idx++
	}
	return p.Children[idx]
}

// insertChild inserts a new (separator key, child) pair produced by a
// child split. childIdx is the position of the existing child that
// just split; newChild becomes its immediate right sibling.
func (p *internalPage) insertChild(childIdx int, separator Key, newChild int64) {
	p.Keys = insertKey(p.Keys, childIdx, separator)
	newChildren := make([]int64, 0, len(p.Children)+1)
	newChildren = append(newChildren, p.Children[:childIdx+1]...)
	newChildren = append(newChildren, newChild)
	newChildren = append(newChildren, p.Children[childIdx+1:]...)
	p.Children = newChildren
}

// indexOfChild returns the position of pageID among p.Children.
func (p *internalPage) indexOfChild(pageID int64) int {
	for i, c := range p.Children {
		if c == pageID {
			return i
		}
	}
	return -1
}

func insertKey(s []Key, idx int, v Key) []Key {
	s = append(s, nil)
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

func insertRID(s []table.RID, idx int, v table.RID) []table.RID {
	s = append(s, table.RID{})
	copy(s[idx+1:], s[idx:])
	s[idx] = v
	return s
}

// pageEnvelope wraps a leafPage or internalPage with the tag needed to
// tell them apart on a blind page read; msgpack.Marshal writes each
// struct as a map of its field names with no type marker, so the
// payload alone does not say which struct to decode it into.
type pageEnvelope struct {
	Kind    pageKind
	Payload []byte
}

func encodeLeafPage(p *leafPage) ([]byte, error) {
	payload, err := msgpack.Marshal(p)
	if err != nil {
		return nil, err
	}
	return util.ToByteSlice(pageEnvelope{Kind: leafPageKind, Payload: payload})
}

func encodeInternalPage(p *internalPage) ([]byte, error) {
	payload, err := msgpack.Marshal(p)
	if err != nil {
		return nil, err
	}
	return util.ToByteSlice(pageEnvelope{Kind: internalPageKind, Payload: payload})
}

func decodePageKind(data []byte) (pageKind, error) {
	env, err := util.ToStruct[pageEnvelope](data)
	if err != nil {
		return 0, err
	}
	return env.Kind, nil
}

func decodeLeafPage(data []byte) (*leafPage, error) {
	env, err := util.ToStruct[pageEnvelope](data)
	if err != nil {
		return nil, err
	}
	var p leafPage
	if err := msgpack.Unmarshal(env.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeInternalPage(data []byte) (*internalPage, error) {
	env, err := util.ToStruct[pageEnvelope](data)
	if err != nil {
		return nil, err
	}
	var p internalPage
	if err := msgpack.Unmarshal(env.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
