package index

import (
	"bytes"
	"fmt"

	"github.com/corvidb/corvid/buffer"
	"github.com/corvidb/corvid/storage/disk"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/util"
)

// Index is the external contract spec §6 says an index-scan and the
// insert/delete/update executors consume, without caring whether a
// B+tree, a hash index, or anything else sits behind it.
type Index interface {
	Insert(key Key, rid table.RID) error
	Delete(key Key, rid table.RID) error
	Scan(start, stop Key) ([]table.RID, error)
}

// BPlusTree is the ordered Index implementation of spec §6: a
// disk-backed B+tree whose leaves chain left-to-right for range scans.
type BPlusTree struct {
	pool         *buffer.PoolManager
	name         string
	headerPageID int64
}

// NewBPlusTree allocates a fresh header page and returns an empty tree.
func NewBPlusTree(name string, pool *buffer.PoolManager) (*BPlusTree, error) {
	headerPageID, guard, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("index: allocate header page: %w", err)
	}
	data, err := util.ToByteSlice(headerPage{RootPageID: disk.InvalidPageID})
	if err != nil {
		guard.Drop()
		return nil, err
	}
	copy(guard.DataMut(), data)
	guard.Drop()

	return &BPlusTree{pool: pool, name: name, headerPageID: headerPageID}, nil
}

// Name returns the index's catalog-facing name.
func (t *BPlusTree) Name() string { return t.name }

func (t *BPlusTree) getHeader() (headerPage, error) {
	guard, err := t.pool.FetchPageRead(t.headerPageID)
	if err != nil {
		return headerPage{}, err
	}
	defer guard.Drop()
	return util.ToStruct[headerPage](guard.Data())
}

func (t *BPlusTree) setRootPageID(pageID int64) error {
	guard, err := t.pool.FetchPageWrite(t.headerPageID)
	if err != nil {
		return err
	}
	defer guard.Drop()

	data, err := util.ToByteSlice(headerPage{RootPageID: pageID})
	if err != nil {
		return err
	}
	copy(guard.DataMut(), data)
	return nil
}

// Scan returns every RID whose key falls within [start, stop], walking
// the leaf chain from the first matching leaf (spec §6 scan_key).
func (t *BPlusTree) Scan(start, stop Key) ([]table.RID, error) {
	header, err := t.getHeader()
	if err != nil {
		return nil, err
	}
	if header.RootPageID == disk.InvalidPageID {
		return nil, nil
	}

	leafID, err := t.findLeaf(header.RootPageID, start)
	if err != nil {
		return nil, err
	}

	var out []table.RID
	for leafID != disk.InvalidPageID {
		guard, err := t.pool.FetchPageRead(leafID)
		if err != nil {
			return nil, err
		}
		leaf, err := decodeLeafPage(guard.Data())
		if err != nil {
			guard.Drop()
			return nil, err
		}
		next := leaf.Next
		guard.Drop()

		done := false
		for i, k := range leaf.Keys {
			if keyLess(k, start) {
				continue
			}
			if keyLess(stop, k) {
				done = true
				break
			}
			out = append(out, leaf.Values[i])
		}
		if done {
			break
		}
		leafID = next
	}
	return out, nil
}

// findLeaf descends from rootID to the leaf page that would hold key.
func (t *BPlusTree) findLeaf(rootID int64, key Key) (int64, error) {
	pageID := rootID
	for {
		guard, err := t.pool.FetchPageRead(pageID)
		if err != nil {
			return disk.InvalidPageID, err
		}
		kind, err := decodePageKind(guard.Data())
		if err != nil {
			guard.Drop()
			return disk.InvalidPageID, err
		}
		if kind == leafPageKind {
			guard.Drop()
			return pageID, nil
		}
		internal, err := decodeInternalPage(guard.Data())
		guard.Drop()
		if err != nil {
			return disk.InvalidPageID, err
		}
		pageID = internal.childFor(key)
	}
}

// Insert adds (key, rid) to the tree, splitting leaves and internal
// pages bottom-up as needed (spec §6).
func (t *BPlusTree) Insert(key Key, rid table.RID) error {
	header, err := t.getHeader()
	if err != nil {
		return err
	}

	if header.RootPageID == disk.InvalidPageID {
		pageID, guard, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		leaf := newLeafPage(pageID, disk.InvalidPageID)
		leaf.insertAt(key, rid)
		if err := t.writeLeaf(guard, leaf); err != nil {
			return err
		}
		return t.setRootPageID(pageID)
	}

	leafID, err := t.findLeaf(header.RootPageID, key)
	if err != nil {
		return err
	}

	guard, err := t.pool.FetchPageWrite(leafID)
	if err != nil {
		return err
	}
	leaf, err := decodeLeafPage(guard.Data())
	if err != nil {
		guard.Drop()
		return err
	}

	leaf.insertAt(key, rid)
	if leaf.size() <= maxEntries {
		return t.writeLeaf(guard, leaf)
	}

	return t.splitLeaf(guard, leaf)
}

// splitLeaf carves leaf in half, links the new right sibling in, and
// propagates the separator key up to the parent.
func (t *BPlusTree) splitLeaf(guard *buffer.WritePageGuard, leaf *leafPage) error {
	mid := leaf.size() / 2

	newID, newGuard, err := t.pool.NewPage()
	if err != nil {
		guard.Drop()
		return err
	}
	right := newLeafPage(newID, leaf.ParentID)
	right.Keys = append(right.Keys, leaf.Keys[mid:]...)
	right.Values = append(right.Values, leaf.Values[mid:]...)
	right.Next = leaf.Next
	right.Prev = leaf.PageID

	leaf.Keys = leaf.Keys[:mid]
	leaf.Values = leaf.Values[:mid]
	leaf.Next = newID

	if err := t.writeLeaf(guard, leaf); err != nil {
		newGuard.Drop()
		return err
	}
	if err := t.writeLeaf(newGuard, right); err != nil {
		return err
	}

	if right.Next != disk.InvalidPageID {
		if err := t.relinkPrev(right.Next, newID); err != nil {
			return err
		}
	}

	separator := right.Keys[0]
	return t.insertIntoParent(leaf.PageID, leaf.ParentID, separator, newID)
}

func (t *BPlusTree) relinkPrev(pageID, prevID int64) error {
	guard, err := t.pool.FetchPageWrite(pageID)
	if err != nil {
		return err
	}
	leaf, err := decodeLeafPage(guard.Data())
	if err != nil {
		guard.Drop()
		return err
	}
	leaf.Prev = prevID
	return t.writeLeaf(guard, leaf)
}

// insertIntoParent installs (separator, newChild) as the right sibling
// of childID in childID's parent, creating a new root if childID had
// none, and recursing into splitInternal if the parent overflows.
func (t *BPlusTree) insertIntoParent(childID, parentID int64, separator Key, newChild int64) error {
	if parentID == disk.InvalidPageID {
		newRootID, guard, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		root := newInternalPage(newRootID, disk.InvalidPageID)
		root.Children = []int64{childID, newChild}
		root.Keys = []Key{separator}
		if err := t.writeInternal(guard, root); err != nil {
			return err
		}
		if err := t.reparent(childID, newRootID); err != nil {
			return err
		}
		if err := t.reparent(newChild, newRootID); err != nil {
			return err
		}
		return t.setRootPageID(newRootID)
	}

	guard, err := t.pool.FetchPageWrite(parentID)
	if err != nil {
		return err
	}
	parent, err := decodeInternalPage(guard.Data())
	if err != nil {
		guard.Drop()
		return err
	}

	childIdx := parent.indexOfChild(childID)
	if childIdx < 0 {
		guard.Drop()
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("index: child %d not found in parent %d", childID, parentID))
	}
	parent.insertChild(childIdx, separator, newChild)
	if err := t.reparent(newChild, parentID); err != nil {
		return err
	}

	if parent.size() <= maxEntries {
		return t.writeInternal(guard, parent)
	}
	return t.splitInternal(guard, parent)
}

// splitInternal carves an overflowing internal page: the middle key
// moves up as the new separator rather than being duplicated, since
// internal pages (unlike leaves) hold routing keys, not data.
func (t *BPlusTree) splitInternal(guard *buffer.WritePageGuard, p *internalPage) error {
	mid := len(p.Keys) / 2
	upKey := p.Keys[mid]

	newID, newGuard, err := t.pool.NewPage()
	if err != nil {
		guard.Drop()
		return err
	}
	right := newInternalPage(newID, p.ParentID)
	right.Keys = append(right.Keys, p.Keys[mid+1:]...)
	right.Children = append(right.Children, p.Children[mid+1:]...)

	p.Keys = p.Keys[:mid]
	p.Children = p.Children[:mid+1]

	if err := t.writeInternal(guard, p); err != nil {
		newGuard.Drop()
		return err
	}
	if err := t.writeInternal(newGuard, right); err != nil {
		return err
	}

	for _, c := range right.Children {
		if err := t.reparent(c, newID); err != nil {
			return err
		}
	}

	return t.insertIntoParent(p.PageID, p.ParentID, upKey, newID)
}

// reparent updates a child page's stored ParentID after it moves under
// a new or split parent.
func (t *BPlusTree) reparent(childID, parentID int64) error {
	guard, err := t.pool.FetchPageWrite(childID)
	if err != nil {
		return err
	}
	kind, err := decodePageKind(guard.Data())
	if err != nil {
		guard.Drop()
		return err
	}
	if kind == leafPageKind {
		leaf, err := decodeLeafPage(guard.Data())
		if err != nil {
			guard.Drop()
			return err
		}
		leaf.ParentID = parentID
		return t.writeLeaf(guard, leaf)
	}
	internal, err := decodeInternalPage(guard.Data())
	if err != nil {
		guard.Drop()
		return err
	}
	internal.ParentID = parentID
	return t.writeInternal(guard, internal)
}

// Delete removes (key, rid) from the tree. Underflow merging is not
// implemented: a sparse tree after heavy deletion costs extra split
// depth, not correctness, and the spec's Non-goals exclude rebalancing
// policy.
func (t *BPlusTree) Delete(key Key, rid table.RID) error {
	header, err := t.getHeader()
	if err != nil {
		return err
	}
	if header.RootPageID == disk.InvalidPageID {
		return nil
	}

	leafID, err := t.findLeaf(header.RootPageID, key)
	if err != nil {
		return err
	}
	guard, err := t.pool.FetchPageWrite(leafID)
	if err != nil {
		return err
	}
	leaf, err := decodeLeafPage(guard.Data())
	if err != nil {
		guard.Drop()
		return err
	}
	leaf.removeAt(key, rid)
	return t.writeLeaf(guard, leaf)
}

func (t *BPlusTree) writeLeaf(guard *buffer.WritePageGuard, p *leafPage) error {
	defer guard.Drop()
	data, err := encodeLeafPage(p)
	if err != nil {
		return err
	}
	copy(guard.DataMut(), data)
	return nil
}

func (t *BPlusTree) writeInternal(guard *buffer.WritePageGuard, p *internalPage) error {
	defer guard.Drop()
	data, err := encodeInternalPage(p)
	if err != nil {
		return err
	}
	copy(guard.DataMut(), data)
	return nil
}

func keyLess(a, b Key) bool {
	return bytes.Compare(a, b) < 0
}
