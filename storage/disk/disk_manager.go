package disk

import (
	"fmt"
	"os"
)

// Manager owns the single page file backing the kernel. It tracks which
// page ids have been materialized to an offset in the file, a free list
// of reclaimed offsets, and grows the file geometrically as needed.
//
// Manager is driven exclusively by the Scheduler's single worker
// goroutine (§4 "Disk Scheduler (external)... single worker"); it holds
// no lock of its own.
type Manager struct {
	dbFile       *os.File
	offsets      map[int64]int64
	freeSlots    []int64
	pageCapacity int64
}

// NewManager wraps an already-open file. The file is truncated up to
// DefaultPageCapacity pages if it is smaller than that.
func NewManager(file *os.File) (*Manager, error) {
	dm := &Manager{
		dbFile:       file,
		offsets:      make(map[int64]int64),
		pageCapacity: DefaultPageCapacity,
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("disk: stat db file: %w", err)
	}
	if info.Size() < dm.pageCapacity*PageSize {
		if err := os.Truncate(file.Name(), dm.pageCapacity*PageSize); err != nil {
			return nil, fmt.Errorf("disk: grow db file: %w", err)
		}
	}

	return dm, nil
}

// WritePage persists data (must be exactly PageSize bytes) at pageID,
// allocating a file offset for it on first write.
func (dm *Manager) WritePage(pageID int64, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("disk: write page %d: payload is %d bytes, want %d", pageID, len(data), PageSize)
	}

	offset, ok := dm.offsets[pageID]
	if !ok {
		var err error
		offset, err = dm.allocate()
		if err != nil {
			return err
		}
		dm.offsets[pageID] = offset
	}

	if _, err := dm.dbFile.WriteAt(data, offset); err != nil {
		return fmt.Errorf("disk: write page %d at offset %d: %w", pageID, offset, err)
	}
	return nil
}

// ReadPage returns the PageSize bytes stored for pageID. Reading a page
// id that has never been written returns a zeroed buffer without
// allocating, mirroring a sparse file's implicit hole semantics.
func (dm *Manager) ReadPage(pageID int64) ([]byte, error) {
	offset, ok := dm.offsets[pageID]
	if !ok {
		return make([]byte, PageSize), nil
	}

	buf := make([]byte, PageSize)
	if _, err := dm.dbFile.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("disk: read page %d at offset %d: %w", pageID, offset, err)
	}
	return buf, nil
}

// DeletePage returns the page's file offset to the free list. The
// bytes already on disk are left untouched until the offset is reused.
func (dm *Manager) DeletePage(pageID int64) {
	if offset, ok := dm.offsets[pageID]; ok {
		dm.freeSlots = append(dm.freeSlots, offset)
		delete(dm.offsets, pageID)
	}
}

func (dm *Manager) allocate() (int64, error) {
	if len(dm.freeSlots) > 0 {
		offset := dm.freeSlots[0]
		dm.freeSlots = dm.freeSlots[1:]
		return offset, nil
	}

	if int64(len(dm.offsets))+1 > dm.pageCapacity {
		dm.pageCapacity *= 2
		if err := os.Truncate(dm.dbFile.Name(), dm.pageCapacity*PageSize); err != nil {
			return -1, fmt.Errorf("disk: grow db file: %w", err)
		}
	}

	return int64(len(dm.offsets)) * PageSize, nil
}
