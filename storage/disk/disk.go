// Package disk provides the external collaborator named in spec §6: a
// single page file plus an asynchronous scheduler that serializes reads
// and writes through one worker goroutine.
package disk

// PageSize is the fixed size, in bytes, of every page in the file.
const PageSize = 4096

// InvalidPageID is the sentinel page id used throughout the kernel to
// mean "no page" (e.g. the last table page's next-page link, an empty
// B+tree's root id, or a B+tree leaf's next-leaf link at the end of
// the chain).
const InvalidPageID int64 = -1

// DefaultPageCapacity is the number of pages the file is pre-truncated
// to hold before the first growth.
const DefaultPageCapacity = 16
