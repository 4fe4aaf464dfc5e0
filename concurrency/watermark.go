package concurrency

import (
	"fmt"
	"sort"
	"sync"

	"github.com/corvidb/corvid/util"
)

// readBucket counts how many active transactions share a read
// timestamp, letting the watermark track a sorted multiset with a
// plain slice instead of a tree (spec §4.5).
type readBucket struct {
	ts    int64
	count int
}

// Watermark tracks the oldest read timestamp any running transaction
// still depends on, per spec §4.5. current_reads_ (bustub's ordered
// std::map<timestamp_t,int>) becomes a slice kept sorted by ts, with
// sort.Search doing the binary-search insert/lookup original's tree
// gave for free.
type Watermark struct {
	mu sync.Mutex

	commitTs  int64
	watermark int64
	reads     []readBucket
}

// NewWatermark starts the clock at the given already-committed
// timestamp (0 for a fresh database).
func NewWatermark(commitTs int64) *Watermark {
	return &Watermark{commitTs: commitTs, watermark: commitTs}
}

// search returns the index of readTs in reads, or where it would be
// inserted to keep the slice sorted.
func (w *Watermark) search(ts int64) int {
	return sort.Search(len(w.reads), func(i int) bool { return w.reads[i].ts >= ts })
}

// AddTxn registers a new reader at readTs.
func (w *Watermark) AddTxn(readTs int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if readTs < w.commitTs {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("watermark: read ts %d is older than commit ts %d", readTs, w.commitTs))
	}

	i := w.search(readTs)
	if i < len(w.reads) && w.reads[i].ts == readTs {
		w.reads[i].count++
		return nil
	}
	w.reads = append(w.reads, readBucket{})
	copy(w.reads[i+1:], w.reads[i:])
	w.reads[i] = readBucket{ts: readTs, count: 1}
	w.watermark = w.reads[0].ts
	return nil
}

// RemoveTxn unregisters a reader at readTs, advancing the watermark if
// it was the last reader at that timestamp.
func (w *Watermark) RemoveTxn(readTs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := w.search(readTs)
	if i >= len(w.reads) || w.reads[i].ts != readTs {
		return
	}
	w.reads[i].count--
	if w.reads[i].count > 0 {
		return
	}

	w.reads = append(w.reads[:i], w.reads[i+1:]...)
	if len(w.reads) == 0 {
		w.watermark = w.commitTs
	} else {
		w.watermark = w.reads[0].ts
	}
}

// UpdateCommitTs advances the latest commit timestamp. It does not
// move the watermark itself — the caller is expected to RemoveTxn the
// committing reader afterward (spec §4.5).
func (w *Watermark) UpdateCommitTs(ts int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ts <= w.commitTs {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("watermark: commit ts %d does not advance past %d", ts, w.commitTs))
	}
	w.commitTs = ts
	return nil
}

// GetWatermark returns latest_commit_ts when no readers are active,
// else the smallest active read timestamp.
func (w *Watermark) GetWatermark() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.reads) == 0 {
		return w.commitTs
	}
	return w.watermark
}

// LatestCommitTs returns the most recent commit timestamp, used by
// Begin to stamp a new transaction's read_ts.
func (w *Watermark) LatestCommitTs() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.commitTs
}
