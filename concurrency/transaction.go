// Package concurrency implements the MVCC transaction manager of spec
// §4.5-§4.8: the watermark clock, the transaction map with its undo
// logs and per-RID version chains, and the snapshot-read / write
// protocols layered on top of storage/table.
package concurrency

import (
	"fmt"
	"sync"
)

// TxnStartID is the low end of the transaction-id domain (spec §3):
// ids occupy the high half of the timestamp space so a tuple's
// temporary timestamp (meta.ts == some txn's id) can never collide
// with a real commit timestamp.
const TxnStartID int64 = 1 << 62

// InvalidTxnID is the undo-link sentinel for "no previous version."
const InvalidTxnID int64 = 0

// InvalidTs marks a transaction that has not yet committed.
const InvalidTs int64 = -1

// IsolationLevel mirrors the three levels spec §3 names; this kernel
// only ever treats SERIALIZABLE specially (via the verifyTxn stub).
type IsolationLevel uint8

const (
	ReadUncommitted IsolationLevel = iota
	SnapshotIsolation
	Serializable
)

// State is a transaction's lifecycle stage (spec §3).
type State uint8

const (
	Running State = iota
	Tainted
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Tainted:
		return "tainted"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// UndoLink points at a previous version of a tuple: the transaction
// that wrote it and that transaction's local undo-log index.
type UndoLink struct {
	PrevTxnID  int64
	PrevLogIdx int
}

// IsValid reports whether the link actually points at something.
func (l UndoLink) IsValid() bool { return l.PrevTxnID != InvalidTxnID }

// UndoLog is a reverse diff capturing a tuple's state immediately
// before a transaction's first write to it (spec §3/§4.8). Unlike the
// original's packed-column capture, PartialTuple here always holds the
// full preimage row: a later write by the same transaction only needs
// to widen ModifiedFields (for read-reconstruction bookkeeping), never
// re-capture bytes, which also makes abort's undo-replay a direct
// restore instead of a column-by-column merge.
type UndoLog struct {
	IsDeleted      bool
	ModifiedFields []bool
	PartialTuple   []byte
	Ts             int64
	Prev           UndoLink
}

// Transaction tracks everything a running unit of work needs: its
// snapshot, its undo logs, and the RIDs it has touched (spec §3).
type Transaction struct {
	mu sync.Mutex

	id        int64
	isolation IsolationLevel
	state     State
	readTs    int64
	commitTs  int64

	undoLogs       []UndoLog
	writeSet       map[uint32]map[RID]struct{}
	scanPredicates map[uint32][]any
}

func newTransaction(id int64, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		isolation:      isolation,
		state:          Running,
		commitTs:       InvalidTs,
		writeSet:       make(map[uint32]map[RID]struct{}),
		scanPredicates: make(map[uint32][]any),
	}
}

// ID returns the transaction's id, also its temporary timestamp until
// commit (spec §3: "a transaction's temporary timestamp equals its id").
func (t *Transaction) ID() int64 { return t.id }

// TempTs is an alias for ID emphasizing its use as meta.ts.
func (t *Transaction) TempTs() int64 { return t.id }

func (t *Transaction) Isolation() IsolationLevel { return t.isolation }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// SetTainted marks a RUNNING transaction TAINTED after a write-write
// conflict. Calling it on any other state is a caller-contract bug, so
// it panics rather than returning an error, mirroring the original's
// terminate-on-misuse behavior.
func (t *Transaction) SetTainted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		panic(fmt.Sprintf("concurrency: SetTainted called on transaction %d in state %s", t.id, t.state))
	}
	t.state = Tainted
}

func (t *Transaction) ReadTs() int64 { return t.readTs }

func (t *Transaction) CommitTs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitTs
}

func (t *Transaction) setCommitTs(ts int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitTs = ts
}

// AppendUndoLog records a new undo log and returns the link to it.
func (t *Transaction) AppendUndoLog(log UndoLog) UndoLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLogs = append(t.undoLogs, log)
	return UndoLink{PrevTxnID: t.id, PrevLogIdx: len(t.undoLogs) - 1}
}

// ModifyUndoLog overwrites an existing log in place (used to widen it
// on a repeated write to the same RID).
func (t *Transaction) ModifyUndoLog(idx int, log UndoLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLogs[idx] = log
}

// GetUndoLog returns the log at idx, or ok=false if out of range.
func (t *Transaction) GetUndoLog(idx int) (UndoLog, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.undoLogs) {
		return UndoLog{}, false
	}
	return t.undoLogs[idx], true
}

// UndoLogCount returns how many undo logs this transaction has ever
// appended, used by garbage collection as the starting visible-count.
func (t *Transaction) UndoLogCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.undoLogs)
}

// AppendWriteSet records that this transaction touched rid in tableOID.
func (t *Transaction) AppendWriteSet(tableOID uint32, r RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.writeSet[tableOID]
	if !ok {
		set = make(map[RID]struct{})
		t.writeSet[tableOID] = set
	}
	set[r] = struct{}{}
}

// WriteSet returns a snapshot of every RID this transaction has
// written, grouped by table.
func (t *Transaction) WriteSet() map[uint32][]RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint32][]RID, len(t.writeSet))
	for oid, set := range t.writeSet {
		rids := make([]RID, 0, len(set))
		for r := range set {
			rids = append(rids, r)
		}
		out[oid] = rids
	}
	return out
}

// AppendScanPredicate records a predicate evaluated during this
// transaction's scans, for a future SERIALIZABLE certifier to read
// (spec §9 open question 3) — recorded but not yet consumed.
func (t *Transaction) AppendScanPredicate(tableOID uint32, predicate any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scanPredicates[tableOID] = append(t.scanPredicates[tableOID], predicate)
}

// ScanPredicates returns the recorded predicates for tableOID.
func (t *Transaction) ScanPredicates(tableOID uint32) []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]any(nil), t.scanPredicates[tableOID]...)
}

// RID mirrors storage/table.RID's shape; callers convert at the
// boundary (table.RID(concurrency.RID{...}) and back) since both are
// identically laid out structs of (int64, uint32).
type RID struct {
	PageID  int64
	SlotNum uint32
}
