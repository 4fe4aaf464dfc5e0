package concurrency

import (
	"fmt"
	"sync"

	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/util"
	"go.uber.org/zap"
)

// pageVersionInfo is the per-page slice of the version_info map (spec
// §4.6): a page-local latch guarding that page's slot->UndoLink table,
// so unrelated pages never contend on a single global lock.
type pageVersionInfo struct {
	mu   sync.Mutex
	prev map[uint32]UndoLink
}

// TableResolver looks up the table heap a write-set's RIDs belong to.
// Commit and Abort need it to stamp/restore base tuples; it is
// supplied by the caller (the catalog, once built) so this package
// never imports it and risks a cycle.
type TableResolver func(tableOID uint32) (*table.Heap, bool)

// BaseTimestampFunc looks up a RID's current base meta.ts, used by
// GarbageCollect's visible-count traversal (spec §4.6 step 3).
type BaseTimestampFunc func(rid RID) (int64, error)

// TransactionManager owns the transaction map, the watermark clock,
// and the per-RID version-link table (spec §4.6).
type TransactionManager struct {
	txnMapMu  sync.RWMutex
	txnMap    map[int64]*Transaction
	nextTxnID int64

	commitMu     sync.Mutex
	lastCommitTs int64

	versionInfoMu sync.RWMutex
	versionInfo   map[int64]*pageVersionInfo

	watermark *Watermark

	log *zap.Logger
}

// NewTransactionManager starts a fresh manager with no committed
// history (commit_ts 0).
func NewTransactionManager(log *zap.Logger) *TransactionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransactionManager{
		txnMap:      make(map[int64]*Transaction),
		nextTxnID:   TxnStartID,
		versionInfo: make(map[int64]*pageVersionInfo),
		watermark:   NewWatermark(0),
		log:         log.With(zap.String("component", "transaction_manager")),
	}
}

// Watermark exposes the clock for read-protocol snapshot checks.
func (tm *TransactionManager) Watermark() *Watermark { return tm.watermark }

// Begin allocates a new transaction id and snapshot (spec §4.6).
func (tm *TransactionManager) Begin(isolation IsolationLevel) *Transaction {
	tm.txnMapMu.Lock()
	defer tm.txnMapMu.Unlock()

	id := tm.nextTxnID
	tm.nextTxnID++

	txn := newTransaction(id, isolation)
	txn.readTs = tm.watermark.LatestCommitTs()
	tm.txnMap[id] = txn

	if err := tm.watermark.AddTxn(txn.readTs); err != nil {
		tm.log.Error("watermark rejected new transaction's read ts", zap.Error(err))
	}

	tm.log.Debug("began transaction", zap.Int64("txn_id", id), zap.Int64("read_ts", txn.readTs))
	return txn
}

// verifyTxn is the SERIALIZABLE certifier stub (spec §9 open question
// 3): this core always accepts. A faithful certifier (e.g. SSI) would
// read txn.ScanPredicates here.
func (tm *TransactionManager) verifyTxn(_ *Transaction) bool { return true }

// Commit finalizes txn: assigns it a commit timestamp, stamps every
// tuple in its write set, and retires it from the watermark (spec
// §4.6). It returns false (without error) only when SERIALIZABLE
// verification fails and the transaction was demoted to Abort.
func (tm *TransactionManager) Commit(txn *Transaction, resolve TableResolver) (bool, error) {
	tm.commitMu.Lock()
	defer tm.commitMu.Unlock()

	if txn.State() != Running {
		return false, util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("commit called on transaction %d in state %s", txn.ID(), txn.State()))
	}

	if txn.Isolation() == Serializable && !tm.verifyTxn(txn) {
		if err := tm.abortLocked(txn, resolve); err != nil {
			return false, err
		}
		return false, nil
	}

	commitTs := tm.lastCommitTs + 1
	tm.lastCommitTs = commitTs

	for tableOID, rids := range txn.WriteSet() {
		heap, ok := resolve(tableOID)
		if !ok {
			continue
		}
		for _, r := range rids {
			meta, err := heap.GetTupleMeta(table.RID(r))
			if err != nil {
				return false, fmt.Errorf("concurrency: commit: %w", err)
			}
			meta.Ts = commitTs
			if err := heap.UpdateTupleMeta(table.RID(r), meta); err != nil {
				return false, fmt.Errorf("concurrency: commit: %w", err)
			}
		}
	}

	txn.setCommitTs(commitTs)
	txn.setState(Committed)
	if err := tm.watermark.UpdateCommitTs(commitTs); err != nil {
		return false, err
	}
	tm.watermark.RemoveTxn(txn.ReadTs())

	tm.log.Debug("committed transaction", zap.Int64("txn_id", txn.ID()), zap.Int64("commit_ts", commitTs))
	return true, nil
}

// Abort rolls txn's writes back via undo-log replay (spec §9 open
// question 1, resolved here rather than relying on GC to mask
// uncommitted bases) and retires it from the watermark.
func (tm *TransactionManager) Abort(txn *Transaction, resolve TableResolver) error {
	state := txn.State()
	if state != Running && state != Tainted {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("abort called on transaction %d in state %s", txn.ID(), state))
	}
	return tm.abortLocked(txn, resolve)
}

// abortLocked performs the rollback; split out so Commit's
// SERIALIZABLE-failure path can demote straight to it while already
// holding commitMu.
func (tm *TransactionManager) abortLocked(txn *Transaction, resolve TableResolver) error {
	for tableOID, rids := range txn.WriteSet() {
		heap, ok := resolve(tableOID)
		if !ok {
			continue
		}
		for _, r := range rids {
			if err := tm.rollbackRID(txn, heap, table.RID(r)); err != nil {
				return fmt.Errorf("concurrency: abort: %w", err)
			}
		}
	}

	txn.setState(Aborted)
	tm.watermark.RemoveTxn(txn.ReadTs())
	tm.log.Debug("aborted transaction", zap.Int64("txn_id", txn.ID()))
	return nil
}

// rollbackRID restores a single RID to the state it held before txn's
// first write, or tombstones it if txn's write was a fresh insert with
// no prior version to restore.
func (tm *TransactionManager) rollbackRID(txn *Transaction, heap *table.Heap, r table.RID) error {
	link, ok := tm.GetVersionLink(RID(r))
	if !ok || link.PrevTxnID != txn.ID() {
		meta, err := heap.GetTupleMeta(r)
		if err != nil {
			return err
		}
		meta.IsDeleted = true
		return heap.UpdateTupleMeta(r, meta)
	}

	log, err := tm.GetUndoLog(link)
	if err != nil {
		return err
	}

	meta := table.Meta{Ts: log.Ts, IsDeleted: log.IsDeleted}
	restored, err := heap.UpdateTupleInPlace(r, meta, log.PartialTuple, nil)
	if err != nil {
		return err
	}
	if !restored {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("abort rollback: preimage no longer fits rid %+v", r))
	}

	if log.Prev.IsValid() {
		tm.UpdateVersionLink(RID(r), &log.Prev, nil)
	} else {
		tm.UpdateVersionLink(RID(r), nil, nil)
	}
	return nil
}

// UpdateVersionLink installs (or erases, if link is nil) the version
// link for rid, optionally validated by check against the current
// link first (spec §4.6).
func (tm *TransactionManager) UpdateVersionLink(r RID, link *UndoLink, check func(*UndoLink) bool) bool {
	tm.versionInfoMu.Lock()
	pvi, ok := tm.versionInfo[r.PageID]
	if !ok {
		pvi = &pageVersionInfo{prev: make(map[uint32]UndoLink)}
		tm.versionInfo[r.PageID] = pvi
	}
	pvi.mu.Lock()
	tm.versionInfoMu.Unlock()
	defer pvi.mu.Unlock()

	if check != nil {
		if current, exists := pvi.prev[r.SlotNum]; exists {
			if !check(&current) {
				return false
			}
		} else if !check(nil) {
			return false
		}
	}

	if link != nil {
		pvi.prev[r.SlotNum] = *link
	} else {
		delete(pvi.prev, r.SlotNum)
	}
	return true
}

// GetVersionLink returns rid's current version link, the head of its
// undo chain.
func (tm *TransactionManager) GetVersionLink(r RID) (UndoLink, bool) {
	tm.versionInfoMu.RLock()
	pvi, ok := tm.versionInfo[r.PageID]
	if !ok {
		tm.versionInfoMu.RUnlock()
		return UndoLink{}, false
	}
	pvi.mu.Lock()
	tm.versionInfoMu.RUnlock()
	defer pvi.mu.Unlock()

	link, ok := pvi.prev[r.SlotNum]
	return link, ok
}

// GetUndoLink is GetVersionLink under the name spec §4.6 uses for the
// read-protocol call site.
func (tm *TransactionManager) GetUndoLink(r RID) (UndoLink, bool) {
	return tm.GetVersionLink(r)
}

// GetUndoLog resolves link through the transaction map. A link whose
// owning transaction (or log index) cannot be found is a chain- or
// GC-maintenance bug once the caller has already ruled out "dangling"
// (spec §7 missing_undo_log).
func (tm *TransactionManager) GetUndoLog(link UndoLink) (UndoLog, error) {
	tm.txnMapMu.RLock()
	txn, ok := tm.txnMap[link.PrevTxnID]
	tm.txnMapMu.RUnlock()
	if !ok {
		return UndoLog{}, util.NewError(util.KindMissingUndoLog,
			fmt.Sprintf("undo link's owning transaction %d not found", link.PrevTxnID))
	}

	log, ok := txn.GetUndoLog(link.PrevLogIdx)
	if !ok {
		return UndoLog{}, util.NewError(util.KindMissingUndoLog,
			fmt.Sprintf("undo log index %d not found in transaction %d", link.PrevLogIdx, link.PrevTxnID))
	}
	return log, nil
}

// TryGetUndoLog is GetUndoLog without raising an error for a dangling
// link: used by reconstruction and GC traversal, where a missing
// owner just means the chain terminates here.
func (tm *TransactionManager) TryGetUndoLog(link UndoLink) (UndoLog, bool) {
	tm.txnMapMu.RLock()
	txn, ok := tm.txnMap[link.PrevTxnID]
	tm.txnMapMu.RUnlock()
	if !ok {
		return UndoLog{}, false
	}
	return txn.GetUndoLog(link.PrevLogIdx)
}

// GarbageCollect implements the stop-the-world sweep of spec §4.6
// step 3: any COMMITTED or ABORTED transaction whose undo logs are no
// longer reachable by any chain walk relevant to the current watermark
// is dropped from the transaction map, freeing its undo-log arena.
func (tm *TransactionManager) GarbageCollect(baseTs BaseTimestampFunc) error {
	w := tm.watermark.GetWatermark()

	tm.txnMapMu.RLock()
	visible := make(map[int64]int, len(tm.txnMap))
	for id, txn := range tm.txnMap {
		visible[id] = txn.UndoLogCount()
	}

	// GC is the one operation allowed to hold versionInfoMu across the
	// per-page latches instead of dropping it first (spec §5: ordinary
	// ops drop the parent before taking a child latch; GC is explicitly
	// stop-the-world and this is its exception).
	tm.versionInfoMu.RLock()
	for pageID, pvi := range tm.versionInfo {
		pvi.mu.Lock()
		for slot, link := range pvi.prev {
			base, err := baseTs(RID{PageID: pageID, SlotNum: slot})
			if err != nil {
				pvi.mu.Unlock()
				tm.versionInfoMu.RUnlock()
				tm.txnMapMu.RUnlock()
				return err
			}
			tm.decrementChain(link, w, base, visible)
		}
		pvi.mu.Unlock()
	}
	tm.versionInfoMu.RUnlock()
	tm.txnMapMu.RUnlock()

	tm.txnMapMu.Lock()
	defer tm.txnMapMu.Unlock()
	removed := 0
	for id, count := range visible {
		if count > 0 {
			continue
		}
		txn, ok := tm.txnMap[id]
		if !ok {
			continue
		}
		if s := txn.State(); s == Committed || s == Aborted {
			delete(tm.txnMap, id)
			removed++
		}
	}
	tm.log.Debug("garbage collection", zap.Int64("watermark", w), zap.Int("removed", removed))
	return nil
}

// decrementChain walks one version chain, decrementing each log's
// owning transaction's visible-count when that log's diff is no
// longer needed by any reader at or after the watermark (spec §4.6
// step 2). Call tm.txnMap and each transaction's undo logs only while
// the caller holds txnMapMu for reading.
func (tm *TransactionManager) decrementChain(head UndoLink, watermark, baseTs int64, visible map[int64]int) {
	link := head
	isHead := true
	for link.IsValid() {
		txn, ok := tm.txnMap[link.PrevTxnID]
		if !ok {
			return // dangling: this chain terminates here.
		}
		log, ok := txn.GetUndoLog(link.PrevLogIdx)
		if !ok {
			return
		}

		if log.Ts < watermark && (!isHead || baseTs <= watermark) {
			visible[link.PrevTxnID]--
		}

		link = log.Prev
		isHead = false
	}
}
