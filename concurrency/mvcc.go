package concurrency

import (
	"fmt"

	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/util"
)

// Visible reports whether a base (meta, ts) pair is directly visible
// to txn without walking any undo chain: either it committed at or
// before txn's snapshot, or txn wrote it itself this transaction
// (spec §4.7 step 1).
func Visible(txn *Transaction, ts int64) bool {
	return ts <= txn.ReadTs() || ts == txn.ID()
}

// CollectVisibleLogs walks rid's undo chain from head, gathering every
// log newer than txn's snapshot plus the first log at or before it —
// the exact prefix spec §4.7 step 2 says reconstruction needs. ok is
// false if the chain runs out (invalid or dangling link) before such a
// boundary log is found, meaning the tuple is invisible to txn.
func (tm *TransactionManager) CollectVisibleLogs(head UndoLink, txn *Transaction) (logs []UndoLog, ok bool) {
	link := head
	for link.IsValid() {
		log, found := tm.TryGetUndoLog(link)
		if !found {
			return logs, false
		}
		logs = append(logs, log)
		if log.Ts <= txn.ReadTs() {
			return logs, true
		}
		link = log.Prev
	}
	return logs, false
}

// Reconstruct replays logs (in the chain order CollectVisibleLogs
// returns, head to boundary) over base to produce the tuple visible at
// the snapshot those logs were collected for, per spec §4.7 step 3.
// Because every UndoLog.PartialTuple holds a full preimage row (see
// UndoLog's doc comment), replaying is a plain "take the last log that
// touched each column" overlay with no schema needed: overlay is
// supplied by the caller only to know which columns ModifiedFields
// selects, so this stays decoupled from any particular tuple codec.
func Reconstruct(base []byte, baseDeleted bool, logs []UndoLog, overlay func(dst, src []byte, fields []bool) []byte) ([]byte, bool) {
	tuple := base
	isDeleted := baseDeleted
	for _, log := range logs {
		isDeleted = log.IsDeleted
		if log.IsDeleted {
			continue
		}
		tuple = overlay(tuple, log.PartialTuple, log.ModifiedFields)
	}
	if isDeleted {
		return nil, false
	}
	return tuple, true
}

// ConflictCheck implements spec §4.8's conflict rule: a write fails,
// tainting txn, if the tuple's base timestamp is neither owned by txn
// nor already visible to it.
func ConflictCheck(txn *Transaction, meta table.Meta) error {
	if meta.Ts > txn.ReadTs() && meta.Ts != txn.ID() {
		txn.SetTainted()
		return util.NewError(util.KindWriteWriteConflict,
			fmt.Sprintf("write-write conflict: base ts %d newer than txn %d's read ts %d", meta.Ts, txn.ID(), txn.ReadTs()))
	}
	return nil
}

// RecordWrite performs the undo-log bookkeeping half of spec §4.8 for
// a single RID write (insert, update, or delete) by txn: append a
// fresh undo log on txn's first touch of rid, widen the existing one
// on a repeat touch, or do nothing for a fresh insert (no older
// version exists to preserve). It does not install the new value —
// the caller writes the base tuple itself after this returns.
//
// currentMeta/currentTuple are rid's state as read immediately before
// this write (the preimage); modifiedFields marks which columns this
// write is about to change and is stored on the undo log as given
// (ignored for fresh inserts, which get no undo log).
func (tm *TransactionManager) RecordWrite(
	txn *Transaction,
	tableOID uint32,
	r RID,
	currentMeta table.Meta,
	currentTuple []byte,
	isFreshInsert bool,
	modifiedFields []bool,
) error {
	txn.AppendWriteSet(tableOID, r)

	if isFreshInsert {
		return nil
	}

	if currentMeta.Ts == txn.ID() {
		return tm.widenOwnUndoLog(txn, r, modifiedFields)
	}

	log := UndoLog{
		IsDeleted:      currentMeta.IsDeleted,
		ModifiedFields: modifiedFields,
		PartialTuple:   currentTuple,
		Ts:             currentMeta.Ts,
	}
	if prev, ok := tm.GetVersionLink(r); ok {
		log.Prev = prev
	}

	link := txn.AppendUndoLog(log)
	if !tm.UpdateVersionLink(r, &link, nil) {
		return util.NewError(util.KindInvariantViolation,
			fmt.Sprintf("failed to install version link for rid %+v", r))
	}
	return nil
}

// widenOwnUndoLog merges newly touched columns into the undo log txn
// already created for rid this transaction. The captured bytes never
// change (they are already a full preimage from txn's first write);
// only the modified-fields bookkeeping grows, for the benefit of
// readers whose Reconstruct overlay wants to know which columns this
// transaction has touched overall.
func (tm *TransactionManager) widenOwnUndoLog(txn *Transaction, r RID, newFields []bool) error {
	link, ok := tm.GetVersionLink(r)
	if !ok || link.PrevTxnID != txn.ID() {
		return nil // fresh insert by txn this transaction: nothing to widen.
	}

	log, ok := txn.GetUndoLog(link.PrevLogIdx)
	if !ok {
		return util.NewError(util.KindMissingUndoLog,
			fmt.Sprintf("transaction %d missing its own undo log at index %d", txn.ID(), link.PrevLogIdx))
	}

	width := len(log.ModifiedFields)
	if len(newFields) > width {
		width = len(newFields)
	}
	merged := make([]bool, width)
	for i, v := range log.ModifiedFields {
		merged[i] = merged[i] || v
	}
	for i, v := range newFields {
		merged[i] = merged[i] || v
	}
	log.ModifiedFields = merged

	txn.ModifyUndoLog(link.PrevLogIdx, log)
	return nil
}
