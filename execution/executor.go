// Package execution implements the pull-based operator pipeline of
// spec §4.10: every executor pulls rows from its children one at a
// time through Init/Next, the same iterator protocol BusTub-style
// kernels use so a plan tree never materializes more than it has to.
package execution

import (
	"fmt"

	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/concurrency"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// Executor is the Init/Next protocol every operator implements. Next
// returns ok=false once exhausted, never an error alongside ok=false
// unless something actually went wrong reading the underlying state.
type Executor interface {
	Init() error
	Next() (types.Row, table.RID, bool, error)
	Schema() types.Schema
}

// ExecutorContext carries the per-statement state every executor
// needs: which transaction it reads/writes under, the managers that
// implement the MVCC protocol, and the catalog that resolves table
// and index names into live heaps and trees.
type ExecutorContext struct {
	Txn        *concurrency.Transaction
	TxnManager *concurrency.TransactionManager
	Catalog    *catalog.Catalog
}

// readVisible applies spec §4.7's read protocol to one physical
// record: if meta.ts is directly visible to ctx.Txn, the base tuple is
// the answer; otherwise the record's undo chain is walked and replayed
// up to ctx.Txn's snapshot. ok is false if the row (base or
// reconstructed) is a delete, or if no version in the chain is visible
// to ctx.Txn at all.
func (ctx *ExecutorContext) readVisible(rid table.RID, meta table.Meta, tuple []byte) (types.Row, bool, error) {
	var raw []byte
	var exists bool

	if concurrency.Visible(ctx.Txn, meta.Ts) {
		if meta.IsDeleted {
			return types.Row{}, false, nil
		}
		raw, exists = tuple, true
	} else {
		link, ok := ctx.TxnManager.GetUndoLink(concurrency.RID(rid))
		if !ok {
			return types.Row{}, false, nil
		}
		logs, ok := ctx.TxnManager.CollectVisibleLogs(link, ctx.Txn)
		if !ok {
			return types.Row{}, false, nil
		}
		raw, exists = concurrency.Reconstruct(tuple, meta.IsDeleted, logs, overlayRow)
	}
	if !exists {
		return types.Row{}, false, nil
	}

	row, err := types.DecodeRow(raw)
	if err != nil {
		return types.Row{}, false, fmt.Errorf("execution: decode tuple %+v: %w", rid, err)
	}
	return row, true, nil
}

// overlayRow is Reconstruct's per-column merge callback (spec §4.7
// step 3): both dst and src are full serialized rows (concurrency's
// UndoLog.PartialTuple always captures a whole preimage, see
// concurrency.UndoLog's doc comment), so the two are decoded and
// merged column by column per ModifiedFields rather than spliced as
// raw bytes, which a msgpack-encoded row can't support anyway. An
// empty ModifiedFields is read as "the whole row changed."
func overlayRow(dst, src []byte, fields []bool) []byte {
	srcRow, err := types.DecodeRow(src)
	if err != nil {
		return dst
	}
	if len(fields) == 0 {
		out, err := types.EncodeRow(srcRow)
		if err != nil {
			return dst
		}
		return out
	}

	dstRow, err := types.DecodeRow(dst)
	if err != nil {
		out, _ := types.EncodeRow(srcRow)
		return out
	}
	for i, changed := range fields {
		if changed && i < len(dstRow.Values) && i < len(srcRow.Values) {
			dstRow.Values[i] = srcRow.Values[i]
		}
	}
	out, err := types.EncodeRow(dstRow)
	if err != nil {
		return dst
	}
	return out
}

// changedFields reports, column by column, which positions differ
// between old and new — the ModifiedFields an update's RecordWrite
// call needs.
func changedFields(oldRow, newRow types.Row) []bool {
	n := len(oldRow.Values)
	if len(newRow.Values) > n {
		n = len(newRow.Values)
	}
	fields := make([]bool, n)
	for i := range fields {
		var oldVal, newVal types.Value
		if i < len(oldRow.Values) {
			oldVal = oldRow.Values[i]
		}
		if i < len(newRow.Values) {
			newVal = newRow.Values[i]
		}
		fields[i] = oldVal.CompareEq(newVal) != types.True
	}
	return fields
}
