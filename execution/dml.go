package execution

import (
	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/concurrency"
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// countSchema is the single-row, single-column result every DML
// executor emits (spec §4.10.8: "a single row containing the count of
// affected rows").
func countSchema() types.Schema {
	return types.NewSchema(types.Column{Name: "count", Kind: types.Integer})
}

func countRow(n int64) types.Row {
	return types.Row{Values: []types.Value{types.NewInteger(n)}}
}

func maintainInsertIndexes(ctx *ExecutorContext, tableInfo *catalog.TableInfo, row types.Row, rid table.RID) error {
	for _, idx := range ctx.Catalog.TableIndexes(tableInfo.Name) {
		if err := idx.Tree.Insert(buildIndexKey(row, idx.KeyColumns), rid); err != nil {
			return err
		}
	}
	return nil
}

func maintainDeleteIndexes(ctx *ExecutorContext, tableInfo *catalog.TableInfo, row types.Row, rid table.RID) error {
	for _, idx := range ctx.Catalog.TableIndexes(tableInfo.Name) {
		if err := idx.Tree.Delete(buildIndexKey(row, idx.KeyColumns), rid); err != nil {
			return err
		}
	}
	return nil
}

// Insert evaluates child eagerly (spec §4.10.8: "all buffer children
// eagerly") and appends each row as a fresh tuple; no undo log is
// needed since no older version exists for a fresh insert, only the
// write-set entry.
type Insert struct {
	ctx       *ExecutorContext
	tableInfo *catalog.TableInfo
	child     Executor
	done      bool
}

func NewInsert(ctx *ExecutorContext, tableInfo *catalog.TableInfo, child Executor) *Insert {
	return &Insert{ctx: ctx, tableInfo: tableInfo, child: child}
}

func (ins *Insert) Schema() types.Schema { return countSchema() }

func (ins *Insert) Init() error {
	ins.done = false
	return ins.child.Init()
}

func (ins *Insert) Next() (types.Row, table.RID, bool, error) {
	if ins.done {
		return types.Row{}, table.RID{}, false, nil
	}
	ins.done = true

	var count int64
	for {
		row, _, ok, err := ins.child.Next()
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if !ok {
			break
		}

		data, err := types.EncodeRow(row)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		rid, err := ins.tableInfo.Heap.Insert(table.Meta{Ts: ins.ctx.Txn.ID()}, data)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if err := ins.ctx.TxnManager.RecordWrite(ins.ctx.Txn, ins.tableInfo.OID, concurrency.RID(rid), table.Meta{}, nil, true, nil); err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if err := maintainInsertIndexes(ins.ctx, ins.tableInfo, row, rid); err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		count++
	}
	return countRow(count), table.RID{}, true, nil
}

// Update's child yields the rows to replace (typically a filtered
// scan) alongside their RID; Exprs computes each output column's new
// value against the old row, so an unchanged column is just a
// ColumnRef back to itself.
type Update struct {
	ctx       *ExecutorContext
	tableInfo *catalog.TableInfo
	child     Executor
	exprs     []expression.Expression
	done      bool
}

func NewUpdate(ctx *ExecutorContext, tableInfo *catalog.TableInfo, child Executor, exprs []expression.Expression) *Update {
	return &Update{ctx: ctx, tableInfo: tableInfo, child: child, exprs: exprs}
}

func (u *Update) Schema() types.Schema { return countSchema() }

func (u *Update) Init() error {
	u.done = false
	return u.child.Init()
}

func (u *Update) Next() (types.Row, table.RID, bool, error) {
	if u.done {
		return types.Row{}, table.RID{}, false, nil
	}
	u.done = true

	var count int64
	for {
		oldRow, rid, ok, err := u.child.Next()
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if !ok {
			break
		}

		meta, oldTuple, err := u.tableInfo.Heap.GetTuple(rid)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if err := concurrency.ConflictCheck(u.ctx.Txn, meta); err != nil {
			return types.Row{}, table.RID{}, false, err
		}

		newValues := make([]types.Value, len(u.exprs))
		for i, e := range u.exprs {
			v, err := e.Evaluate(oldRow, u.tableInfo.Schema)
			if err != nil {
				return types.Row{}, table.RID{}, false, err
			}
			newValues[i] = v
		}
		newRow := types.Row{Values: newValues}
		fields := changedFields(oldRow, newRow)

		if err := u.ctx.TxnManager.RecordWrite(u.ctx.Txn, u.tableInfo.OID, concurrency.RID(rid), meta, oldTuple, false, fields); err != nil {
			return types.Row{}, table.RID{}, false, err
		}

		newData, err := types.EncodeRow(newRow)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		newMeta := table.Meta{Ts: u.ctx.Txn.ID()}
		fitted, err := u.tableInfo.Heap.UpdateTupleInPlace(rid, newMeta, newData, nil)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}

		finalRid := rid
		if !fitted {
			// Open question 4: the new row no longer fits its slot's
			// reserved capacity. Tombstone the old slot and reinsert
			// fresh, recording the reinsert as its own write-set entry
			// since it is, from the heap's perspective, a brand new RID.
			if err := u.tableInfo.Heap.UpdateTupleMeta(rid, table.Meta{Ts: u.ctx.Txn.ID(), IsDeleted: true}); err != nil {
				return types.Row{}, table.RID{}, false, err
			}
			newRid, err := u.tableInfo.Heap.Insert(table.Meta{Ts: u.ctx.Txn.ID()}, newData)
			if err != nil {
				return types.Row{}, table.RID{}, false, err
			}
			if err := u.ctx.TxnManager.RecordWrite(u.ctx.Txn, u.tableInfo.OID, concurrency.RID(newRid), table.Meta{}, nil, true, nil); err != nil {
				return types.Row{}, table.RID{}, false, err
			}
			finalRid = newRid
		}

		for _, idx := range u.ctx.Catalog.TableIndexes(u.tableInfo.Name) {
			if err := idx.Tree.Delete(buildIndexKey(oldRow, idx.KeyColumns), rid); err != nil {
				return types.Row{}, table.RID{}, false, err
			}
			if err := idx.Tree.Insert(buildIndexKey(newRow, idx.KeyColumns), finalRid); err != nil {
				return types.Row{}, table.RID{}, false, err
			}
		}
		count++
	}
	return countRow(count), table.RID{}, true, nil
}

// Delete's child yields the rows to remove alongside their RID.
type Delete struct {
	ctx       *ExecutorContext
	tableInfo *catalog.TableInfo
	child     Executor
	done      bool
}

func NewDelete(ctx *ExecutorContext, tableInfo *catalog.TableInfo, child Executor) *Delete {
	return &Delete{ctx: ctx, tableInfo: tableInfo, child: child}
}

func (d *Delete) Schema() types.Schema { return countSchema() }

func (d *Delete) Init() error {
	d.done = false
	return d.child.Init()
}

func (d *Delete) Next() (types.Row, table.RID, bool, error) {
	if d.done {
		return types.Row{}, table.RID{}, false, nil
	}
	d.done = true

	var count int64
	for {
		row, rid, ok, err := d.child.Next()
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if !ok {
			break
		}

		meta, tuple, err := d.tableInfo.Heap.GetTuple(rid)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if err := concurrency.ConflictCheck(d.ctx.Txn, meta); err != nil {
			return types.Row{}, table.RID{}, false, err
		}

		fields := make([]bool, len(row.Values))
		for i := range fields {
			fields[i] = true
		}
		if err := d.ctx.TxnManager.RecordWrite(d.ctx.Txn, d.tableInfo.OID, concurrency.RID(rid), meta, tuple, false, fields); err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if err := d.tableInfo.Heap.UpdateTupleMeta(rid, table.Meta{Ts: d.ctx.Txn.ID(), IsDeleted: true}); err != nil {
			return types.Row{}, table.RID{}, false, err
		}

		if err := maintainDeleteIndexes(d.ctx, d.tableInfo, row, rid); err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		count++
	}
	return countRow(count), table.RID{}, true, nil
}
