package execution

import (
	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// SeqScan walks a table's heap in physical order, applying the MVCC
// read protocol to each record and an optional residual predicate
// (spec §4.10 "Seq Scan").
type SeqScan struct {
	ctx       *ExecutorContext
	tableInfo *catalog.TableInfo
	predicate expression.Expression

	it *table.Iterator
}

// NewSeqScan builds a sequential scan over tableInfo's heap. predicate
// may be nil for an unfiltered scan.
func NewSeqScan(ctx *ExecutorContext, tableInfo *catalog.TableInfo, predicate expression.Expression) *SeqScan {
	return &SeqScan{ctx: ctx, tableInfo: tableInfo, predicate: predicate}
}

func (s *SeqScan) Schema() types.Schema { return s.tableInfo.Schema }

func (s *SeqScan) Init() error {
	it, err := s.tableInfo.Heap.MakeIterator()
	if err != nil {
		return err
	}
	s.it = it
	return nil
}

func (s *SeqScan) Next() (types.Row, table.RID, bool, error) {
	for {
		rid, meta, tuple, ok, err := s.it.Next()
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if !ok {
			return types.Row{}, table.RID{}, false, nil
		}

		// Fast path (spec §4.10.1): test the predicate against the base
		// tuple before paying for MVCC reconstruction. A predicate
		// rejection here skips the record outright, even if the
		// reconstructed snapshot would have matched differently.
		if s.predicate != nil {
			baseRow, err := types.DecodeRow(tuple)
			if err != nil {
				return types.Row{}, table.RID{}, false, err
			}
			matched, err := expression.IsTrue(s.predicate, baseRow, s.tableInfo.Schema)
			if err != nil {
				return types.Row{}, table.RID{}, false, err
			}
			if !matched {
				continue
			}
		}

		row, visible, err := s.ctx.readVisible(rid, meta, tuple)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if !visible {
			continue
		}

		return row, rid, true, nil
	}
}
