package execution

import (
	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// IndexScan answers an equality or range predicate on an indexed
// leading column directly off the B+tree, then re-checks MVCC
// visibility on each candidate RID exactly as SeqScan does (spec
// §4.10 "Index Scan"): the index only narrows *which* physical records
// to look at, visibility is still decided per-record.
type IndexScan struct {
	ctx       *ExecutorContext
	tableInfo *catalog.TableInfo
	indexInfo *catalog.IndexInfo
	low, high types.Value // range bounds on the index's leading key column

	rids []table.RID
	pos  int
}

// NewIndexScan builds a scan over [low, high] on indexInfo's leading
// key column. A point lookup is expressed as low == high.
func NewIndexScan(ctx *ExecutorContext, tableInfo *catalog.TableInfo, indexInfo *catalog.IndexInfo, low, high types.Value) *IndexScan {
	return &IndexScan{ctx: ctx, tableInfo: tableInfo, indexInfo: indexInfo, low: low, high: high}
}

func (s *IndexScan) Schema() types.Schema { return s.tableInfo.Schema }

func (s *IndexScan) Init() error {
	// The index key format (buildIndexKey) length-prefixes every key
	// column, even a single one, so the scan bounds must go through
	// the same encoding rather than a bare EncodeKey() or the prefix
	// would desync the byte-comparison order the tree relies on.
	low := buildIndexKey(types.Row{Values: []types.Value{s.low}}, []int{0})
	high := buildIndexKey(types.Row{Values: []types.Value{s.high}}, []int{0})

	rids, err := s.indexInfo.Tree.Scan(low, high)
	if err != nil {
		return err
	}
	s.rids = rids
	s.pos = 0
	return nil
}

func (s *IndexScan) Next() (types.Row, table.RID, bool, error) {
	for s.pos < len(s.rids) {
		rid := s.rids[s.pos]
		s.pos++

		meta, tuple, err := s.tableInfo.Heap.GetTuple(rid)
		if err != nil {
			return types.Row{}, table.RID{}, false, err
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
	return types.Row{}, table.RID{}, false, nil
}
