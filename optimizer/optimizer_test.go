package optimizer

import (
	"os"
	"path"
	"testing"

	"github.com/corvidb/corvid/buffer"
	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/execution"
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/index"
	"github.com/corvidb/corvid/storage/disk"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")
	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	dm, err := disk.NewManager(file)
	require.NoError(t, err)
	sched := disk.NewScheduler(dm)
	t.Cleanup(sched.Close)

	pool := buffer.NewPoolManager(16, 2, sched, nil)
	heap, err := table.NewHeap(pool)
	require.NoError(t, err)

	cat := catalog.New()
	schema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer}, types.Column{Name: "name", Kind: types.Varchar})
	_, err = cat.CreateTable("people", schema, heap)
	require.NoError(t, err)

	tree, err := index.NewBPlusTree("people_id_idx", pool)
	require.NoError(t, err)
	_, err = cat.CreateIndex("people_id_idx", "people", []int{0}, tree)
	require.NoError(t, err)

	return cat
}

func TestSeqScanAsIndexScan(t *testing.T) {
	cat := newTestCatalog(t)
	info, _ := cat.TableInfoByName("people")

	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id"}, Right: expression.Literal{Value: types.NewInteger(5)}}
	plan := &execution.SeqScanPlan{Table: info, Predicate: pred}

	optimized := Optimize(plan, cat)
	scan, ok := optimized.(*execution.IndexScanPlan)
	require.True(t, ok, "expected an equality seq scan to rewrite into an index scan")
	require.Equal(t, "people_id_idx", scan.Index.Name)
	require.Equal(t, int64(5), scan.Low.Integer())
	require.Equal(t, int64(5), scan.High.Integer())
}

func TestSeqScanWithoutMatchingIndexStaysSeqScan(t *testing.T) {
	cat := newTestCatalog(t)
	info, _ := cat.TableInfoByName("people")

	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "name"}, Right: expression.Literal{Value: types.NewVarchar("bob")}}
	plan := &execution.SeqScanPlan{Table: info, Predicate: pred}

	optimized := Optimize(plan, cat)
	_, ok := optimized.(*execution.SeqScanPlan)
	require.True(t, ok, "a predicate on an unindexed column must not be rewritten")
}

func TestNLJAsHashJoin(t *testing.T) {
	cat := newTestCatalog(t)
	left := &execution.ValuesPlan{Schema: types.NewSchema(types.Column{Name: "id", Kind: types.Integer})}
	right := &execution.ValuesPlan{Schema: types.NewSchema(types.Column{Name: "ref_id", Kind: types.Integer})}
	pred := expression.Comparison{
		Op:    expression.Eq,
		Left:  expression.ColumnRef{Name: "id", Side: expression.LeftSide},
		Right: expression.ColumnRef{Name: "ref_id", Side: expression.RightSide},
	}
	plan := &execution.NestedLoopJoinPlan{Left: left, Right: right, Predicate: pred}

	optimized := Optimize(plan, cat)
	join, ok := optimized.(*execution.HashJoinPlan)
	require.True(t, ok, "expected an equality NLJ predicate to rewrite into a hash join")
	require.Len(t, join.LeftKeys, 1)
	require.Len(t, join.RightKeys, 1)
}

func TestSortLimitAsTopN(t *testing.T) {
	cat := newTestCatalog(t)
	schema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	values := &execution.ValuesPlan{Schema: schema}
	sortPlan := &execution.SortPlan{Input: values, OrderBys: []execution.OrderByExpr{{Expr: expression.ColumnRef{Name: "id"}}}}
	limitPlan := &execution.LimitPlan{Input: sortPlan, N: 3}

	optimized := Optimize(limitPlan, cat)
	topN, ok := optimized.(*execution.TopNPlan)
	require.True(t, ok, "expected Limit(Sort(...)) to rewrite into a single TopN")
	require.Equal(t, 3, topN.N)
	require.Same(t, values, topN.Input)
}

func TestOptimizeRecursesIntoChildren(t *testing.T) {
	cat := newTestCatalog(t)
	info, _ := cat.TableInfoByName("people")

	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id"}, Right: expression.Literal{Value: types.NewInteger(1)}}
	scan := &execution.SeqScanPlan{Table: info, Predicate: pred}
	limitPlan := &execution.LimitPlan{Input: scan, N: 10}

	optimized := Optimize(limitPlan, cat)
	lim, ok := optimized.(*execution.LimitPlan)
	require.True(t, ok)
	_, ok = lim.Input.(*execution.IndexScanPlan)
	require.True(t, ok, "the seq scan nested under Limit must still be rewritten")
}
