package execution

import (
	"os"
	"path"
	"testing"

	"github.com/corvidb/corvid/buffer"
	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/concurrency"
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/index"
	"github.com/corvidb/corvid/storage/disk"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	pool *buffer.PoolManager
	cat  *catalog.Catalog
	tm   *concurrency.TransactionManager
}

func newTestEnv(t *testing.T, poolSize int) *testEnv {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")
	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	dm, err := disk.NewManager(file)
	require.NoError(t, err)
	sched := disk.NewScheduler(dm)
	t.Cleanup(sched.Close)

	pool := buffer.NewPoolManager(poolSize, 2, sched, nil)
	return &testEnv{pool: pool, cat: catalog.New(), tm: concurrency.NewTransactionManager(nil)}
}

func peopleSchema() types.Schema {
	return types.NewSchema(
		types.Column{Name: "id", Kind: types.Integer},
		types.Column{Name: "name", Kind: types.Varchar},
	)
}

func (e *testEnv) createTable(t *testing.T, name string) *catalog.TableInfo {
	t.Helper()
	heap, err := table.NewHeap(e.pool)
	require.NoError(t, err)
	info, err := e.cat.CreateTable(name, peopleSchema(), heap)
	require.NoError(t, err)
	return info
}

func drain(t *testing.T, ex Executor) []types.Row {
	t.Helper()
	require.NoError(t, ex.Init())
	var rows []types.Row
	for {
		row, _, ok, err := ex.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows
}

func insertPeople(t *testing.T, env *testEnv, info *catalog.TableInfo, people [][2]any) {
	t.Helper()
	txn := env.tm.Begin(concurrency.SnapshotIsolation)
	ctx := &ExecutorContext{Txn: txn, TxnManager: env.tm, Catalog: env.cat}

	rows := make([]types.Row, len(people))
	for i, p := range people {
		rows[i] = types.Row{Values: []types.Value{types.NewInteger(int64(p[0].(int))), types.NewVarchar(p[1].(string))}}
	}
	ins := NewInsert(ctx, info, NewValues(info.Schema, rows))
	result := drain(t, ins)
	require.Len(t, result, 1)
	require.Equal(t, int64(len(people)), result[0].Values[0].Integer())

	ok, err := env.tm.Commit(txn, env.cat.Resolver())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSeqScanVisibility(t *testing.T) {
	env := newTestEnv(t, 16)
	info := env.createTable(t, "people")
	insertPeople(t, env, info, [][2]any{{1, "alice"}, {2, "bob"}, {3, "carol"}})

	txn := env.tm.Begin(concurrency.SnapshotIsolation)
	ctx := &ExecutorContext{Txn: txn, TxnManager: env.tm, Catalog: env.cat}
	scan := NewSeqScan(ctx, info, nil)
	rows := drain(t, scan)
	require.Len(t, rows, 3)

	_, err := env.tm.Commit(txn, env.cat.Resolver())
	require.NoError(t, err)
}

func TestSeqScanPredicate(t *testing.T) {
	env := newTestEnv(t, 16)
	info := env.createTable(t, "people")
	insertPeople(t, env, info, [][2]any{{1, "alice"}, {2, "bob"}})

	txn := env.tm.Begin(concurrency.SnapshotIsolation)
	ctx := &ExecutorContext{Txn: txn, TxnManager: env.tm, Catalog: env.cat}
	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id"}, Right: expression.Literal{Value: types.NewInteger(2)}}
	scan := NewSeqScan(ctx, info, pred)
	rows := drain(t, scan)
	require.Len(t, rows, 1)
	require.Equal(t, "bob", rows[0].Values[1].Varchar())
}

func TestSeqScanPredicateEvaluatesAgainstBaseTuple(t *testing.T) {
	env := newTestEnv(t, 16)
	info := env.createTable(t, "people")
	insertPeople(t, env, info, [][2]any{{1, "alice"}})

	reader := env.tm.Begin(concurrency.SnapshotIsolation)

	writer := env.tm.Begin(concurrency.SnapshotIsolation)
	writerCtx := &ExecutorContext{Txn: writer, TxnManager: env.tm, Catalog: env.cat}
	updateAll := NewUpdate(writerCtx, info, NewSeqScan(writerCtx, info, nil), []expression.Expression{
		expression.ColumnRef{Name: "id"},
		expression.Literal{Value: types.NewVarchar("alice2")},
	})
	_ = drain(t, updateAll)
	ok, err := env.tm.Commit(writer, env.cat.Resolver())
	require.NoError(t, err)
	require.True(t, ok)

	readerCtx := &ExecutorContext{Txn: reader, TxnManager: env.tm, Catalog: env.cat}

	// The physical base tuple now reads "alice2" (the writer's commit
	// installed it in place), but reader's snapshot predates the update,
	// so reconstruction yields "alice". A predicate matching the base
	// tuple ("alice2") must still run and emit the reconstructed,
	// non-matching value — the fast path decides whether to
	// reconstruct at all, not what the final row looks like.
	matchesBase := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "name"}, Right: expression.Literal{Value: types.NewVarchar("alice2")}}
	rows := drain(t, NewSeqScan(readerCtx, info, matchesBase))
	require.Len(t, rows, 1, "base tuple matched the fast-path predicate, so the row must be reconstructed and emitted")
	require.Equal(t, "alice", rows[0].Values[1].Varchar(), "the emitted row is the reconstructed snapshot value, not the base tuple")

	// Conversely, a predicate matching only the reconstructed value
	// ("alice") but not the current base tuple ("alice2") must be
	// rejected by the fast path before reconstruction ever runs.
	matchesReconstructed := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "name"}, Right: expression.Literal{Value: types.NewVarchar("alice")}}
	rows = drain(t, NewSeqScan(readerCtx, info, matchesReconstructed))
	require.Len(t, rows, 0, "the base tuple no longer matches, so the fast path must skip the row even though reconstruction would have matched")

	_, err = env.tm.Commit(reader, env.cat.Resolver())
	require.NoError(t, err)
}

func TestSnapshotIsolationAcrossInsertExecutors(t *testing.T) {
	env := newTestEnv(t, 16)
	info := env.createTable(t, "people")
	insertPeople(t, env, info, [][2]any{{1, "alice"}})

	reader := env.tm.Begin(concurrency.SnapshotIsolation)
	insertPeople(t, env, info, [][2]any{{2, "bob"}})

	readerCtx := &ExecutorContext{Txn: reader, TxnManager: env.tm, Catalog: env.cat}
	rows := drain(t, NewSeqScan(readerCtx, info, nil))
	require.Len(t, rows, 1, "a snapshot begun before the second insert must not see it")

	_, err := env.tm.Commit(reader, env.cat.Resolver())
	require.NoError(t, err)
}

func TestUpdateExecutor(t *testing.T) {
	env := newTestEnv(t, 16)
	info := env.createTable(t, "people")
	insertPeople(t, env, info, [][2]any{{1, "alice"}, {2, "bob"}})

	txn := env.tm.Begin(concurrency.SnapshotIsolation)
	ctx := &ExecutorContext{Txn: txn, TxnManager: env.tm, Catalog: env.cat}
	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id"}, Right: expression.Literal{Value: types.NewInteger(1)}}
	scan := NewSeqScan(ctx, info, pred)

	exprs := []expression.Expression{
		expression.ColumnRef{Name: "id"},
		expression.Literal{Value: types.NewVarchar("alicia")},
	}
	upd := NewUpdate(ctx, info, scan, exprs)
	result := drain(t, upd)
	require.Len(t, result, 1)
	require.Equal(t, int64(1), result[0].Values[0].Integer())

	ok, err := env.tm.Commit(txn, env.cat.Resolver())
	require.NoError(t, err)
	require.True(t, ok)

	verify := env.tm.Begin(concurrency.SnapshotIsolation)
	verifyCtx := &ExecutorContext{Txn: verify, TxnManager: env.tm, Catalog: env.cat}
	rows := drain(t, NewSeqScan(verifyCtx, info, nil))
	names := map[int64]string{}
	for _, r := range rows {
		names[r.Values[0].Integer()] = r.Values[1].Varchar()
	}
	require.Equal(t, "alicia", names[1])
	require.Equal(t, "bob", names[2])
}

func TestDeleteExecutor(t *testing.T) {
	env := newTestEnv(t, 16)
	info := env.createTable(t, "people")
	insertPeople(t, env, info, [][2]any{{1, "alice"}, {2, "bob"}})

	txn := env.tm.Begin(concurrency.SnapshotIsolation)
	ctx := &ExecutorContext{Txn: txn, TxnManager: env.tm, Catalog: env.cat}
	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id"}, Right: expression.Literal{Value: types.NewInteger(1)}}
	scan := NewSeqScan(ctx, info, pred)

	del := NewDelete(ctx, info, scan)
	result := drain(t, del)
	require.Equal(t, int64(1), result[0].Values[0].Integer())

	_, err := env.tm.Commit(txn, env.cat.Resolver())
	require.NoError(t, err)

	verify := env.tm.Begin(concurrency.SnapshotIsolation)
	verifyCtx := &ExecutorContext{Txn: verify, TxnManager: env.tm, Catalog: env.cat}
	rows := drain(t, NewSeqScan(verifyCtx, info, nil))
	require.Len(t, rows, 1)
	require.Equal(t, "bob", rows[0].Values[1].Varchar())
}

func TestIndexScan(t *testing.T) {
	env := newTestEnv(t, 16)
	info := env.createTable(t, "people")

	tree, err := index.NewBPlusTree("people_id_idx", env.pool)
	require.NoError(t, err)
	_, err = env.cat.CreateIndex("people_id_idx", "people", []int{0}, tree)
	require.NoError(t, err)

	insertPeople(t, env, info, [][2]any{{1, "alice"}, {2, "bob"}, {3, "carol"}})

	idxInfo, ok := env.cat.MatchIndex("people", 0)
	require.True(t, ok)

	txn := env.tm.Begin(concurrency.SnapshotIsolation)
	ctx := &ExecutorContext{Txn: txn, TxnManager: env.tm, Catalog: env.cat}
	scan := NewIndexScan(ctx, info, idxInfo, types.NewInteger(2), types.NewInteger(2))
	rows := drain(t, scan)
	require.Len(t, rows, 1)
	require.Equal(t, "bob", rows[0].Values[1].Varchar())
}

func TestNestedLoopJoinInner(t *testing.T) {
	leftSchema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	rightSchema := types.NewSchema(types.Column{Name: "ref_id", Kind: types.Integer}, types.Column{Name: "tag", Kind: types.Varchar})

	left := NewValues(leftSchema, []types.Row{
		{Values: []types.Value{types.NewInteger(1)}},
		{Values: []types.Value{types.NewInteger(2)}},
	})
	right := NewValues(rightSchema, []types.Row{
		{Values: []types.Value{types.NewInteger(2), types.NewVarchar("x")}},
	})

	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id", Side: expression.LeftSide}, Right: expression.ColumnRef{Name: "ref_id", Side: expression.RightSide}}
	join := NewNestedLoopJoin(left, right, pred, false)
	rows := drain(t, join)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0].Values[0].Integer())
	require.Equal(t, "x", rows[0].Values[2].Varchar())
}

func TestNestedLoopJoinLeftOuter(t *testing.T) {
	leftSchema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	rightSchema := types.NewSchema(types.Column{Name: "ref_id", Kind: types.Integer})

	left := NewValues(leftSchema, []types.Row{
		{Values: []types.Value{types.NewInteger(1)}},
	})
	right := NewValues(rightSchema, nil)

	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id", Side: expression.LeftSide}, Right: expression.ColumnRef{Name: "ref_id", Side: expression.RightSide}}
	join := NewNestedLoopJoin(left, right, pred, true)
	rows := drain(t, join)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Values[1].IsNull())
}

func TestHashJoinInner(t *testing.T) {
	leftSchema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	rightSchema := types.NewSchema(types.Column{Name: "ref_id", Kind: types.Integer}, types.Column{Name: "tag", Kind: types.Varchar})

	left := NewValues(leftSchema, []types.Row{
		{Values: []types.Value{types.NewInteger(1)}},
		{Values: []types.Value{types.NewInteger(2)}},
		{Values: []types.Value{types.NewInteger(3)}},
	})
	right := NewValues(rightSchema, []types.Row{
		{Values: []types.Value{types.NewInteger(2), types.NewVarchar("x")}},
		{Values: []types.Value{types.NewInteger(3), types.NewVarchar("y")}},
	})

	join := NewHashJoin(left, right,
		[]expression.Expression{expression.ColumnRef{Name: "id"}},
		[]expression.Expression{expression.ColumnRef{Name: "ref_id"}},
		false)
	rows := drain(t, join)
	require.Len(t, rows, 2)
}

func TestAggregationGroupBy(t *testing.T) {
	schema := types.NewSchema(types.Column{Name: "category", Kind: types.Varchar}, types.Column{Name: "amount", Kind: types.Integer})
	src := NewValues(schema, []types.Row{
		{Values: []types.Value{types.NewVarchar("a"), types.NewInteger(10)}},
		{Values: []types.Value{types.NewVarchar("a"), types.NewInteger(5)}},
		{Values: []types.Value{types.NewVarchar("b"), types.NewInteger(7)}},
	})

	agg := NewAggregation(src,
		[]expression.Expression{expression.ColumnRef{Name: "category"}},
		[]AggExpr{
			{Func: CountStar, Name: "cnt"},
			{Func: Sum, Input: expression.ColumnRef{Name: "amount"}, ResultKind: types.Integer, Name: "total"},
		})
	rows := drain(t, agg)
	require.Len(t, rows, 2)

	totals := map[string]int64{}
	counts := map[string]int64{}
	for _, r := range rows {
		cat := r.Values[0].Varchar()
		counts[cat] = r.Values[1].Integer()
		totals[cat] = r.Values[2].Integer()
	}
	require.Equal(t, int64(2), counts["a"])
	require.Equal(t, int64(15), totals["a"])
	require.Equal(t, int64(1), counts["b"])
	require.Equal(t, int64(7), totals["b"])
}

func TestAggregationEmptyInputNoGroupBy(t *testing.T) {
	schema := types.NewSchema(types.Column{Name: "amount", Kind: types.Integer})
	src := NewValues(schema, nil)
	agg := NewAggregation(src, nil, []AggExpr{
		{Func: CountStar, Name: "cnt"},
		{Func: Sum, Input: expression.ColumnRef{Name: "amount"}, ResultKind: types.Integer, Name: "total"},
	})
	rows := drain(t, agg)
	require.Len(t, rows, 1)
	require.Equal(t, int64(0), rows[0].Values[0].Integer())
	require.True(t, rows[0].Values[1].IsNull())
}

func TestSortAndTopN(t *testing.T) {
	schema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	src := NewValues(schema, []types.Row{
		{Values: []types.Value{types.NewInteger(3)}},
		{Values: []types.Value{types.NewInteger(1)}},
		{Values: []types.Value{types.NewInteger(2)}},
	})

	sorted := NewSort(src, []OrderByExpr{{Expr: expression.ColumnRef{Name: "id"}}})
	rows := drain(t, sorted)
	require.Equal(t, []int64{1, 2, 3}, []int64{rows[0].Values[0].Integer(), rows[1].Values[0].Integer(), rows[2].Values[0].Integer()})

	src2 := NewValues(schema, []types.Row{
		{Values: []types.Value{types.NewInteger(3)}},
		{Values: []types.Value{types.NewInteger(1)}},
		{Values: []types.Value{types.NewInteger(2)}},
	})
	top := NewTopN(src2, []OrderByExpr{{Expr: expression.ColumnRef{Name: "id"}, Desc: true}}, 2)
	rows = drain(t, top)
	require.Len(t, rows, 2)
	require.Equal(t, int64(3), rows[0].Values[0].Integer())
	require.Equal(t, int64(2), rows[1].Values[0].Integer())
}

func TestLimit(t *testing.T) {
	schema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	src := NewValues(schema, []types.Row{
		{Values: []types.Value{types.NewInteger(1)}},
		{Values: []types.Value{types.NewInteger(2)}},
		{Values: []types.Value{types.NewInteger(3)}},
	})
	lim := NewLimit(src, 2)
	rows := drain(t, lim)
	require.Len(t, rows, 2)
}

func TestWindowRankAndSum(t *testing.T) {
	schema := types.NewSchema(types.Column{Name: "grp", Kind: types.Varchar}, types.Column{Name: "score", Kind: types.Integer})
	src := NewValues(schema, []types.Row{
		{Values: []types.Value{types.NewVarchar("a"), types.NewInteger(10)}},
		{Values: []types.Value{types.NewVarchar("a"), types.NewInteger(10)}},
		{Values: []types.Value{types.NewVarchar("a"), types.NewInteger(5)}},
	})

	win := NewWindow(src,
		[]expression.Expression{expression.ColumnRef{Name: "grp"}},
		[]OrderByExpr{{Expr: expression.ColumnRef{Name: "score"}, Desc: true}},
		[]WindowExpr{
			{Func: WinRank, Name: "rnk"},
			{Func: WinSum, Input: expression.ColumnRef{Name: "score"}, ResultKind: types.Integer, Name: "running_sum"},
		})
	rows := drain(t, win)
	require.Len(t, rows, 3)

	ranks := map[int64]int64{}
	sums := map[int64]int64{}
	for _, r := range rows {
		score := r.Values[1].Integer()
		ranks[score] = r.Values[2].Integer()
		sums[score] = r.Values[3].Integer()
	}
	require.Equal(t, int64(1), ranks[10])
	require.Equal(t, int64(3), ranks[5], "rank must skip by the tie group's size (two 10s, so the next distinct value ranks 3rd)")
	require.Equal(t, int64(25), sums[5], "the last row's running sum covers the whole partition (10 + 10 + 5)")
}

func TestFilterAndProjection(t *testing.T) {
	schema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer}, types.Column{Name: "name", Kind: types.Varchar})
	src := NewValues(schema, []types.Row{
		{Values: []types.Value{types.NewInteger(1), types.NewVarchar("alice")}},
		{Values: []types.Value{types.NewInteger(2), types.NewVarchar("bob")}},
	})

	pred := expression.Comparison{Op: expression.Eq, Left: expression.ColumnRef{Name: "id"}, Right: expression.Literal{Value: types.NewInteger(2)}}
	filtered := NewFilter(src, pred)

	projSchema := types.NewSchema(types.Column{Name: "name", Kind: types.Varchar})
	proj := NewProjection(filtered, []expression.Expression{expression.ColumnRef{Name: "name"}}, projSchema)

	rows := drain(t, proj)
	require.Len(t, rows, 1)
	require.Equal(t, "bob", rows[0].Values[0].Varchar())
}
