package execution

import (
	"encoding/binary"
	"sort"

	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// groupKey builds a byte-comparable, length-prefixed concatenation of
// each value's EncodeKey() — the same scheme buildIndexKey uses for
// index keys — for partitioning rows by a set of expression values.
func groupKey(values []types.Value) string {
	var buf []byte
	for _, v := range values {
		enc := v.EncodeKey()
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, enc...)
	}
	return string(buf)
}

// WindowFunc names one of the six window functions spec §4.10.7 lists
// (the five aggregates plus RANK).
type WindowFunc uint8

const (
	WinCountStar WindowFunc = iota
	WinCount
	WinSum
	WinMin
	WinMax
	WinRank
)

// WindowExpr is one window output column.
type WindowExpr struct {
	Func       WindowFunc
	Input      expression.Expression
	ResultKind types.Kind
	Name       string
}

// Window partitions input by PartitionBys, orders each partition by
// OrderBys, and computes one running value per row for each Windows
// entry (spec §4.10.7). With OrderBys present the frame is UNBOUNDED
// PRECEDING..CURRENT ROW (a running aggregate); without it the frame
// is the whole partition, so every row in a partition gets the same
// value. A blocking operator: Init drains and computes everything.
type Window struct {
	child        Executor
	partitionBys []expression.Expression
	orderBys     []OrderByExpr
	windows      []WindowExpr
	schema       types.Schema

	rows []types.Row
	pos  int
}

func NewWindow(child Executor, partitionBys []expression.Expression, orderBys []OrderByExpr, windows []WindowExpr) *Window {
	childCols := child.Schema().Columns
	cols := make([]types.Column, 0, len(childCols)+len(windows))
	cols = append(cols, childCols...)
	for _, w := range windows {
		kind := w.ResultKind
		if w.Func == WinCountStar || w.Func == WinCount || w.Func == WinRank {
			kind = types.Integer
		}
		cols = append(cols, types.Column{Name: w.Name, Kind: kind})
	}
	return &Window{
		child: child, partitionBys: partitionBys, orderBys: orderBys, windows: windows,
		schema: types.NewSchema(cols...),
	}
}

func (w *Window) Schema() types.Schema { return w.schema }

func (w *Window) Init() error {
	if err := w.child.Init(); err != nil {
		return err
	}

	var allRows []types.Row
	var partitionOrder []string
	partitions := make(map[string][]int)
	for {
		row, _, ok, err := w.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		idx := len(allRows)
		allRows = append(allRows, row)

		partVals := make([]types.Value, len(w.partitionBys))
		for i, e := range w.partitionBys {
			v, err := e.Evaluate(row, w.child.Schema())
			if err != nil {
				return err
			}
			partVals[i] = v
		}
		key := groupKey(partVals)
		if _, seen := partitions[key]; !seen {
			partitionOrder = append(partitionOrder, key)
		}
		partitions[key] = append(partitions[key], idx)
	}

	results := make([]types.Row, len(allRows))
	for _, key := range partitionOrder {
		indices := partitions[key]

		ordered := append([]int(nil), indices...)
		hasOrder := len(w.orderBys) > 0
		if hasOrder {
			orderKeys := make(map[int][]types.Value, len(indices))
			for _, idx := range indices {
				k, err := evalOrderKeys(w.orderBys, allRows[idx], w.child.Schema())
				if err != nil {
					return err
				}
				orderKeys[idx] = k
			}
			sort.SliceStable(ordered, func(i, j int) bool {
				return lexicographicLess(orderKeys[ordered[i]], orderKeys[ordered[j]], w.orderBys)
			})

			if err := w.computeRunning(allRows, ordered, orderKeys, results); err != nil {
				return err
			}
		} else {
			if err := w.computeWholePartition(allRows, indices, results); err != nil {
				return err
			}
		}
	}

	w.rows = results
	w.pos = 0
	return nil
}

// computeRunning fills results for a partition ordered by w.orderBys,
// accumulating each window function over the UNBOUNDED PRECEDING..
// CURRENT ROW frame as it scans.
func (w *Window) computeRunning(allRows []types.Row, ordered []int, orderKeys map[int][]types.Value, results []types.Row) error {
	countStar := int64(0)
	counts := make([]int64, len(w.windows))
	values := make([]types.Value, len(w.windows))
	for i, we := range w.windows {
		values[i] = types.NewNull(we.ResultKind)
	}

	rank := 0
	var prevKey []types.Value
	for pos, idx := range ordered {
		countStar++

		if prevKey == nil || !sameOrderKey(prevKey, orderKeys[idx]) {
			rank = pos + 1
		}
		prevKey = orderKeys[idx]

		row := allRows[idx]
		out := append([]types.Value(nil), row.Values...)
		for i, we := range w.windows {
			if we.Func != WinCountStar && we.Func != WinRank {
				v, err := we.Input.Evaluate(row, w.child.Schema())
				if err != nil {
					return err
				}
				switch we.Func {
				case WinCount:
					if !v.IsNull() {
						counts[i]++
					}
				case WinSum:
					values[i] = values[i].Add(v)
				case WinMin:
					values[i] = values[i].Min(v)
				case WinMax:
					values[i] = values[i].Max(v)
				}
			}
			switch we.Func {
			case WinCountStar:
				out = append(out, types.NewInteger(countStar))
			case WinCount:
				out = append(out, types.NewInteger(counts[i]))
			case WinRank:
				out = append(out, types.NewInteger(int64(rank)))
			default:
				out = append(out, values[i])
			}
		}
		results[idx] = types.Row{Values: out}
	}
	return nil
}

// computeWholePartition fills results for a partition with no
// ORDER BY: the frame is the entire partition, so every row gets the
// same aggregate value (RANK has no meaning without an ordering — it
// is 1 for every row, the whole partition being one tie group).
func (w *Window) computeWholePartition(allRows []types.Row, indices []int, results []types.Row) error {
	countStar := int64(len(indices))
	counts := make([]int64, len(w.windows))
	values := make([]types.Value, len(w.windows))
	for i, we := range w.windows {
		values[i] = types.NewNull(we.ResultKind)
	}

	for _, idx := range indices {
		row := allRows[idx]
		for i, we := range w.windows {
			if we.Func == WinCountStar || we.Func == WinRank {
				continue
			}
			v, err := we.Input.Evaluate(row, w.child.Schema())
			if err != nil {
				return err
			}
			switch we.Func {
			case WinCount:
				if !v.IsNull() {
					counts[i]++
				}
			case WinSum:
				values[i] = values[i].Add(v)
			case WinMin:
				values[i] = values[i].Min(v)
			case WinMax:
				values[i] = values[i].Max(v)
			}
		}
	}

	for _, idx := range indices {
		row := allRows[idx]
		out := append([]types.Value(nil), row.Values...)
		for i, we := range w.windows {
			switch we.Func {
			case WinCountStar:
				out = append(out, types.NewInteger(countStar))
			case WinCount:
				out = append(out, types.NewInteger(counts[i]))
			case WinRank:
				out = append(out, types.NewInteger(1))
			default:
				out = append(out, values[i])
			}
		}
		results[idx] = types.Row{Values: out}
	}
	return nil
}

func sameOrderKey(a, b []types.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].CompareEq(b[i]) != types.True {
			return false
		}
	}
	return true
}

func (w *Window) Next() (types.Row, table.RID, bool, error) {
	if w.pos >= len(w.rows) {
		return types.Row{}, table.RID{}, false, nil
	}
	row := w.rows[w.pos]
	w.pos++
	return row, table.RID{}, true, nil
}
