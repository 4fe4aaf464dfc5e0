package execution

import (
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// AggFunc names one of the five aggregates spec §4.10.5 lists.
type AggFunc uint8

const (
	CountStar AggFunc = iota
	Count
	Sum
	Min
	Max
)

// AggExpr is one aggregate output column: the function and the
// expression it's applied over (Input is unused for CountStar).
// ResultKind types the column's null accumulator before any row has
// contributed to it.
type AggExpr struct {
	Func       AggFunc
	Input      expression.Expression
	ResultKind types.Kind
	Name       string
}

// Aggregation groups input rows by GroupBys and maintains one running
// accumulator set per group (spec §4.10.5). It is a blocking operator:
// Init drains the child entirely before Next can yield anything.
type Aggregation struct {
	child    Executor
	groupBys []expression.Expression
	aggs     []AggExpr
	schema   types.Schema

	rows []types.Row
	pos  int
}

func NewAggregation(child Executor, groupBys []expression.Expression, aggs []AggExpr) *Aggregation {
	cols := make([]types.Column, 0, len(groupBys)+len(aggs))
	for range groupBys {
		cols = append(cols, types.Column{Name: "group_by", Kind: types.Integer})
	}
	for _, a := range aggs {
		kind := a.ResultKind
		if a.Func == CountStar || a.Func == Count {
			kind = types.Integer
		}
		cols = append(cols, types.Column{Name: a.Name, Kind: kind})
	}
	return &Aggregation{child: child, groupBys: groupBys, aggs: aggs, schema: types.NewSchema(cols...)}
}

func (a *Aggregation) Schema() types.Schema { return a.schema }

type groupState struct {
	groupValues []types.Value
	countStar   int64
	counts      []int64
	values      []types.Value
}

func (a *Aggregation) Init() error {
	if err := a.child.Init(); err != nil {
		return err
	}

	order := make([]*groupState, 0)
	buckets := make(map[uint64][]*groupState)

	for {
		row, _, ok, err := a.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		groupValues := make([]types.Value, len(a.groupBys))
		for i, e := range a.groupBys {
			v, err := e.Evaluate(row, a.child.Schema())
			if err != nil {
				return err
			}
			groupValues[i] = v
		}
		// Bucket by xxhash of the group-by values, same scheme as the
		// hash-join's build side; a hash collision buckets unrelated
		// groups together, so every candidate in the bucket is
		// re-verified column-by-column via keysEqual before reuse.
		h := hashKey(groupValues)

		var state *groupState
		for _, candidate := range buckets[h] {
			if keysEqual(candidate.groupValues, groupValues) {
				state = candidate
				break
			}
		}
		if state == nil {
			state = &groupState{
				groupValues: groupValues,
				counts:      make([]int64, len(a.aggs)),
				values:      make([]types.Value, len(a.aggs)),
			}
			for i, agg := range a.aggs {
				state.values[i] = types.NewNull(agg.ResultKind)
			}
			buckets[h] = append(buckets[h], state)
			order = append(order, state)
		}
		state.countStar++

		for i, agg := range a.aggs {
			if agg.Func == CountStar {
				continue
			}
			v, err := agg.Input.Evaluate(row, a.child.Schema())
			if err != nil {
				return err
			}
			switch agg.Func {
			case Count:
				if !v.IsNull() {
					state.counts[i]++
				}
			case Sum:
				state.values[i] = state.values[i].Add(v)
			case Min:
				state.values[i] = state.values[i].Min(v)
			case Max:
				state.values[i] = state.values[i].Max(v)
			}
		}
	}

	a.rows = nil
	if len(order) == 0 && len(a.groupBys) == 0 {
		// Spec §4.10.5: empty input with no GROUP BY still emits one
		// row (COUNT(*)=0, everything else NULL).
		values := make([]types.Value, len(a.aggs))
		for i, agg := range a.aggs {
			if agg.Func == CountStar || agg.Func == Count {
				values[i] = types.NewInteger(0)
			} else {
				values[i] = types.NewNull(agg.ResultKind)
			}
		}
		a.rows = append(a.rows, types.Row{Values: values})
	} else {
		for _, state := range order {
			out := make([]types.Value, 0, len(state.groupValues)+len(a.aggs))
			out = append(out, state.groupValues...)
			for i, agg := range a.aggs {
				switch agg.Func {
				case CountStar:
					out = append(out, types.NewInteger(state.countStar))
				case Count:
					out = append(out, types.NewInteger(state.counts[i]))
				default:
					out = append(out, state.values[i])
				}
			}
			a.rows = append(a.rows, types.Row{Values: out})
		}
	}

	a.pos = 0
	return nil
}

func (a *Aggregation) Next() (types.Row, table.RID, bool, error) {
	if a.pos >= len(a.rows) {
		return types.Row{}, table.RID{}, false, nil
	}
	row := a.rows[a.pos]
	a.pos++
	return row, table.RID{}, true, nil
}
