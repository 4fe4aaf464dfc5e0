package execution

import (
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// NestedLoopJoin rebuilds every match in Init (spec §4.10.3): for each
// left row, re-Init the right child and evaluate the predicate
// pairwise. LEFT emits (left, NULLs) when no right row matched.
type NestedLoopJoin struct {
	left, right Executor
	predicate   expression.Expression
	leftOuter   bool
	schema      types.Schema

	rows []types.Row
	pos  int
}

func NewNestedLoopJoin(left, right Executor, predicate expression.Expression, leftOuter bool) *NestedLoopJoin {
	return &NestedLoopJoin{
		left: left, right: right, predicate: predicate, leftOuter: leftOuter,
		schema: types.Concat(left.Schema(), right.Schema()),
	}
}

func (j *NestedLoopJoin) Schema() types.Schema { return j.schema }

func (j *NestedLoopJoin) Init() error {
	if err := j.left.Init(); err != nil {
		return err
	}

	j.rows = nil
	for {
		leftRow, _, ok, err := j.left.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if err := j.right.Init(); err != nil {
			return err
		}
		matched := false
		for {
			rightRow, _, ok, err := j.right.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}

			isMatch := true
			if j.predicate != nil {
				isMatch, err = expression.IsTrueJoin(j.predicate, leftRow, j.left.Schema(), rightRow, j.right.Schema())
				if err != nil {
					return err
				}
			}
			if isMatch {
				matched = true
				j.rows = append(j.rows, concatRows(leftRow, rightRow))
			}
		}

		if j.leftOuter && !matched {
			j.rows = append(j.rows, concatRows(leftRow, nullRow(j.right.Schema())))
		}
	}

	j.pos = 0
	return nil
}

func (j *NestedLoopJoin) Next() (types.Row, table.RID, bool, error) {
	if j.pos >= len(j.rows) {
		return types.Row{}, table.RID{}, false, nil
	}
	row := j.rows[j.pos]
	j.pos++
	return row, table.RID{}, true, nil
}

func concatRows(left, right types.Row) types.Row {
	out := make([]types.Value, 0, len(left.Values)+len(right.Values))
	out = append(out, left.Values...)
	out = append(out, right.Values...)
	return types.Row{Values: out}
}

func nullRow(schema types.Schema) types.Row {
	out := make([]types.Value, len(schema.Columns))
	for i, col := range schema.Columns {
		out[i] = types.NewNull(col.Kind)
	}
	return types.Row{Values: out}
}
