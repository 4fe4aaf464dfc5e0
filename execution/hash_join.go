package execution

import (
	"github.com/cespare/xxhash/v2"
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// HashJoin builds a bucketed hash table over the right child keyed by
// its join-key expressions, then probes it once per left row (spec
// §4.10.4). Buckets are keyed by xxhash of the encoded key bytes;
// because hash collisions can bucket unrelated keys together, every
// candidate is re-verified column-by-column before being emitted.
type HashJoin struct {
	left, right     Executor
	leftKeys        []expression.Expression
	rightKeys       []expression.Expression
	leftOuter       bool
	schema          types.Schema

	buckets map[uint64][]types.Row
	rows    []types.Row
	pos     int
}

func NewHashJoin(left, right Executor, leftKeys, rightKeys []expression.Expression, leftOuter bool) *HashJoin {
	return &HashJoin{
		left: left, right: right, leftKeys: leftKeys, rightKeys: rightKeys, leftOuter: leftOuter,
		schema: types.Concat(left.Schema(), right.Schema()),
	}
}

func (j *HashJoin) Schema() types.Schema { return j.schema }

func hashKey(values []types.Value) uint64 {
	h := xxhash.New()
	for _, v := range values {
		_, _ = h.Write(v.EncodeKey())
		_, _ = h.Write([]byte{0}) // separator so adjacent columns can't alias
	}
	return h.Sum64()
}

func evalKeys(exprs []expression.Expression, row types.Row, schema types.Schema) ([]types.Value, error) {
	out := make([]types.Value, len(exprs))
	for i, e := range exprs {
		v, err := e.Evaluate(row, schema)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func keysEqual(a, b []types.Value) bool {
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

func (j *HashJoin) Init() error {
	if err := j.right.Init(); err != nil {
		return err
	}
	j.buckets = make(map[uint64][]types.Row)
	for {
		rightRow, _, ok, err := j.right.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keys, err := evalKeys(j.rightKeys, rightRow, j.right.Schema())
		if err != nil {
			return err
		}
		h := hashKey(keys)
		j.buckets[h] = append(j.buckets[h], rightRow)
	}

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
		leftKeys, err := evalKeys(j.leftKeys, leftRow, j.left.Schema())
		if err != nil {
			return err
		}

		matched := false
		for _, rightRow := range j.buckets[hashKey(leftKeys)] {
			rightKeys, err := evalKeys(j.rightKeys, rightRow, j.right.Schema())
			if err != nil {
				return err
			}
			if keysEqual(leftKeys, rightKeys) {
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

func (j *HashJoin) Next() (types.Row, table.RID, bool, error) {
	if j.pos >= len(j.rows) {
		return types.Row{}, table.RID{}, false, nil
	}
	row := j.rows[j.pos]
	j.pos++
	return row, table.RID{}, true, nil
}
