package execution

import (
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

// Filter re-tests a residual predicate a child couldn't push down
// (e.g. one that doesn't match an available index's leading column).
type Filter struct {
	child     Executor
	predicate expression.Expression
}

func NewFilter(child Executor, predicate expression.Expression) *Filter {
	return &Filter{child: child, predicate: predicate}
}

func (f *Filter) Schema() types.Schema { return f.child.Schema() }

func (f *Filter) Init() error { return f.child.Init() }

func (f *Filter) Next() (types.Row, table.RID, bool, error) {
	for {
		row, rid, ok, err := f.child.Next()
		if err != nil || !ok {
			return row, rid, ok, err
		}
		matched, err := expression.IsTrue(f.predicate, row, f.child.Schema())
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		if matched {
			return row, rid, true, nil
		}
	}
}

// Projection re-expresses each input row as a new list of expressions
// (column references, literals, computed values), e.g. "SELECT a, b+1".
type Projection struct {
	child  Executor
	exprs  []expression.Expression
	schema types.Schema
}

func NewProjection(child Executor, exprs []expression.Expression, schema types.Schema) *Projection {
	return &Projection{child: child, exprs: exprs, schema: schema}
}

func (p *Projection) Schema() types.Schema { return p.schema }

func (p *Projection) Init() error { return p.child.Init() }

func (p *Projection) Next() (types.Row, table.RID, bool, error) {
	row, rid, ok, err := p.child.Next()
	if err != nil || !ok {
		return types.Row{}, table.RID{}, ok, err
	}
	out := make([]types.Value, len(p.exprs))
	for i, e := range p.exprs {
		v, err := e.Evaluate(row, p.child.Schema())
		if err != nil {
			return types.Row{}, table.RID{}, false, err
		}
		out[i] = v
	}
	return types.Row{Values: out}, rid, true, nil
}

// Values emits a fixed, in-memory list of rows — a plan leaf for
// literal row sources (VALUES clauses, or a join's empty outer side).
type Values struct {
	schema types.Schema
	rows   []types.Row
	pos    int
}

func NewValues(schema types.Schema, rows []types.Row) *Values {
	return &Values{schema: schema, rows: rows}
}

func (v *Values) Schema() types.Schema { return v.schema }

func (v *Values) Init() error {
	v.pos = 0
	return nil
}

func (v *Values) Next() (types.Row, table.RID, bool, error) {
	if v.pos >= len(v.rows) {
		return types.Row{}, table.RID{}, false, nil
	}
	row := v.rows[v.pos]
	v.pos++
	return row, table.RID{}, true, nil
}
