// Package expression implements the small expression-tree contract
// spec §6 assumes executors evaluate against a tuple (or a pair of
// tuples, for join predicates) without specifying its shape.
package expression

import (
	"fmt"

	"github.com/corvidb/corvid/types"
)

// Expression evaluates to a single Value against one row (filter,
// projection, aggregation arguments) or a pair of rows (join
// predicates, before the two sides have been concatenated into one
// output row).
type Expression interface {
	implementExpr()
	// Evaluate computes the expression's value against a single row.
	Evaluate(row types.Row, schema types.Schema) (types.Value, error)
	// EvaluateJoin computes the expression's value against a left/right
	// row pair, before a join has materialized its combined output row.
	EvaluateJoin(left types.Row, leftSchema types.Schema, right types.Row, rightSchema types.Schema) (types.Value, error)
}

// ColumnRef reads one column out of a row by name. Side picks which
// half of a join-predicate's row pair the column belongs to; it is
// ignored by plain Evaluate, which always has exactly one row.
type ColumnRef struct {
	Name string
	Side Side
}

// Side distinguishes a join predicate's left and right tuple.
type Side uint8

const (
	LeftSide Side = iota
	RightSide
)

func (ColumnRef) implementExpr() {}

func (c ColumnRef) Evaluate(row types.Row, schema types.Schema) (types.Value, error) {
	idx := schema.IndexOf(c.Name)
	if idx < 0 {
		return types.Value{}, fmt.Errorf("expression: column %q not found in schema", c.Name)
	}
	return row.Values[idx], nil
}

func (c ColumnRef) EvaluateJoin(left types.Row, leftSchema types.Schema, right types.Row, rightSchema types.Schema) (types.Value, error) {
	if c.Side == LeftSide {
		return c.Evaluate(left, leftSchema)
	}
	return c.Evaluate(right, rightSchema)
}

// Literal is a constant value, independent of any row.
type Literal struct {
	Value types.Value
}

func (Literal) implementExpr() {}

func (l Literal) Evaluate(types.Row, types.Schema) (types.Value, error) {
	return l.Value, nil
}

func (l Literal) EvaluateJoin(types.Row, types.Schema, types.Row, types.Schema) (types.Value, error) {
	return l.Value, nil
}

// CompareOp names a comparison predicate's operator.
type CompareOp uint8

const (
	Eq CompareOp = iota
	Lt
	Le
	Gt
	Ge
)

// Comparison evaluates Left and Right, then compares them tri-valued
// (null operands propagate to Unknown per spec §6), wrapping the
// result back up as a Boolean Value (Unknown maps to a null boolean
// so it keeps propagating through further And/Or composition).
type Comparison struct {
	Op          CompareOp
	Left, Right Expression
}

func (Comparison) implementExpr() {}

func (c Comparison) Evaluate(row types.Row, schema types.Schema) (types.Value, error) {
	l, err := c.Left.Evaluate(row, schema)
	if err != nil {
		return types.Value{}, err
	}
	r, err := c.Right.Evaluate(row, schema)
	if err != nil {
		return types.Value{}, err
	}
	return c.apply(l, r), nil
}

func (c Comparison) EvaluateJoin(left types.Row, leftSchema types.Schema, right types.Row, rightSchema types.Schema) (types.Value, error) {
	l, err := c.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return types.Value{}, err
	}
	r, err := c.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return types.Value{}, err
	}
	return c.apply(l, r), nil
}

func (c Comparison) apply(l, r types.Value) types.Value {
	var tri types.Tri
	switch c.Op {
	case Eq:
		tri = l.CompareEq(r)
	case Lt:
		tri = l.CompareLt(r)
	case Le:
		tri = l.CompareLe(r)
	case Gt:
		tri = l.CompareGt(r)
	case Ge:
		tri = l.CompareGe(r)
	}
	return triToValue(tri)
}

func triToValue(tri types.Tri) types.Value {
	if tri == types.Unknown {
		return types.NewNull(types.Boolean)
	}
	return types.NewBoolean(tri == types.True)
}

// valueToTri reads a predicate's Boolean Value result back into the
// Tri it represents (a null Boolean means Unknown, by triToValue's
// construction above).
func valueToTri(v types.Value) types.Tri {
	if v.IsNull() {
		return types.Unknown
	}
	if v.Boolean() {
		return types.True
	}
	return types.False
}

// And, Or, Not compose predicates using three-valued logic so a
// chain of filters never silently drops a null comparison to false.
type And struct{ Left, Right Expression }
type Or struct{ Left, Right Expression }
type Not struct{ Expr Expression }

func (And) implementExpr() {}
func (Or) implementExpr()  {}
func (Not) implementExpr() {}

func (a And) Evaluate(row types.Row, schema types.Schema) (types.Value, error) {
	l, err := a.Left.Evaluate(row, schema)
	if err != nil {
		return types.Value{}, err
	}
	r, err := a.Right.Evaluate(row, schema)
	if err != nil {
		return types.Value{}, err
	}
	return triToValue(valueToTri(l).And(valueToTri(r))), nil
}

func (a And) EvaluateJoin(left types.Row, leftSchema types.Schema, right types.Row, rightSchema types.Schema) (types.Value, error) {
	l, err := a.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return types.Value{}, err
	}
	r, err := a.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return types.Value{}, err
	}
	return triToValue(valueToTri(l).And(valueToTri(r))), nil
}

func (o Or) Evaluate(row types.Row, schema types.Schema) (types.Value, error) {
	l, err := o.Left.Evaluate(row, schema)
	if err != nil {
		return types.Value{}, err
	}
	r, err := o.Right.Evaluate(row, schema)
	if err != nil {
		return types.Value{}, err
	}
	return triToValue(valueToTri(l).Or(valueToTri(r))), nil
}

func (o Or) EvaluateJoin(left types.Row, leftSchema types.Schema, right types.Row, rightSchema types.Schema) (types.Value, error) {
	l, err := o.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return types.Value{}, err
	}
	r, err := o.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return types.Value{}, err
	}
	return triToValue(valueToTri(l).Or(valueToTri(r))), nil
}

func (n Not) Evaluate(row types.Row, schema types.Schema) (types.Value, error) {
	v, err := n.Expr.Evaluate(row, schema)
	if err != nil {
		return types.Value{}, err
	}
	return triToValue(valueToTri(v).Not()), nil
}

func (n Not) EvaluateJoin(left types.Row, leftSchema types.Schema, right types.Row, rightSchema types.Schema) (types.Value, error) {
	v, err := n.Expr.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return types.Value{}, err
	}
	return triToValue(valueToTri(v).Not()), nil
}

// IsTrue reports whether evaluating expr against row yields True — the
// fast-path test seq scan and join executors use to decide whether a
// row survives a predicate.
func IsTrue(expr Expression, row types.Row, schema types.Schema) (bool, error) {
	v, err := expr.Evaluate(row, schema)
	if err != nil {
		return false, err
	}
	return valueToTri(v).IsTrue(), nil
}

// IsTrueJoin is IsTrue's join-predicate counterpart.
func IsTrueJoin(expr Expression, left types.Row, leftSchema types.Schema, right types.Row, rightSchema types.Schema) (bool, error) {
	v, err := expr.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return false, err
	}
	return valueToTri(v).IsTrue(), nil
}
