// Package optimizer implements the rewrite-rule subset spec §4.10
// names: an equality seq scan becomes an index scan when a matching
// index exists, an equality nested-loop join becomes a hash join, and
// a sort immediately followed by a limit becomes a bounded top-N.
package optimizer

import (
	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/execution"
	"github.com/corvidb/corvid/expression"
)

// Optimize rewrites plan bottom-up: every child is optimized first, so
// a rule higher in the tree (sort+limit→top-N) sees its input already
// in its final rewritten shape.
func Optimize(plan execution.Plan, cat *catalog.Catalog) execution.Plan {
	plan = optimizeChildren(plan, cat)
	plan = seqScanAsIndexScan(plan, cat)
	plan = nljAsHashJoin(plan)
	plan = sortLimitAsTopN(plan)
	return plan
}

// optimizeChildren recurses into every plan node's children, replacing
// them with their optimized form. Leaves (scans, values) pass through
// unchanged — there's nothing under them to rewrite.
func optimizeChildren(plan execution.Plan, cat *catalog.Catalog) execution.Plan {
	switch p := plan.(type) {
	case *execution.FilterPlan:
		return &execution.FilterPlan{Input: Optimize(p.Input, cat), Predicate: p.Predicate}
	case *execution.ProjectionPlan:
		return &execution.ProjectionPlan{Input: Optimize(p.Input, cat), Exprs: p.Exprs, Schema: p.Schema}
	case *execution.InsertPlan:
		return &execution.InsertPlan{Table: p.Table, Input: Optimize(p.Input, cat)}
	case *execution.UpdatePlan:
		return &execution.UpdatePlan{Table: p.Table, Input: Optimize(p.Input, cat), Exprs: p.Exprs}
	case *execution.DeletePlan:
		return &execution.DeletePlan{Table: p.Table, Input: Optimize(p.Input, cat)}
	case *execution.NestedLoopJoinPlan:
		return &execution.NestedLoopJoinPlan{
			Left: Optimize(p.Left, cat), Right: Optimize(p.Right, cat),
			Predicate: p.Predicate, LeftOuter: p.LeftOuter,
		}
	case *execution.HashJoinPlan:
		return &execution.HashJoinPlan{
			Left: Optimize(p.Left, cat), Right: Optimize(p.Right, cat),
			LeftKeys: p.LeftKeys, RightKeys: p.RightKeys, LeftOuter: p.LeftOuter,
		}
	case *execution.AggregationPlan:
		return &execution.AggregationPlan{Input: Optimize(p.Input, cat), GroupBys: p.GroupBys, Aggs: p.Aggs}
	case *execution.SortPlan:
		return &execution.SortPlan{Input: Optimize(p.Input, cat), OrderBys: p.OrderBys}
	case *execution.TopNPlan:
		return &execution.TopNPlan{Input: Optimize(p.Input, cat), OrderBys: p.OrderBys, N: p.N}
	case *execution.LimitPlan:
		return &execution.LimitPlan{Input: Optimize(p.Input, cat), N: p.N}
	case *execution.WindowPlan:
		return &execution.WindowPlan{
			Input: Optimize(p.Input, cat), PartitionBys: p.PartitionBys,
			OrderBys: p.OrderBys, Windows: p.Windows,
		}
	default:
		return plan
	}
}

// seqScanAsIndexScan rewrites a seq scan whose predicate is a single
// equality between a column and a literal into an index scan, if the
// table has an index whose leading key column matches.
func seqScanAsIndexScan(plan execution.Plan, cat *catalog.Catalog) execution.Plan {
	scan, ok := plan.(*execution.SeqScanPlan)
	if !ok {
		return plan
	}
	cmp, ok := scan.Predicate.(expression.Comparison)
	if !ok || cmp.Op != expression.Eq {
		return plan
	}
	col, lit, ok := splitColumnLiteral(cmp)
	if !ok {
		return plan
	}

	colIdx := scan.Table.Schema.IndexOf(col.Name)
	if colIdx < 0 {
		return plan
	}
	indexInfo, ok := cat.MatchIndex(scan.Table.Name, colIdx)
	if !ok {
		return plan
	}

	return &execution.IndexScanPlan{Table: scan.Table, Index: indexInfo, Low: lit.Value, High: lit.Value}
}

// splitColumnLiteral normalizes "col = lit" or "lit = col" into
// (col, lit, true); anything else is not an indexable equality.
func splitColumnLiteral(cmp expression.Comparison) (expression.ColumnRef, expression.Literal, bool) {
	if col, ok := cmp.Left.(expression.ColumnRef); ok {
		if lit, ok := cmp.Right.(expression.Literal); ok {
			return col, lit, true
		}
	}
	if col, ok := cmp.Right.(expression.ColumnRef); ok {
		if lit, ok := cmp.Left.(expression.Literal); ok {
			return col, lit, true
		}
	}
	return expression.ColumnRef{}, expression.Literal{}, false
}

// nljAsHashJoin rewrites a nested-loop join whose predicate is a
// single equality between a left-side column and a right-side column
// into a hash join.
func nljAsHashJoin(plan execution.Plan) execution.Plan {
	nlj, ok := plan.(*execution.NestedLoopJoinPlan)
	if !ok {
		return plan
	}
	cmp, ok := nlj.Predicate.(expression.Comparison)
	if !ok || cmp.Op != expression.Eq {
		return plan
	}
	leftCol, ok := cmp.Left.(expression.ColumnRef)
	if !ok || leftCol.Side != expression.LeftSide {
		return plan
	}
	rightCol, ok := cmp.Right.(expression.ColumnRef)
	if !ok || rightCol.Side != expression.RightSide {
		return plan
	}

	return &execution.HashJoinPlan{
		Left: nlj.Left, Right: nlj.Right,
		LeftKeys:  []expression.Expression{leftCol},
		RightKeys: []expression.Expression{rightCol},
		LeftOuter: nlj.LeftOuter,
	}
}

// sortLimitAsTopN rewrites Limit(Sort(...)) into a single bounded
// top-N, per spec §4.10.6.
func sortLimitAsTopN(plan execution.Plan) execution.Plan {
	lim, ok := plan.(*execution.LimitPlan)
	if !ok {
		return plan
	}
	sortPlan, ok := lim.Input.(*execution.SortPlan)
	if !ok {
		return plan
	}
	return &execution.TopNPlan{Input: sortPlan.Input, OrderBys: sortPlan.OrderBys, N: lim.N}
}
