package execution

import (
	"fmt"

	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/types"
)

// Plan is a not-yet-built operator tree: what the optimizer (spec
// §4.10's sibling stage) rewrites before Build turns it into a live
// Executor pipeline. Kept separate from Executor itself so a rewrite
// rule can swap a node (e.g. SeqScanPlan for IndexScanPlan) without
// touching anything already bound to a transaction/context.
type Plan interface {
	isPlan()
}

type SeqScanPlan struct {
	Table     *catalog.TableInfo
	Predicate expression.Expression
}

type IndexScanPlan struct {
	Table     *catalog.TableInfo
	Index     *catalog.IndexInfo
	Low, High types.Value
	// Residual is any remaining predicate the index bound doesn't
	// fully decide (e.g. the original predicate was an AND of an
	// indexable equality and something else); nil if none.
	Residual expression.Expression
}

type FilterPlan struct {
	Input     Plan
	Predicate expression.Expression
}

type ProjectionPlan struct {
	Input  Plan
	Exprs  []expression.Expression
	Schema types.Schema
}

type ValuesPlan struct {
	Schema types.Schema
	Rows   []types.Row
}

type InsertPlan struct {
	Table *catalog.TableInfo
	Input Plan
}

type UpdatePlan struct {
	Table *catalog.TableInfo
	Input Plan
	Exprs []expression.Expression
}

type DeletePlan struct {
	Table *catalog.TableInfo
	Input Plan
}

type NestedLoopJoinPlan struct {
	Left, Right Plan
	Predicate   expression.Expression
	LeftOuter   bool
}

type HashJoinPlan struct {
	Left, Right         Plan
	LeftKeys, RightKeys []expression.Expression
	LeftOuter           bool
}

type AggregationPlan struct {
	Input    Plan
	GroupBys []expression.Expression
	Aggs     []AggExpr
}

type SortPlan struct {
	Input    Plan
	OrderBys []OrderByExpr
}

type TopNPlan struct {
	Input    Plan
	OrderBys []OrderByExpr
	N        int
}

type LimitPlan struct {
	Input Plan
	N     int
}

type WindowPlan struct {
	Input        Plan
	PartitionBys []expression.Expression
	OrderBys     []OrderByExpr
	Windows      []WindowExpr
}

func (*SeqScanPlan) isPlan()         {}
func (*IndexScanPlan) isPlan()       {}
func (*FilterPlan) isPlan()          {}
func (*ProjectionPlan) isPlan()      {}
func (*ValuesPlan) isPlan()          {}
func (*InsertPlan) isPlan()          {}
func (*UpdatePlan) isPlan()          {}
func (*DeletePlan) isPlan()          {}
func (*NestedLoopJoinPlan) isPlan()  {}
func (*HashJoinPlan) isPlan()        {}
func (*AggregationPlan) isPlan()     {}
func (*SortPlan) isPlan()            {}
func (*TopNPlan) isPlan()            {}
func (*LimitPlan) isPlan()           {}
func (*WindowPlan) isPlan()          {}

// Build turns an (optionally optimized) Plan tree into a live,
// Init/Next-ready Executor bound to ctx.
func Build(ctx *ExecutorContext, plan Plan) (Executor, error) {
	switch p := plan.(type) {
	case *SeqScanPlan:
		return NewSeqScan(ctx, p.Table, p.Predicate), nil

	case *IndexScanPlan:
		var ex Executor = NewIndexScan(ctx, p.Table, p.Index, p.Low, p.High)
		if p.Residual != nil {
			ex = NewFilter(ex, p.Residual)
		}
		return ex, nil

	case *FilterPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewFilter(child, p.Predicate), nil

	case *ProjectionPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewProjection(child, p.Exprs, p.Schema), nil

	case *ValuesPlan:
		return NewValues(p.Schema, p.Rows), nil

	case *InsertPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewInsert(ctx, p.Table, child), nil

	case *UpdatePlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewUpdate(ctx, p.Table, child, p.Exprs), nil

	case *DeletePlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewDelete(ctx, p.Table, child), nil

	case *NestedLoopJoinPlan:
		left, err := Build(ctx, p.Left)
		if err != nil {
			return nil, err
		}
		right, err := Build(ctx, p.Right)
		if err != nil {
			return nil, err
		}
		return NewNestedLoopJoin(left, right, p.Predicate, p.LeftOuter), nil

	case *HashJoinPlan:
		left, err := Build(ctx, p.Left)
		if err != nil {
			return nil, err
		}
		right, err := Build(ctx, p.Right)
		if err != nil {
			return nil, err
		}
		return NewHashJoin(left, right, p.LeftKeys, p.RightKeys, p.LeftOuter), nil

	case *AggregationPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewAggregation(child, p.GroupBys, p.Aggs), nil

	case *SortPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewSort(child, p.OrderBys), nil

	case *TopNPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewTopN(child, p.OrderBys, p.N), nil

	case *LimitPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewLimit(child, p.N), nil

	case *WindowPlan:
		child, err := Build(ctx, p.Input)
		if err != nil {
			return nil, err
		}
		return NewWindow(child, p.PartitionBys, p.OrderBys, p.Windows), nil

	default:
		return nil, fmt.Errorf("execution: unknown plan node %T", plan)
	}
}
