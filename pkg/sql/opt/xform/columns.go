// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package xform

import (
	"github.com/cockroachdb/physprops/pkg/sql/opt"
	"github.com/cockroachdb/physprops/pkg/sql/opt/memo"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
)

// ChildRequiredCols returns the columns h must require of the given child so
// that it can produce the required columns. Besides the required columns, a
// child must produce the columns the operator itself uses: join keys and
// predicates, sort and merge orders, hash motion keys, partition filters.
func ChildRequiredCols(h memo.ExprHandle, required opt.ColSet, childIdx int) opt.ColSet {
	o := h.Operator()
	childOutput := h.ChildRelational(childIdx).OutputCols
	switch o.Op() {
	case opt.UnionAllOp:
		return unionAllChildCols(o.UnionAllPrivate(), required, childIdx)

	case opt.SequenceOp:
		if childIdx < memo.RelationalChildCount(h)-1 {
			// Only the last child's rows are returned.
			return opt.ColSet{}
		}
		return o.ChildRequiredCols(h, required, childIdx, memo.NoScalarChild)

	case opt.PartitionSelectorOp:
		if f := o.PartitionSelectorPrivate().Filter; f != nil {
			required = required.Union(f.Cols())
		}
		return required.Intersection(childOutput)

	case opt.HashMotionOp:
		if d, ok := o.MotionPrivate().Dist.(*physical.HashedDist); ok {
			required = required.Union(exprCols(d.Exprs))
		}
		return required.Intersection(childOutput)

	case opt.GatherMotionOp:
		return required.Union(o.MotionPrivate().Order.ColSet()).Intersection(childOutput)

	case opt.SortOp:
		return required.Union(o.SortPrivate().Order.ColSet()).Intersection(childOutput)

	case opt.LimitOp:
		return required.Union(o.LimitPrivate().Order.ColSet()).Intersection(childOutput)

	case opt.HashJoinOp, opt.LeftOuterHashJoinOp, opt.LeftSemiHashJoinOp,
		opt.LeftAntiSemiHashJoinOp, opt.LeftAntiSemiHashJoinNotInOp:
		p := o.HashJoinPrivate()
		required = required.Union(exprCols(p.OuterKeys)).Union(exprCols(p.InnerKeys))

	case opt.IndexNestedLoopJoinOp, opt.LeftOuterIndexNestedLoopJoinOp:
		p := o.IndexJoinPrivate()
		required = required.Union(exprCols(p.OuterKeys)).Union(exprCols(p.InnerKeys))
	}
	return o.ChildRequiredCols(h, required, childIdx, memo.ScalarChildIdx(h))
}

// unionAllChildCols maps the required output columns to the input columns of
// the given child.
func unionAllChildCols(p *memo.UnionAllPrivate, required opt.ColSet, childIdx int) opt.ColSet {
	var cols []opt.ColumnID
	for i, col := range p.OutputCols {
		if required.Contains(col) {
			cols = append(cols, p.InputCols[childIdx][i])
		}
	}
	return opt.MakeColSet(cols...)
}

func exprCols(exprs []opt.ScalarExpr) opt.ColSet {
	var res opt.ColSet
	for _, e := range exprs {
		res = res.Union(e.Cols())
	}
	return res
}
