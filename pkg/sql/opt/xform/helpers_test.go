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
	"github.com/cockroachdb/physprops/pkg/sql/opt/props"
	"github.com/cockroachdb/physprops/pkg/sql/opt/props/physical"
)

func scan(cols ...opt.ColumnID) *memo.Expr {
	return memo.NewRelExpr(memo.NewOperator(opt.ScanOp, &memo.ScanPrivate{}), &props.Relational{
		OutputCols: opt.MakeColSet(cols...),
	})
}

// dynamicScan returns a scan of a hash distributed table that reads the
// partitions chosen by the selectors of the given scan id. The first column
// is both the distribution key and the partition key.
func dynamicScan(id opt.ScanID, selectors uint32, cols ...opt.ColumnID) *memo.Expr {
	o := memo.NewOperator(opt.ScanOp, &memo.ScanPrivate{
		Policy:        props.HashPolicy,
		DistCols:      cols[:1],
		ScanID:        id,
		PartSelectors: selectors,
	})
	return memo.NewRelExpr(o, &props.Relational{
		OutputCols: opt.MakeColSet(cols...),
		Partitions: props.MakePartInfo().Add(id, cols[0]),
	})
}

func scalar(e opt.ScalarExpr) *memo.Expr {
	s := &props.Scalar{Expr: e}
	if e != nil {
		s.UsedCols = e.Cols()
	}
	return memo.NewScalarExpr(s)
}

// binaryRel returns the logical properties of an operator over the given
// relational children.
func binaryRel(outer, inner *memo.Expr) *props.Relational {
	return &props.Relational{
		OutputCols:     outer.Relational().OutputCols.Union(inner.Relational().OutputCols),
		Partitions:     outer.Relational().Partitions.Combine(inner.Relational().Partitions),
		HasCTEProducer: outer.Relational().HasCTEProducer || inner.Relational().HasCTEProducer,
	}
}

func hashJoin(outer, inner *memo.Expr, children ...*memo.Expr) *memo.Expr {
	o := memo.NewOperator(opt.HashJoinOp, &memo.HashJoinPrivate{
		OuterKeys: opt.MakeVariables(outer.Relational().OutputCols.Ordered()...),
		InnerKeys: opt.MakeVariables(inner.Relational().OutputCols.Ordered()...),
	})
	return memo.NewRelExpr(o, binaryRel(outer, inner), append([]*memo.Expr{outer, inner}, children...)...)
}

func nestedLoopJoin(outer, inner *memo.Expr, children ...*memo.Expr) *memo.Expr {
	o := memo.NewOperator(opt.NestedLoopJoinOp, nil)
	return memo.NewRelExpr(o, binaryRel(outer, inner), append([]*memo.Expr{outer, inner}, children...)...)
}

func unary(op opt.Operator, private interface{}, input *memo.Expr, children ...*memo.Expr) *memo.Expr {
	in := input.Relational()
	rel := &props.Relational{
		OutputCols:     in.OutputCols,
		Partitions:     in.Partitions,
		HasCTEProducer: in.HasCTEProducer,
	}
	return memo.NewRelExpr(memo.NewOperator(op, private), rel, append([]*memo.Expr{input}, children...)...)
}

func partitionSelector(id opt.ScanID, expected uint32, input *memo.Expr) *memo.Expr {
	return unary(opt.PartitionSelectorOp, &memo.PartitionSelectorPrivate{
		ScanID: id, ExpectedSelectors: expected,
	}, input)
}

// derive sets the provided properties of e and of its relational
// descendants, bottom up.
func derive(e *memo.Expr) *physical.Provided {
	for i, n := 0, memo.RelationalChildCount(e); i < n; i++ {
		derive(e.Child(i))
	}
	p := Derive(e)
	e.SetProvided(p)
	return p
}

func partProp(entries ...physical.PartIndexEntry) *physical.PartPropSpec {
	res := newPartPropSpec()
	for _, e := range entries {
		res.Index.Insert(e)
	}
	return res
}

func consumer(id opt.ScanID, expected uint32) physical.PartIndexEntry {
	return physical.PartIndexEntry{ScanID: id, Manipulator: physical.PartConsumer, ExpectedPropagators: expected}
}

func eq(a, b opt.ScalarExpr) opt.ScalarExpr {
	return &opt.Function{Name: opt.EqFunction, Args: []opt.ScalarExpr{a, b}}
}

func and(args ...opt.ScalarExpr) opt.ScalarExpr {
	return &opt.Function{Name: opt.AndFunction, Args: args}
}

func v(col opt.ColumnID) opt.ScalarExpr {
	return &opt.Variable{Col: col}
}
